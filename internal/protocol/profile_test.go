package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigBlob(t *testing.T) {
	blob, err := DefaultProfile(true).ConfigBlob()
	if err != nil {
		t.Fatal(err)
	}
	s := string(blob)
	if !strings.HasSuffix(s, "}\r\n") {
		t.Fatalf("blob not CR LF terminated: %q", s[len(s)-4:])
	}
	if strings.Contains(strings.ReplaceAll(s, "\r\n", ""), "\n") {
		t.Fatalf("bare LF in blob")
	}
	var doc struct {
		DeviceName       string `json:"device_name"`
		ProtocolVersion  int    `json:"protocol_version"`
		HeartbeatTimeout int    `json:"heartbeat_timeout"`
		Sensors          []struct {
			Channel  int    `json:"channel"`
			Type     string `json:"type"`
			Datatype string `json:"datatype"`
			Shape    []int  `json:"shape"`
			Rates    []int  `json:"rates"`
		} `json:"sensors"`
	}
	if err := json.Unmarshal(blob, &doc); err != nil {
		t.Fatalf("blob is not JSON: %v", err)
	}
	if doc.DeviceName != "PSoC6" || doc.ProtocolVersion != 1 || doc.HeartbeatTimeout != 5 {
		t.Fatalf("header fields: %+v", doc)
	}
	if len(doc.Sensors) != 2 {
		t.Fatalf("sensors: %+v", doc.Sensors)
	}
	mic, acc := doc.Sensors[0], doc.Sensors[1]
	if mic.Channel != 1 || mic.Type != "microphone" || mic.Datatype != "s16" || mic.Shape[0] != 1024 || mic.Rates[0] != 16000 {
		t.Fatalf("microphone: %+v", mic)
	}
	if acc.Channel != 2 || acc.Type != "accelerometer" || acc.Datatype != "f32" || acc.Shape[1] != 3 || acc.Rates[0] != 50 {
		t.Fatalf("accelerometer: %+v", acc)
	}

	blob, _ = DefaultProfile(false).ConfigBlob()
	if strings.Contains(string(blob), `"channel": 2`) {
		t.Fatalf("IMU entry present while disabled")
	}
}

func TestPayloadSize(t *testing.T) {
	p := DefaultProfile(true)
	mic, _ := p.Channel(Audio)
	acc, _ := p.Channel(IMU)
	if mic.PayloadSize() != 2048 {
		t.Fatalf("mic payload %d", mic.PayloadSize())
	}
	if acc.PayloadSize() != 12 {
		t.Fatalf("imu payload %d", acc.PayloadSize())
	}
	if _, ok := p.Channel(9); ok {
		t.Fatalf("unexpected channel 9")
	}
}

func TestProfileValidate(t *testing.T) {
	if err := DefaultProfile(true).Validate(); err != nil {
		t.Fatalf("default profile invalid: %v", err)
	}
	tests := []struct {
		name string
		mod  func(*Profile)
	}{
		{"noName", func(p *Profile) { p.DeviceName = " " }},
		{"badVersion", func(p *Profile) { p.ProtocolVersion = 0 }},
		{"shortHeartbeat", func(p *Profile) { p.HeartbeatTimeout = 500 * time.Millisecond }},
		{"noChannels", func(p *Profile) { p.Channels = nil }},
		{"idZero", func(p *Profile) { p.Channels[0].ID = 0 }},
		{"idTen", func(p *Profile) { p.Channels[0].ID = 10 }},
		{"duplicate", func(p *Profile) { p.Channels[1].ID = p.Channels[0].ID }},
		{"noType", func(p *Profile) { p.Channels[0].Type = "" }},
		{"badDatatype", func(p *Profile) { p.Channels[0].Datatype = "s24" }},
		{"noShape", func(p *Profile) { p.Channels[0].Shape = nil }},
		{"zeroDim", func(p *Profile) { p.Channels[0].Shape = []int{0, 1} }},
		{"noRates", func(p *Profile) { p.Channels[0].Rates = nil }},
		{"negRate", func(p *Profile) { p.Channels[0].Rates = []int{-1} }},
	}
	for _, tc := range tests {
		p := DefaultProfile(true)
		tc.mod(&p)
		if err := p.Validate(); !errors.Is(err, ErrInvalidProfile) {
			t.Fatalf("%s: expected ErrInvalidProfile, got %v", tc.name, err)
		}
	}
}

const stockBlob = "{\r\n" +
	"    \"device_name\": \"PSoC6\",\r\n" +
	"    \"protocol_version\": 1,\r\n" +
	"    \"heartbeat_timeout\": 5,\r\n" +
	"    \"sensors\": [\r\n" +
	"        {\r\n" +
	"            \"channel\": 1,\r\n" +
	"            \"type\": \"microphone\",\r\n" +
	"            \"datatype\": \"s16\",\r\n" +
	"            \"shape\": [ 1024, 1 ],\r\n" +
	"            \"rates\": [ 16000 ]\r\n" +
	"        },\r\n" +
	"        {\r\n" +
	"            \"channel\": 2,\r\n" +
	"            \"type\": \"accelerometer\",\r\n" +
	"            \"datatype\": \"f32\",\r\n" +
	"            \"shape\": [ 1, 3 ],\r\n" +
	"            \"rates\": [ 50 ]\r\n" +
	"        }\r\n" +
	"    ]\r\n" +
	"}\r\n"

func TestConfigBlobDeviceLayout(t *testing.T) {
	blob, err := DefaultProfile(true).ConfigBlob()
	if err != nil {
		t.Fatal(err)
	}
	if string(blob) != stockBlob {
		t.Fatalf("blob layout:\n%q\nwant:\n%q", blob, stockBlob)
	}
	blob, _ = DefaultProfile(false).ConfigBlob()
	want := stockBlob[:strings.Index(stockBlob, "        },\r\n")] + "        }\r\n    ]\r\n}\r\n"
	if string(blob) != want {
		t.Fatalf("blob without IMU:\n%q\nwant:\n%q", blob, want)
	}
}

func TestConfigBlobNoHTMLEscaping(t *testing.T) {
	p := DefaultProfile(false)
	p.DeviceName = `bench <A&B> "x"`
	blob, err := p.ConfigBlob()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(blob), `"device_name": "bench <A&B> \"x\"",`) {
		t.Fatalf("device name rendering: %q", blob)
	}
	var doc struct {
		DeviceName string `json:"device_name"`
	}
	if err := json.Unmarshal(blob, &doc); err != nil || doc.DeviceName != p.DeviceName {
		t.Fatalf("round trip: %q (%v)", doc.DeviceName, err)
	}
}
