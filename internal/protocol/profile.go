package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Channel identifies a logical data stream. On the wire it is a single ASCII
// digit, so valid ids are 1..9.
type Channel uint8

const (
	Audio Channel = 1
	IMU   Channel = 2
)

const (
	minChannel = 1
	maxChannel = 9
)

// ProtocolVersion is reported in the config blob.
const ProtocolVersion = 1

// DefaultHeartbeatTimeout drops all subscriptions after this much host silence.
const DefaultHeartbeatTimeout = 5000 * time.Millisecond

// ChannelSpec describes one sensor stream as advertised to the host.
type ChannelSpec struct {
	ID       Channel
	Type     string // semantic tag, e.g. "microphone"
	Datatype string // sample type tag, e.g. "s16"
	Shape    []int  // samples per frame, e.g. [1024, 1]
	Rates    []int  // supported sample rates in Hz
}

// datatypeSizes maps the sample datatype tags a host understands to byte widths.
var datatypeSizes = map[string]int{
	"s8": 1, "u8": 1,
	"s16": 2, "u16": 2,
	"s32": 4, "u32": 4, "f32": 4,
	"f64": 8,
}

// SampleSize returns the byte width of one sample, 0 if the datatype is unknown.
func (c ChannelSpec) SampleSize() int { return datatypeSizes[c.Datatype] }

// PayloadSize is the number of payload bytes in one data frame for this channel.
func (c ChannelSpec) PayloadSize() int {
	n := c.SampleSize()
	for _, d := range c.Shape {
		n *= d
	}
	return n
}

// Profile is the device's capability list. It is built once at startup and
// not modified afterwards.
type Profile struct {
	DeviceName       string
	ProtocolVersion  int
	HeartbeatTimeout time.Duration
	Channels         []ChannelSpec
}

// DefaultProfile returns the stock device description: a 16 kHz microphone
// and, when imu is set, a 50 Hz accelerometer.
func DefaultProfile(imu bool) Profile {
	p := Profile{
		DeviceName:       "PSoC6",
		ProtocolVersion:  ProtocolVersion,
		HeartbeatTimeout: DefaultHeartbeatTimeout,
		Channels: []ChannelSpec{{
			ID:       Audio,
			Type:     "microphone",
			Datatype: "s16",
			Shape:    []int{1024, 1},
			Rates:    []int{16000},
		}},
	}
	if imu {
		p.Channels = append(p.Channels, ChannelSpec{
			ID:       IMU,
			Type:     "accelerometer",
			Datatype: "f32",
			Shape:    []int{1, 3},
			Rates:    []int{50},
		})
	}
	return p
}

// Channel looks up the spec for id.
func (p Profile) Channel(id Channel) (ChannelSpec, bool) {
	for _, c := range p.Channels {
		if c.ID == id {
			return c, true
		}
	}
	return ChannelSpec{}, false
}

// Validate checks the profile can be advertised and dispatched unambiguously.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.DeviceName) == "" {
		return fmt.Errorf("%w: device name is empty", ErrInvalidProfile)
	}
	if p.ProtocolVersion <= 0 {
		return fmt.Errorf("%w: protocol version must be > 0 (got %d)", ErrInvalidProfile, p.ProtocolVersion)
	}
	if p.HeartbeatTimeout < time.Second {
		return fmt.Errorf("%w: heartbeat timeout must be >= 1s (got %v)", ErrInvalidProfile, p.HeartbeatTimeout)
	}
	if len(p.Channels) == 0 {
		return fmt.Errorf("%w: no channels", ErrInvalidProfile)
	}
	seen := make(map[Channel]struct{}, len(p.Channels))
	for i, c := range p.Channels {
		if c.ID < minChannel || c.ID > maxChannel {
			return fmt.Errorf("%w: channel[%d] id %d outside %d..%d", ErrInvalidProfile, i, c.ID, minChannel, maxChannel)
		}
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate channel id %d", ErrInvalidProfile, c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.Type == "" {
			return fmt.Errorf("%w: channel %d has no type", ErrInvalidProfile, c.ID)
		}
		if c.SampleSize() == 0 {
			return fmt.Errorf("%w: channel %d datatype %q unknown", ErrInvalidProfile, c.ID, c.Datatype)
		}
		if len(c.Shape) == 0 {
			return fmt.Errorf("%w: channel %d has no shape", ErrInvalidProfile, c.ID)
		}
		for _, d := range c.Shape {
			if d <= 0 {
				return fmt.Errorf("%w: channel %d shape dims must be > 0", ErrInvalidProfile, c.ID)
			}
		}
		if len(c.Rates) == 0 {
			return fmt.Errorf("%w: channel %d has no rates", ErrInvalidProfile, c.ID)
		}
		for _, r := range c.Rates {
			if r <= 0 {
				return fmt.Errorf("%w: channel %d rates must be > 0", ErrInvalidProfile, c.ID)
			}
		}
	}
	return nil
}

// ConfigBlob renders the reply to "config?" in the device's layout:
// 4-space indented JSON with inline arrays, CR LF line endings and a
// trailing CR LF.
func (p Profile) ConfigBlob() ([]byte, error) {
	name, err := jsonString(p.DeviceName)
	if err != nil {
		return nil, fmt.Errorf("config blob: %w", err)
	}
	var b strings.Builder
	b.WriteString("{\r\n")
	fmt.Fprintf(&b, "    \"device_name\": %s,\r\n", name)
	fmt.Fprintf(&b, "    \"protocol_version\": %d,\r\n", p.ProtocolVersion)
	fmt.Fprintf(&b, "    \"heartbeat_timeout\": %d,\r\n", int(p.HeartbeatTimeout/time.Second))
	b.WriteString("    \"sensors\": [\r\n")
	for i, c := range p.Channels {
		typ, err := jsonString(c.Type)
		if err != nil {
			return nil, fmt.Errorf("config blob: %w", err)
		}
		dt, err := jsonString(c.Datatype)
		if err != nil {
			return nil, fmt.Errorf("config blob: %w", err)
		}
		b.WriteString("        {\r\n")
		fmt.Fprintf(&b, "            \"channel\": %d,\r\n", c.ID)
		fmt.Fprintf(&b, "            \"type\": %s,\r\n", typ)
		fmt.Fprintf(&b, "            \"datatype\": %s,\r\n", dt)
		fmt.Fprintf(&b, "            \"shape\": %s,\r\n", inlineInts(c.Shape))
		fmt.Fprintf(&b, "            \"rates\": %s\r\n", inlineInts(c.Rates))
		if i < len(p.Channels)-1 {
			b.WriteString("        },\r\n")
		} else {
			b.WriteString("        }\r\n")
		}
	}
	b.WriteString("    ]\r\n}\r\n")
	return []byte(b.String()), nil
}

// jsonString quotes s as a JSON string without HTML escaping.
func jsonString(s string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// inlineInts renders [ 1024, 1 ].
func inlineInts(xs []int) string {
	if len(xs) == 0 {
		return "[ ]"
	}
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return "[ " + strings.Join(parts, ", ") + " ]"
}
