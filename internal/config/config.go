// Package config loads a device profile from a YAML file.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kstaniek/sensor-streamer/internal/protocol"
)

// File is the on-disk layout of a device profile.
type File struct {
	DeviceName       string        `yaml:"device_name"`
	ProtocolVersion  int           `yaml:"protocol_version"`
	HeartbeatTimeout time.Duration `yaml:"heartbeat_timeout"` // e.g. "5s"
	Channels         []Channel     `yaml:"channels"`
}

// Channel describes one advertised sensor stream.
type Channel struct {
	ID       int    `yaml:"channel"`
	Type     string `yaml:"type"`
	Datatype string `yaml:"datatype"`
	Shape    []int  `yaml:"shape"`
	Rates    []int  `yaml:"rates"`
}

// Load reads, parses and validates the profile at path.
func Load(path string) (protocol.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return protocol.Profile{}, fmt.Errorf("read profile %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return protocol.Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes a YAML profile. Unknown keys are rejected. Missing
// protocol_version and heartbeat_timeout take the protocol defaults.
func Parse(data []byte) (protocol.Profile, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return protocol.Profile{}, fmt.Errorf("parse: %w", err)
	}
	p, err := f.Profile()
	if err != nil {
		return protocol.Profile{}, err
	}
	if err := p.Validate(); err != nil {
		return protocol.Profile{}, err
	}
	return p, nil
}

// Profile converts the file layout to a protocol.Profile without validating it.
func (f File) Profile() (protocol.Profile, error) {
	p := protocol.Profile{
		DeviceName:       f.DeviceName,
		ProtocolVersion:  f.ProtocolVersion,
		HeartbeatTimeout: f.HeartbeatTimeout,
	}
	if p.ProtocolVersion == 0 {
		p.ProtocolVersion = protocol.ProtocolVersion
	}
	if p.HeartbeatTimeout == 0 {
		p.HeartbeatTimeout = protocol.DefaultHeartbeatTimeout
	}
	for i, c := range f.Channels {
		if c.ID < 0 || c.ID > 255 {
			return protocol.Profile{}, fmt.Errorf("%w: channels[%d] id %d", protocol.ErrInvalidProfile, i, c.ID)
		}
		p.Channels = append(p.Channels, protocol.ChannelSpec{
			ID:       protocol.Channel(c.ID),
			Type:     c.Type,
			Datatype: c.Datatype,
			Shape:    append([]int(nil), c.Shape...),
			Rates:    append([]int(nil), c.Rates...),
		})
	}
	return p, nil
}
