package main

import (
	"github.com/kstaniek/sensor-streamer/internal/config"
	"github.com/kstaniek/sensor-streamer/internal/protocol"
)

// loadProfile returns the device profile from -profile or the built-in one,
// with the -device-name override applied.
func loadProfile(cfg *appConfig) (protocol.Profile, error) {
	var p protocol.Profile
	if cfg.profilePath != "" {
		var err error
		if p, err = config.Load(cfg.profilePath); err != nil {
			return protocol.Profile{}, err
		}
	} else {
		p = protocol.DefaultProfile(cfg.imu)
	}
	if cfg.deviceName != "" {
		p.DeviceName = cfg.deviceName
	}
	return p, p.Validate()
}
