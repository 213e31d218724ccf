package main

import (
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		backend:      "serial",
		serialDev:    "/dev/null",
		baud:         115200,
		serialReadTO: 10 * time.Millisecond,
		listenAddr:   ":20001",
		imu:          true,
		rxBuffer:     32,
		simulate:     true,
		sensorQueue:  16,
		logFormat:    "text",
		logLevel:     "info",
	}
}

func TestConfigValidate_OK(t *testing.T) {
	for _, b := range []string{"serial", "pty", "tcp"} {
		c := baseConfig()
		c.backend = b
		if b == "tcp" {
			c.mdnsEnable = true
		}
		if err := c.validate(); err != nil {
			t.Fatalf("%s: expected ok got %v", b, err)
		}
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badBackend", func(c *appConfig) { c.backend = "socketcan" }},
		{"emptySerial", func(c *appConfig) { c.serialDev = "" }},
		{"badBaud", func(c *appConfig) { c.baud = 0 }},
		{"badSerialTO", func(c *appConfig) { c.serialReadTO = 0 }},
		{"emptyListen", func(c *appConfig) { c.backend = "tcp"; c.listenAddr = "" }},
		{"tinyBuffer", func(c *appConfig) { c.rxBuffer = 1 }},
		{"shortHeartbeat", func(c *appConfig) { c.heartbeatTO = 500 * time.Millisecond }},
		{"badQueue", func(c *appConfig) { c.sensorQueue = 0 }},
		{"negativeMetricsInterval", func(c *appConfig) { c.logMetricsEvery = -time.Second }},
		{"mdnsWithoutTCP", func(c *appConfig) { c.mdnsEnable = true }},
	}
	for _, tc := range tests {
		c := baseConfig()
		tc.mod(c)
		if err := c.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestConfigValidate_Nil(t *testing.T) {
	var c *appConfig
	if err := c.validate(); err == nil {
		t.Fatal("expected error for nil config")
	}
}
