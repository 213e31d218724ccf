package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type appConfig struct {
	backend         string
	serialDev       string
	baud            int
	serialReadTO    time.Duration
	listenAddr      string
	ptyLink         string
	profilePath     string
	imu             bool
	deviceName      string
	rxBuffer        int
	heartbeatTO     time.Duration
	simulate        bool
	sensorQueue     int
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	flag.StringVar(&cfg.backend, "backend", "serial", "Host transport: serial|pty|tcp")
	flag.StringVar(&cfg.serialDev, "serial", "/dev/ttyACM0", "Serial device path (when -backend=serial)")
	flag.IntVar(&cfg.baud, "baud", 115200, "Serial baud rate")
	flag.DurationVar(&cfg.serialReadTO, "serial-read-timeout", 10*time.Millisecond, "Read wait per poll cycle (serial and pty)")
	flag.StringVar(&cfg.listenAddr, "listen", ":20001", "TCP listen address (when -backend=tcp)")
	flag.StringVar(&cfg.ptyLink, "pty-link", "", "Symlink to create for the pty slave (when -backend=pty)")
	flag.StringVar(&cfg.profilePath, "profile", "", "YAML device profile; empty uses the built-in profile")
	flag.BoolVar(&cfg.imu, "imu", true, "Advertise the accelerometer channel in the built-in profile")
	flag.StringVar(&cfg.deviceName, "device-name", "", "Override the advertised device name")
	flag.IntVar(&cfg.rxBuffer, "rx-buffer", 32, "Command line buffer size in bytes, including CR LF")
	flag.DurationVar(&cfg.heartbeatTO, "heartbeat-timeout", 0, "Drop subscriptions after this much host silence (0 = profile value)")
	flag.BoolVar(&cfg.simulate, "simulate", true, "Generate synthetic sensor data for subscribed channels")
	flag.IntVar(&cfg.sensorQueue, "sensor-queue", 16, "Pending sensor frames before new ones are dropped")
	flag.StringVar(&cfg.logFormat, "log-format", "text", "Log format: text|json")
	flag.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	flag.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	flag.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters")
	flag.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Advertise the TCP endpoint via mDNS (requires -backend=tcp)")
	flag.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default sensor-streamer-<hostname>)")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Explicitly set flags take precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Fprintf(os.Stderr, "environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate checks values and ranges only; it opens no devices or listeners.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "serial":
		if c.serialDev == "" {
			return errors.New("serial device path is empty")
		}
		if c.baud <= 0 {
			return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
		}
	case "pty":
	case "tcp":
		if c.listenAddr == "" {
			return errors.New("listen address is empty")
		}
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.rxBuffer < 2 {
		return fmt.Errorf("rx-buffer must be >= 2 (got %d)", c.rxBuffer)
	}
	if c.heartbeatTO != 0 && c.heartbeatTO < time.Second {
		return fmt.Errorf("heartbeat-timeout must be 0 or >= 1s (got %v)", c.heartbeatTO)
	}
	if c.sensorQueue <= 0 {
		return fmt.Errorf("sensor-queue must be > 0 (got %d)", c.sensorQueue)
	}
	if c.logMetricsEvery < 0 {
		return fmt.Errorf("log-metrics-interval must be >= 0")
	}
	if c.mdnsEnable && c.backend != "tcp" {
		return fmt.Errorf("mdns-enable requires -backend=tcp (got %s)", c.backend)
	}
	return nil
}

// applyEnvOverrides maps STREAMER_* environment variables to config fields
// unless the corresponding flag was set explicitly. Empty values are ignored.
// The first malformed value is reported; later ones are still applied if valid.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	e := envApplier{set: set}
	e.str("backend", "STREAMER_BACKEND", &c.backend)
	e.str("serial", "STREAMER_SERIAL", &c.serialDev)
	e.integer("baud", "STREAMER_BAUD", &c.baud, 1)
	e.duration("serial-read-timeout", "STREAMER_SERIAL_READ_TIMEOUT", &c.serialReadTO)
	e.str("listen", "STREAMER_LISTEN", &c.listenAddr)
	e.str("pty-link", "STREAMER_PTY_LINK", &c.ptyLink)
	e.str("profile", "STREAMER_PROFILE", &c.profilePath)
	e.boolean("imu", "STREAMER_IMU", &c.imu)
	e.str("device-name", "STREAMER_DEVICE_NAME", &c.deviceName)
	e.integer("rx-buffer", "STREAMER_RX_BUFFER", &c.rxBuffer, 2)
	e.duration("heartbeat-timeout", "STREAMER_HEARTBEAT_TIMEOUT", &c.heartbeatTO)
	e.boolean("simulate", "STREAMER_SIMULATE", &c.simulate)
	e.integer("sensor-queue", "STREAMER_SENSOR_QUEUE", &c.sensorQueue, 1)
	e.str("log-format", "STREAMER_LOG_FORMAT", &c.logFormat)
	e.str("log-level", "STREAMER_LOG_LEVEL", &c.logLevel)
	e.str("metrics-addr", "STREAMER_METRICS", &c.metricsAddr)
	e.duration("log-metrics-interval", "STREAMER_LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	e.boolean("mdns-enable", "STREAMER_MDNS_ENABLE", &c.mdnsEnable)
	e.str("mdns-name", "STREAMER_MDNS_NAME", &c.mdnsName)
	return e.firstErr
}

type envApplier struct {
	set      map[string]struct{}
	firstErr error
}

// lookup returns the trimmed env value when flagName was not set explicitly.
func (e *envApplier) lookup(flagName, key string) (string, bool) {
	if _, ok := e.set[flagName]; ok {
		return "", false
	}
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envApplier) fail(key string, err error) {
	if e.firstErr == nil {
		e.firstErr = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (e *envApplier) str(flagName, key string, dst *string) {
	if v, ok := e.lookup(flagName, key); ok {
		*dst = v
	}
}

func (e *envApplier) integer(flagName, key string, dst *int, lo int) {
	v, ok := e.lookup(flagName, key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	if n < lo {
		e.fail(key, fmt.Errorf("%d below minimum %d", n, lo))
		return
	}
	*dst = n
}

func (e *envApplier) duration(flagName, key string, dst *time.Duration) {
	v, ok := e.lookup(flagName, key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	if d < 0 {
		e.fail(key, fmt.Errorf("negative duration %v", d))
		return
	}
	*dst = d
}

func (e *envApplier) boolean(flagName, key string, dst *bool) {
	v, ok := e.lookup(flagName, key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		e.fail(key, fmt.Errorf("not a boolean: %q", v))
	}
}
