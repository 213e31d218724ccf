package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/kstaniek/sensor-streamer/internal/protocol"
)

const mdnsServiceType = "_sensor-stream._tcp"

// mdnsMeta builds the TXT records advertised next to the TCP endpoint.
func mdnsMeta(p protocol.Profile) []string {
	ids := make([]string, 0, len(p.Channels))
	for _, c := range p.Channels {
		ids = append(ids, strconv.Itoa(int(c.ID)))
	}
	return []string{
		"device=" + p.DeviceName,
		"protocol=" + strconv.Itoa(p.ProtocolVersion),
		"channels=" + strings.Join(ids, ","),
		"version=" + version,
	}
}

// portOf extracts the port from host:port or :port.
func portOf(addr string) int {
	if _, p, err := net.SplitHostPort(addr); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	return 0
}

// startMDNS registers the service via mDNS and returns a cleanup function.
func startMDNS(ctx context.Context, cfg *appConfig, p protocol.Profile, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	if port <= 0 {
		return nil, fmt.Errorf("mdns register: no port")
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("sensor-streamer-%s", host)
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, mdnsMeta(p), nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); time.Sleep(mdnsStopGrace) }, nil
}
