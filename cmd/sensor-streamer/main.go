package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kstaniek/sensor-streamer/internal/metrics"
	"github.com/kstaniek/sensor-streamer/internal/protocol"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("sensor-streamer %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	profile, err := loadProfile(cfg)
	if err != nil {
		l.Error("profile_error", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	be, err := initBackend(ctx, cfg, l, &wg, func(error) { cancel() })
	if err != nil {
		l.Error("backend_init_error", "error", err)
		return
	}
	defer be.cleanup()

	sess, err := protocol.NewSession(be.t,
		protocol.WithProfile(profile),
		protocol.WithHeartbeatTimeout(cfg.heartbeatTO),
		protocol.WithBufferSize(cfg.rxBuffer),
		protocol.WithLogger(l),
	)
	if err != nil {
		l.Error("session_init_error", "error", err)
		return
	}
	be.attachSession(sess)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sess.Run(ctx); err != nil {
			l.Error("session_error", "backend", be.name, "error", err)
		}
		cancel()
	}()
	startSensors(ctx, cfg, sess, l, &wg)

	if be.link != nil && cfg.mdnsEnable {
		go func() {
			select {
			case <-be.link.Ready():
			case <-ctx.Done():
				return
			}
			port := portOf(be.link.Addr())
			stop, err := startMDNS(ctx, cfg, sess.Profile(), port)
			if err != nil {
				l.Warn("mdns_start_failed", "error", err)
				return
			}
			l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", port)
			<-ctx.Done()
			stop()
		}()
	}

	metrics.SetReadinessFunc(func() bool { return be.ready() && ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
	case <-ctx.Done():
	}
	cancel()
	wg.Wait()
}
