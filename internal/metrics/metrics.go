package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/sensor-streamer/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series
var (
	RxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamer_rx_bytes_total",
		Help: "Total bytes received from the host transport.",
	})
	TxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamer_tx_bytes_total",
		Help: "Total bytes written to the host transport.",
	})
	Commands = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamer_commands_total",
		Help: "Completed command lines by command kind.",
	}, []string{"command"})
	CommandOverflows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamer_command_overflows_total",
		Help: "Command lines discarded because the receive buffer filled without a terminator.",
	})
	UnrecognizedCommands = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamer_unrecognized_commands_total",
		Help: "Completed command lines that matched no grammar entry.",
	})
	HeartbeatExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamer_heartbeat_expired_total",
		Help: "Times all subscriptions were dropped after host silence.",
	})
	FramesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamer_frames_sent_total",
		Help: "Binary data frames written, by channel.",
	}, []string{"channel"})
	ActiveChannels = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "streamer_active_channels",
		Help: "Number of currently subscribed channels.",
	})
	SensorDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamer_sensor_dropped_total",
		Help: "Sensor payloads dropped because the send queue was full.",
	})
	PeerRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamer_peer_rejected_total",
		Help: "TCP peers rejected because another host was already attached.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrTransportRead  = "transport_read"
	ErrTransportWrite = "transport_write"
	ErrSensorOverflow = "sensor_overflow"
	ErrSensorSend     = "sensor_send"
	ErrAccept         = "accept"
)

// Command label constants
const (
	CmdConfig         = "config"
	CmdSubscribe      = "subscribe"
	CmdUnsubscribe    = "unsubscribe"
	CmdUnsubscribeAll = "unsubscribe_all"
	CmdHeartbeat      = "heartbeat"
	CmdUnrecognized   = "unrecognized"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	srv := &http.Server{
		Addr:    addr,
		Handler: newMux(),
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	return mux
}

// Local mirrored counters for the periodic snapshot log line.
var (
	localRxBytes      uint64
	localTxBytes      uint64
	localCommands     uint64
	localOverflows    uint64
	localUnrecognized uint64
	localExpired      uint64
	localFrames       uint64
	localActive       uint64
	localSensorDrop   uint64
	localPeerReject   uint64
	localErrors       uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	RxBytes        uint64
	TxBytes        uint64
	Commands       uint64
	Overflows      uint64
	Unrecognized   uint64
	HeartbeatExp   uint64
	FramesSent     uint64
	ActiveChannels uint64
	SensorDrops    uint64
	PeerRejects    uint64
	Errors         uint64 // sum across error labels
}

func Snap() Snapshot {
	return Snapshot{
		RxBytes:        atomic.LoadUint64(&localRxBytes),
		TxBytes:        atomic.LoadUint64(&localTxBytes),
		Commands:       atomic.LoadUint64(&localCommands),
		Overflows:      atomic.LoadUint64(&localOverflows),
		Unrecognized:   atomic.LoadUint64(&localUnrecognized),
		HeartbeatExp:   atomic.LoadUint64(&localExpired),
		FramesSent:     atomic.LoadUint64(&localFrames),
		ActiveChannels: atomic.LoadUint64(&localActive),
		SensorDrops:    atomic.LoadUint64(&localSensorDrop),
		PeerRejects:    atomic.LoadUint64(&localPeerReject),
		Errors:         atomic.LoadUint64(&localErrors),
	}
}

func AddRxBytes(n int) {
	if n <= 0 {
		return
	}
	RxBytes.Add(float64(n))
	atomic.AddUint64(&localRxBytes, uint64(n))
}

func AddTxBytes(n int) {
	if n <= 0 {
		return
	}
	TxBytes.Add(float64(n))
	atomic.AddUint64(&localTxBytes, uint64(n))
}

// IncCommand counts one dispatched line under the given command label.
func IncCommand(label string) {
	Commands.WithLabelValues(label).Inc()
	atomic.AddUint64(&localCommands, 1)
	if label == CmdUnrecognized {
		UnrecognizedCommands.Inc()
		atomic.AddUint64(&localUnrecognized, 1)
	}
}

func IncOverflow() {
	CommandOverflows.Inc()
	atomic.AddUint64(&localOverflows, 1)
}

func IncHeartbeatExpired() {
	HeartbeatExpired.Inc()
	atomic.AddUint64(&localExpired, 1)
}

// IncFrameSent counts one data frame on channel ch.
func IncFrameSent(ch uint8) {
	FramesSent.WithLabelValues(strconv.Itoa(int(ch))).Inc()
	atomic.AddUint64(&localFrames, 1)
}

func SetActiveChannels(n int) {
	ActiveChannels.Set(float64(n))
	atomic.StoreUint64(&localActive, uint64(n))
}

func IncSensorDrop() {
	SensorDropped.Inc()
	atomic.AddUint64(&localSensorDrop, 1)
}

func IncPeerReject() {
	PeerRejected.Inc()
	atomic.AddUint64(&localPeerReject, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register label series so dashboards see zeros instead of gaps.
	for _, lbl := range []string{
		ErrTransportRead, ErrTransportWrite,
		ErrSensorOverflow, ErrSensorSend, ErrAccept,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
	for _, lbl := range []string{
		CmdConfig, CmdSubscribe, CmdUnsubscribe,
		CmdUnsubscribeAll, CmdHeartbeat, CmdUnrecognized,
	} {
		Commands.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // not set yet: report ready so the probe doesn't flap during startup
		return true
	}
	return fn()
}
