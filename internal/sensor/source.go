package sensor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kstaniek/sensor-streamer/internal/protocol"
)

// ErrUnsupported is returned for channel specs no simulated source can produce.
var ErrUnsupported = errors.New("sensor: unsupported channel spec")

// Source produces one frame payload per Interval for a protocol channel.
// Next is only called from a single goroutine.
type Source interface {
	Channel() protocol.Channel
	Interval() time.Duration
	Next() []byte
}

// frameInterval is how long it takes to acquire n samples at rate Hz.
func frameInterval(n, rate int) time.Duration {
	return time.Duration(n) * time.Second / time.Duration(rate)
}

// Microphone synthesizes a sine tone as little-endian s16 samples.
type Microphone struct {
	ch     protocol.Channel
	rate   int
	rows   int // sample instants per frame
	n      int // values per frame, rows x channels
	toneHz float64
	amp    float64
	phase  float64
	buf    []byte
}

// NewMicrophone builds a tone generator for an s16 channel. Shape is
// [samples, channels]; all channels carry the same tone.
func NewMicrophone(spec protocol.ChannelSpec, toneHz float64) (*Microphone, error) {
	if spec.Datatype != "s16" || len(spec.Shape) == 0 || spec.Shape[0] <= 0 || spec.PayloadSize() == 0 || len(spec.Rates) == 0 || spec.Rates[0] <= 0 {
		return nil, fmt.Errorf("%w: microphone needs s16 with shape and rate (channel %d)", ErrUnsupported, spec.ID)
	}
	return &Microphone{
		ch:     spec.ID,
		rate:   spec.Rates[0],
		rows:   spec.Shape[0],
		n:      spec.PayloadSize() / 2,
		toneHz: toneHz,
		amp:    0.3 * math.MaxInt16,
		buf:    make([]byte, spec.PayloadSize()),
	}, nil
}

func (m *Microphone) Channel() protocol.Channel { return m.ch }

func (m *Microphone) Interval() time.Duration {
	return frameInterval(m.rows, m.rate)
}

// Next returns the following frame. The returned slice is reused.
func (m *Microphone) Next() []byte {
	step := 2 * math.Pi * m.toneHz / float64(m.rate)
	per := m.n / m.rows
	for i := 0; i < m.n; i++ {
		v := int16(m.amp * math.Sin(m.phase))
		binary.LittleEndian.PutUint16(m.buf[2*i:], uint16(v))
		if (i+1)%per != 0 {
			continue
		}
		m.phase += step
		if m.phase > 2*math.Pi {
			m.phase -= 2 * math.Pi
		}
	}
	return m.buf
}

// Accelerometer synthesizes gravity plus a slow wobble as little-endian f32
// x/y/z triples.
type Accelerometer struct {
	ch   protocol.Channel
	rate int
	rows int
	axes int
	t    float64
	buf  []byte
}

// NewAccelerometer builds a generator for an f32 channel with shape [rows, axes].
func NewAccelerometer(spec protocol.ChannelSpec) (*Accelerometer, error) {
	if spec.Datatype != "f32" || len(spec.Shape) != 2 || spec.PayloadSize() == 0 || len(spec.Rates) == 0 || spec.Rates[0] <= 0 {
		return nil, fmt.Errorf("%w: accelerometer needs f32 with 2-d shape and rate (channel %d)", ErrUnsupported, spec.ID)
	}
	return &Accelerometer{
		ch:   spec.ID,
		rate: spec.Rates[0],
		rows: spec.Shape[0],
		axes: spec.Shape[1],
		buf:  make([]byte, spec.PayloadSize()),
	}, nil
}

func (a *Accelerometer) Channel() protocol.Channel { return a.ch }

func (a *Accelerometer) Interval() time.Duration { return frameInterval(a.rows, a.rate) }

// Next returns the following frame. The returned slice is reused.
func (a *Accelerometer) Next() []byte {
	const g = 9.81
	dt := 1 / float64(a.rate)
	off := 0
	for r := 0; r < a.rows; r++ {
		for ax := 0; ax < a.axes; ax++ {
			var v float64
			switch ax {
			case 0:
				v = 0.5 * math.Sin(2*math.Pi*0.5*a.t)
			case 1:
				v = 0.5 * math.Cos(2*math.Pi*0.5*a.t)
			case 2:
				v = g
			}
			binary.LittleEndian.PutUint32(a.buf[off:], math.Float32bits(float32(v)))
			off += 4
		}
		a.t += dt
	}
	return a.buf
}

// FromSpec picks a simulated source by the channel's semantic type.
func FromSpec(spec protocol.ChannelSpec) (Source, error) {
	switch spec.Type {
	case "microphone":
		return NewMicrophone(spec, 440)
	case "accelerometer":
		return NewAccelerometer(spec)
	default:
		return nil, fmt.Errorf("%w: type %q (channel %d)", ErrUnsupported, spec.Type, spec.ID)
	}
}
