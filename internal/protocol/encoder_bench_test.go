package protocol

import "testing"

type nopTransport struct{}

func (nopTransport) Receive(p []byte) (int, error) { return 0, nil }
func (nopTransport) Send(p []byte) error           { return nil }

func BenchmarkEncoderSendAudio(b *testing.B) {
	r := NewRegistry(Audio)
	_ = r.SetActive(Audio, true)
	e := NewEncoder(r, nopTransport{}, nil)
	payload := make([]byte, 2048)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = e.Send(Audio, payload)
	}
}

func BenchmarkEncoderSendInactive(b *testing.B) {
	r := NewRegistry(Audio)
	e := NewEncoder(r, nopTransport{}, nil)
	payload := make([]byte, 2048)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = e.Send(Audio, payload)
	}
}
