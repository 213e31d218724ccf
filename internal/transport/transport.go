package transport

// PacketSink accepts sensor packets for delivery.
type PacketSink interface {
	Enqueue(Packet) error
}

var _ PacketSink = (*AsyncTx)(nil)
