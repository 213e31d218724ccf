package protocol

// DefaultBufferSize is the receive line capacity, terminator included.
const DefaultBufferSize = 32

var crlf = [2]byte{'\r', '\n'}

// LineBuffer is a fixed-capacity, append-only byte buffer holding one
// partially received command line. It never grows past its capacity.
type LineBuffer struct {
	buf []byte
}

// NewLineBuffer returns an empty buffer holding at most capacity bytes.
// Capacities below 2 cannot hold a terminator and are raised to 2.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity < len(crlf) {
		capacity = len(crlf)
	}
	return &LineBuffer{buf: make([]byte, 0, capacity)}
}

func (b *LineBuffer) Len() int  { return len(b.buf) }
func (b *LineBuffer) Cap() int  { return cap(b.buf) }
func (b *LineBuffer) Free() int { return cap(b.buf) - len(b.buf) }
func (b *LineBuffer) Full() bool {
	return len(b.buf) == cap(b.buf)
}

// Append adds one byte or returns ErrBufferFull.
func (b *LineBuffer) Append(c byte) error {
	if b.Full() {
		return ErrBufferFull
	}
	b.buf = append(b.buf, c)
	return nil
}

// HasTerminator reports whether the last two bytes are CR LF.
func (b *LineBuffer) HasTerminator() bool {
	n := len(b.buf)
	return n >= 2 && b.buf[n-2] == crlf[0] && b.buf[n-1] == crlf[1]
}

// TakeLine returns the buffered line without its CR LF and empties the
// buffer. It returns false, leaving the buffer untouched, when no terminator
// is present.
func (b *LineBuffer) TakeLine() (string, bool) {
	if !b.HasTerminator() {
		return "", false
	}
	line := string(b.buf[:len(b.buf)-2])
	b.Reset()
	return line, true
}

// Reset discards all buffered bytes.
func (b *LineBuffer) Reset() { b.buf = b.buf[:0] }
