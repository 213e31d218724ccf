package protocol

// EventKind is the outcome of feeding one byte to the Assembler.
type EventKind int

const (
	Incomplete EventKind = iota
	CommandReady
	Overflow
)

func (k EventKind) String() string {
	switch k {
	case Incomplete:
		return "incomplete"
	case CommandReady:
		return "command_ready"
	case Overflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// Event is produced by the Assembler. Line is set only for CommandReady.
type Event struct {
	Kind EventKind
	Line string
}

// Assembler turns received bytes into command lines terminated by CR LF.
// Partial input is retained across calls until it completes or overflows.
// Not safe for concurrent use; the poll loop owns it.
type Assembler struct {
	buf *LineBuffer
}

func NewAssembler(capacity int) *Assembler {
	return &Assembler{buf: NewLineBuffer(capacity)}
}

// FeedByte appends b and reports whether a line completed or the buffer
// overflowed. Completion is checked first, so a line that exactly fills the
// buffer with its terminator is accepted.
func (a *Assembler) FeedByte(b byte) Event {
	if err := a.buf.Append(b); err != nil {
		// Unreachable while the overflow reset below holds; recover the same way.
		a.buf.Reset()
		return Event{Kind: Overflow}
	}
	if line, ok := a.buf.TakeLine(); ok {
		return Event{Kind: CommandReady, Line: line}
	}
	if a.buf.Full() {
		a.buf.Reset()
		return Event{Kind: Overflow}
	}
	return Event{Kind: Incomplete}
}

// Feed applies FeedByte to every byte of p and calls emit for each
// CommandReady or Overflow event, in order. It returns the number of events.
func (a *Assembler) Feed(p []byte, emit func(Event)) int {
	n := 0
	for _, b := range p {
		ev := a.FeedByte(b)
		if ev.Kind == Incomplete {
			continue
		}
		n++
		if emit != nil {
			emit(ev)
		}
	}
	return n
}

// Buffered returns the number of bytes of the pending partial line.
func (a *Assembler) Buffered() int { return a.buf.Len() }

// Free is the room left before the pending line overflows.
func (a *Assembler) Free() int { return a.buf.Free() }

func (a *Assembler) Cap() int { return a.buf.Cap() }

// Reset drops any partial line.
func (a *Assembler) Reset() { a.buf.Reset() }
