package reqlog

import (
	"fmt"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Logger receives request log events. Implementations must be safe for
// concurrent use and must not block.
type Logger interface {
	Log(event Event)
}

type NoopLogger struct{}

func (NoopLogger) Log(Event) {}

var _ Logger = NoopLogger{}

// fileEncMode writes timestamps with nanosecond precision so events from one
// burst of frames keep their order when read back.
var fileEncMode = func() cbor.EncMode {
	mode, err := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("reqlog: cbor encoder mode: %v", err))
	}
	return mode
}()

// FileLogger appends CBOR encoded events to a file.
type FileLogger struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
}

func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		file:    f,
		encoder: fileEncMode.NewEncoder(f),
	}, nil
}

func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	// A failed write must not disturb the session.
	_ = l.encoder.Encode(event)
}

// Close is idempotent. Events logged after Close are dropped.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)

// Memory keeps the last Capacity events.
type Memory struct {
	mu     sync.Mutex
	events []Event
	start  int
	size   int
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 200
	}
	return &Memory{events: make([]Event, capacity)}
}

func (m *Memory) Log(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := (m.start + m.size) % len(m.events)
	m.events[idx] = event
	if m.size < len(m.events) {
		m.size++
	} else {
		m.start = (m.start + 1) % len(m.events)
	}
}

// Events returns the retained events, oldest first.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	res := make([]Event, 0, m.size)
	for i := 0; i < m.size; i++ {
		res = append(res, m.events[(m.start+i)%len(m.events)])
	}
	return res
}

// Clear drops every retained event.
func (m *Memory) Clear() {
	m.mu.Lock()
	m.start, m.size = 0, 0
	m.mu.Unlock()
}

var _ Logger = (*Memory)(nil)

// Multi fans events out to several loggers. Nil entries are skipped.
type Multi []Logger

func (m Multi) Log(event Event) {
	for _, l := range m {
		if l != nil {
			l.Log(event)
		}
	}
}

// Tagged stamps every event with the session id returned by id.
func Tagged(l Logger, id func() string) Logger {
	return &tagged{next: l, id: id}
}

type tagged struct {
	next Logger
	id   func() string
}

func (t *tagged) Log(event Event) {
	if event.SessionID == "" {
		event.SessionID = t.id()
	}
	t.next.Log(event)
}
