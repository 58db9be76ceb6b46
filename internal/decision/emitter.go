package decision

import (
	"encoding/json"
	"os"
	"sync"
)

// Emitter emits a single finalized decision event.
type Emitter interface {
	Emit(event *Event)
}

// FileEmitter appends one NDJSON line per event to an append-only file.
type FileEmitter struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileEmitter opens (creating if necessary) path for append.
func NewFileEmitter(path string) (*FileEmitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileEmitter{file: f}, nil
}

// Emit marshals event as one JSON line. Marshal/write failures are
// swallowed here on purpose — mirroring the teacher's "don't let telemetry
// crash the host call" posture.
func (f *FileEmitter) Emit(event *Event) {
	b, err := json.Marshal(event)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.file.Write(b)
	f.file.Write([]byte("\n"))
}

// Close closes the underlying file.
func (f *FileEmitter) Close() error {
	return f.file.Close()
}

// NullEmitter discards every event. Used by tests and dry-run paths.
type NullEmitter struct{}

func (NullEmitter) Emit(*Event) {}

var _ Emitter = (*FileEmitter)(nil)
var _ Emitter = NullEmitter{}
