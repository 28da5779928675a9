package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gofer/internal/config"
	"gofer/internal/logging"
)

// Recorder is the telemetry sink. Record is fire-and-forget: it never
// blocks the caller and never returns an error. A full buffer drops
// the event rather than slowing the hot path.
type Recorder interface {
	Record(event Event)
	Close() error
}

// Nop returns a recorder that discards every event.
func Nop() Recorder {
	return nopRecorder{}
}

type nopRecorder struct{}

func (nopRecorder) Record(Event) {}
func (nopRecorder) Close() error { return nil }

// FileRecorder writes events as JSONL to a file under the config
// directory, draining a buffered channel from a single goroutine.
type FileRecorder struct {
	events       chan Event
	done         chan struct{}
	file         *os.File
	maxResultLen int
	closeOnce    sync.Once
	dropped      int64
	mu           sync.Mutex
}

// NewFileRecorder opens (or creates) telemetry.jsonl in configDir and
// starts the background writer.
func NewFileRecorder(configDir string, cfg config.TelemetryConfig) (*FileRecorder, error) {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create telemetry directory: %w", err)
	}

	path := filepath.Join(configDir, "telemetry.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open telemetry file: %w", err)
	}

	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	r := &FileRecorder{
		events:       make(chan Event, bufferSize),
		done:         make(chan struct{}),
		file:         file,
		maxResultLen: cfg.MaxResultLen,
	}

	go r.drain()

	return r, nil
}

// Record enqueues an event for writing. Never blocks.
func (r *FileRecorder) Record(event Event) {
	event.Args = SanitizeArgs(event.Args)
	event.Result = TruncateResult(event.Result, r.maxResultLen)

	select {
	case r.events <- event:
	default:
		r.mu.Lock()
		r.dropped++
		r.mu.Unlock()
	}
}

// Dropped returns the number of events discarded due to a full buffer.
func (r *FileRecorder) Dropped() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Close stops the writer after draining buffered events.
func (r *FileRecorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.events)
		<-r.done
	})
	return r.file.Close()
}

func (r *FileRecorder) drain() {
	defer close(r.done)

	for event := range r.events {
		line, err := json.Marshal(event)
		if err != nil {
			logging.Warn("failed to marshal telemetry event", "error", err)
			continue
		}
		line = append(line, '\n')
		if _, err := r.file.Write(line); err != nil {
			logging.Warn("failed to write telemetry event", "error", err)
		}
	}
}
