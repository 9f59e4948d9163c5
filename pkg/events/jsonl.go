package events

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// lineMarker prefixes every structured record so event lines remain
// recognizable even if the file is shared with plain log output.
const lineMarker = "EVENT_JSON "

// DefaultReadLimit bounds ReadRecent when the caller passes no limit
const DefaultReadLimit = 500

// JSONLSink appends marker-prefixed JSON lines to a file and reads them
// back with a linear scan. A mutex serializes writers so concurrent
// appends never produce interleaved partial records.
type JSONLSink struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// NewJSONLSink creates or opens the audit file at path, creating parent
// directories as needed.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLSink{path: path, f: f}, nil
}

// Append implements Sink
func (s *JSONLSink) Append(ctx context.Context, e *Event) error {
	if e == nil {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	line := make([]byte, 0, len(lineMarker)+len(data)+1)
	line = append(line, lineMarker...)
	line = append(line, data...)
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.f.Write(line)
	return err
}

// ReadRecent implements Sink. Lines missing the marker or holding
// malformed JSON are skipped; they never fail the read.
func (s *JSONLSink) ReadRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultReadLimit
	}

	s.mu.Lock()
	_ = s.f.Sync()
	s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []Event
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		idx := bytes.Index(line, []byte(lineMarker))
		if idx < 0 {
			continue
		}
		payload := bytes.TrimSpace(line[idx+len(lineMarker):])
		var e Event
		if err := json.Unmarshal(payload, &e); err != nil {
			continue
		}
		out = append(out, e)
	}

	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// Close closes the underlying file
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
