package journal

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/loomrun/coreagent/pkg/models"
)

// JSONLStore is the mandatory session journal backend (spec 4.K): one
// models.MarshalMessage record per line, appended write-through.
//
// Unlike the buffered async writer internal/audit/logger.go uses for
// high-volume telemetry, JSONLStore writes and flushes synchronously on
// every Append: a journal record that never made it to disk is exactly
// the "silently dropped record" the format's doc comment forbids, so
// there is no buffer to lose it from.
type JSONLStore struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// OpenJSONL opens (creating if necessary) the journal file at path for
// appending, and returns a Store backed by it.
func OpenJSONL(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	return &JSONLStore{path: path, file: f}, nil
}

// Append encodes m as one JSON line and writes it through to disk.
func (s *JSONLStore) Append(m models.Message) error {
	data, err := models.MarshalMessage(m)
	if err != nil {
		return fmt.Errorf("journal: marshal %T: %w", m, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return s.file.Sync()
}

// ReadAll reconstructs the message list in insertion order by reading
// the journal file line by line.
//
// A malformed record in the middle of the file is a reported error,
// since it means some record was corrupted after being successfully
// written. The one exception is a truncated final line with no trailing
// newline: that shape only arises when a writer crashed mid-Append
// before the line completed, so the record was never durably appended
// in the first place, and is dropped rather than failing the whole
// read.
func (s *JSONLStore) ReadAll() (models.MessageList, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.MessageList{}, nil
		}
		return nil, fmt.Errorf("journal: open %s for read: %w", s.path, err)
	}
	defer f.Close()

	var out models.MessageList
	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		trimmed := bytes.TrimRight(line, "\n")
		if len(trimmed) > 0 {
			m, parseErr := models.UnmarshalMessage(trimmed)
			switch {
			case parseErr == nil:
				out = append(out, m)
			case readErr == io.EOF:
				// Truncated final line, no trailing newline: the record
				// was never durably appended, so drop it rather than
				// failing the whole read.
			default:
				return nil, fmt.Errorf("journal: corrupt record: %w", parseErr)
			}
		}
		if readErr != nil {
			break
		}
	}
	if out == nil {
		out = models.MessageList{}
	}
	return out, nil
}

// Close closes the underlying file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
