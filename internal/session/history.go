package session

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"expensechat/internal/domain"
)

// writeFunc is used to write content so tests can inject a failing implementation.
type writeFunc func(f *os.File, data []byte) (int, error)

// marshalFunc is the JSON marshaling function; tests may replace it to force errors.
type marshalFunc func(v any) ([]byte, error)

// HistoryStore persists one channel's conversation to a JSONL file (one
// domain.Message per line). Only user and assistant turns are kept; system
// and tool turns belong to a single exchange and are never replayed.
type HistoryStore struct {
	mu        sync.Mutex
	path      string
	writeFn   writeFunc   // nil means use f.Write
	marshalFn marshalFunc // nil means use json.Marshal
}

// NewHistoryStore returns a HistoryStore that reads/writes to the given JSONL file path.
func NewHistoryStore(path string) *HistoryStore {
	return &HistoryStore{path: path}
}

// DirFactory returns a factory creating one HistoryStore per channel under
// dir. Channel ids are escaped so they cannot leave dir. The directory is
// created on first use.
func DirFactory(dir string) func(channelID string) domain.ConversationStore {
	return func(channelID string) domain.ConversationStore {
		return NewHistoryStore(filepath.Join(dir, url.PathEscape(channelID)+".jsonl"))
	}
}

// Append writes msg as a single line. Turns other than user and assistant
// text are ignored.
func (h *HistoryStore) Append(msg domain.Message) error {
	if msg.Role != domain.RoleUser && msg.Role != domain.RoleAssistant {
		return nil
	}
	msg.ToolCalls = nil
	msg.ToolCallID = ""

	marshal := json.Marshal
	if h.marshalFn != nil {
		marshal = h.marshalFn
	}
	data, err := marshal(msg)
	if err != nil {
		return fmt.Errorf("history append: %w", err)
	}
	data = append(data, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(h.path), 0700); err != nil {
		return fmt.Errorf("history mkdir: %w", err)
	}
	f, err := os.OpenFile(h.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	var writeErr error
	if h.writeFn != nil {
		_, writeErr = h.writeFn(f, data)
	} else {
		_, writeErr = f.Write(data)
	}
	closeErr := f.Close()
	if writeErr != nil {
		return writeErr
	}
	return closeErr
}

// LoadHistory reads the last n messages from the history file.
// Returns empty slice when the file does not exist or n <= 0.
func (h *HistoryStore) LoadHistory(n int) ([]domain.Message, error) {
	if n <= 0 {
		return nil, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	f, err := os.Open(h.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	// Keep a ring of the last n non-empty lines.
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) > n {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, 0, len(lines))
	for _, line := range lines {
		var msg domain.Message
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue // skip corrupt lines
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// Ensure HistoryStore implements domain.ConversationStore.
var _ domain.ConversationStore = (*HistoryStore)(nil)
