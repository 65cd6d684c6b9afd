package audit

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/opensec-dev/bastion/internal/redact"
)

// defaultMaxLogBytes is the size at which the trail rolls over to a .1
// backup. One decision produces well under a kilobyte of events, so this
// holds weeks of traffic for a busy agent fleet.
const defaultMaxLogBytes = 10 << 20

// JSONL appends events to a newline-delimited JSON file, one event per
// line. The file is created 0600; prompts are redacted before they touch
// disk, so the trail itself never becomes a secret store.
type JSONL struct {
	path     string
	maxBytes int64

	mu   sync.Mutex
	file *os.File
	size int64
}

// NewJSONL opens (or creates) the audit trail at path.
func NewJSONL(path string) (*JSONL, error) {
	return newJSONL(path, defaultMaxLogBytes)
}

func newJSONL(path string, maxBytes int64) (*JSONL, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	return &JSONL{path: path, maxBytes: maxBytes, file: file, size: info.Size()}, nil
}

func (l *JSONL) Write(event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Redact sensitive data before logging
	event.Prompt = redact.All(event.Prompt)
	if event.Detail != "" {
		event.Detail = redact.Secrets(event.Detail)
	}
	if event.Error != "" {
		event.Error = redact.Secrets(event.Error)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if l.size+int64(len(data)) > l.maxBytes {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.file.Write(data)
	l.size += int64(n)
	return err
}

// rotate moves the current trail aside as <path>.1 and starts fresh. A
// single backup generation is enough; the SQLite mirror holds the long
// tail.
func (l *JSONL) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil && !os.IsNotExist(err) {
		return err
	}
	file, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	l.file = file
	l.size = 0
	return nil
}

func (l *JSONL) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
