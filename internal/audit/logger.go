package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

type Event struct {
	At      string `json:"at"`
	Actor   string `json:"actor"`
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Logger records account and feed activity. Implementations must be safe for
// concurrent use.
type Logger interface {
	Log(actor, action, target, outcome, detail string) error
}

func newEvent(now time.Time, actor, action, target, outcome, detail string) Event {
	return Event{
		At:      now.UTC().Format(time.RFC3339),
		Actor:   actor,
		Action:  action,
		Target:  target,
		Outcome: outcome,
		Detail:  detail,
	}
}

// FileLogger appends one JSON object per line to a file.
type FileLogger struct {
	path    string
	nowFunc func() time.Time

	mu sync.Mutex
}

func NewFileLogger(path string) *FileLogger {
	return &FileLogger{path: path, nowFunc: time.Now}
}

func (l *FileLogger) Log(actor, action, target, outcome, detail string) error {
	if l == nil || l.path == "" {
		return nil
	}
	b, err := json.Marshal(newEvent(l.nowFunc(), actor, action, target, outcome, detail))
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write audit log entry: %w", err)
	}
	return nil
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Logger

func (m Multi) Log(actor, action, target, outcome, detail string) error {
	var errs []error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.Log(actor, action, target, outcome, detail); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
