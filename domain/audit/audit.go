package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"block-watch/domain/store"

	"github.com/nxadm/tail"
)

// Logger is the append-only action log, one JSON object per line. It is
// independent of the block store: lines are never pruned.
type Logger struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Logger {
	return &Logger{path: path}
}

// Append writes one line for the given lifecycle event.
func (l *Logger) Append(ev store.BlockEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit entry failed. Error: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if dir := filepath.Dir(l.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create audit log dir '%s' failed. Error: %w", dir, err)
		}
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log '%s' failed. Error: %w", l.path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, string(b)); err != nil {
		return fmt.Errorf("append audit log '%s' failed. Error: %w", l.path, err)
	}
	return nil
}

// Recent returns the last n lines of the audit log, oldest first. A missing
// file yields an empty result.
func (l *Logger) Recent(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	b, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read audit log '%s' failed. Error: %w", l.path, err)
	}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if len(sc.Text()) > 0 {
			lines = append(lines, sc.Text())
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Follow tails the audit log from its current end, for display collaborators
// that stream new actions. The caller owns the returned tail and must Stop it.
func (l *Logger) Follow() (*tail.Tail, error) {
	t, err := tail.TailFile(l.path, tail.Config{
		Follow: true,
		ReOpen: true,
		Location: &tail.SeekInfo{
			Offset: 0,
			Whence: io.SeekEnd,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tail audit log '%s' failed. Error: %w", l.path, err)
	}
	return t, nil
}
