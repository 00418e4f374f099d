package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Murilovisque/logs/v3"
)

type Action string

const (
	ActionBlocked   Action = "blocked"
	ActionUnblocked Action = "unblocked"
)

// BlockEvent is one immutable lifecycle record. Events are appended, never
// mutated; ordering by timestamp is insertion order.
type BlockEvent struct {
	Time   time.Time `json:"time"`
	IP     string    `json:"ip"`
	Action Action    `json:"action"`
}

// ErrCorrupt marks a store file whose content could not be decoded. Callers
// treat the working set as empty; the error only keeps the distinction alive.
var ErrCorrupt = errors.New("block store content is corrupt")

// Store persists the event log as a single JSON array. It is the sole owner
// of the durable representation. Load/Append/Rewrite are not internally
// synchronized; callers sharing a store must serialize mutations.
type Store struct {
	path   string
	logger logs.Logger
}

func New(path string) *Store {
	return &Store{
		path:   path,
		logger: logs.NewChildLogger(logs.FixedFieldValue("component", "store")),
	}
}

// Load deserializes the persisted log. A missing file yields an empty
// sequence and no error.
func (s *Store) Load() ([]BlockEvent, error) {
	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read block store '%s' failed. Error: %w", s.path, err)
	}
	var events []BlockEvent
	if err := json.Unmarshal(b, &events); err != nil {
		return nil, fmt.Errorf("%w: '%s': %v", ErrCorrupt, s.path, err)
	}
	return events, nil
}

// Append reads the full log, appends the event and rewrites the file. An
// unreadable or corrupt log degrades to an empty working set so that the
// event is still recorded.
func (s *Store) Append(ev BlockEvent) error {
	events, err := s.Load()
	if err != nil {
		s.logger.Errorf("block store unreadable, treating as empty. Error: %v", err)
		events = nil
	}
	return s.Rewrite(append(events, ev))
}

// Rewrite replaces the persisted log with the given sequence. The write goes
// through a temp file and a rename so readers never observe a partial file.
func (s *Store) Rewrite(events []BlockEvent) error {
	if events == nil {
		events = []BlockEvent{}
	}
	b, err := json.MarshalIndent(events, "", "    ")
	if err != nil {
		return fmt.Errorf("encode block store failed. Error: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create block store dir '%s' failed. Error: %w", dir, err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write block store '%s' failed. Error: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace block store '%s' failed. Error: %w", s.path, err)
	}
	return nil
}

// ActiveBlocks returns every unpruned event with action blocked. The list may
// contain entries for addresses that were manually unblocked since; those
// stay visible until the next expiry sweep prunes them.
func (s *Store) ActiveBlocks() []BlockEvent {
	events, err := s.Load()
	if err != nil {
		s.logger.Errorf("block store unreadable, no active blocks known. Error: %v", err)
		return nil
	}
	var active []BlockEvent
	for _, ev := range events {
		if ev.Action == ActionBlocked {
			active = append(active, ev)
		}
	}
	return active
}
