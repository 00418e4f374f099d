package lifecycle

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"block-watch/domain/audit"
	"block-watch/domain/firewall"
	"block-watch/domain/store"
)

type fakeExecutor struct {
	mu     sync.Mutex
	calls  []string
	errIn  error
	errOut error
}

func (f *fakeExecutor) Apply(direction firewall.Direction, mode firewall.Mode, ip net.IP) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s %s %s", direction, mode, ip))
	if direction == firewall.DirectionInbound {
		return f.errIn
	}
	return f.errOut
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestManager(t *testing.T, fe *fakeExecutor, ttl time.Duration) (*Manager, *store.Store, *audit.Logger) {
	t.Helper()
	m, st, aud, _ := newTestManagerDir(t, fe, ttl)
	return m, st, aud
}

func newTestManagerDir(t *testing.T, fe *fakeExecutor, ttl time.Duration) (*Manager, *store.Store, *audit.Logger, string) {
	t.Helper()
	dir := t.TempDir()
	st := store.New(filepath.Join(dir, "blocklist.json"))
	aud := audit.New(filepath.Join(dir, "actions.log"))
	return NewManager(fe, st, aud, ttl), st, aud, dir
}

func TestBlockBothDirectionsSucceed(t *testing.T) {
	fe := &fakeExecutor{}
	m, st, _ := newTestManager(t, fe, time.Hour)
	if !m.Block("198.51.100.7") {
		t.Fatal("Block must return true when both directions succeed")
	}
	events, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Action != store.ActionBlocked {
		t.Fatalf("expected one blocked event, got %+v", events)
	}
	if fe.callCount() != 2 {
		t.Fatalf("expected 2 executor calls, got %d", fe.callCount())
	}
}

func TestBlockPartialSuccessStillRecords(t *testing.T) {
	fe := &fakeExecutor{errOut: &firewall.CommandError{Stderr: "no chain"}}
	m, st, _ := newTestManager(t, fe, time.Hour)
	if m.Block("198.51.100.7") {
		t.Fatal("Block must return false when one direction fails")
	}
	events, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Action != store.ActionBlocked {
		t.Fatalf("partial success must still append a blocked event, got %+v", events)
	}
}

func TestBlockBothDirectionsFailRecordsNothing(t *testing.T) {
	fe := &fakeExecutor{errIn: firewall.ErrTimeout, errOut: firewall.ErrTimeout}
	m, st, _ := newTestManager(t, fe, time.Hour)
	if m.Block("198.51.100.7") {
		t.Fatal("Block must return false when both directions fail")
	}
	events, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 0 {
		t.Fatalf("no event may be appended without a successful direction, got %+v", events)
	}
}

func TestBlockInvalidIP(t *testing.T) {
	fe := &fakeExecutor{}
	m, st, _ := newTestManager(t, fe, time.Hour)
	if m.Block("not-an-ip") {
		t.Fatal("Block must return false for an invalid IP")
	}
	if fe.callCount() != 0 {
		t.Fatal("invalid IP must not reach the executor")
	}
	if events, _ := st.Load(); len(events) != 0 {
		t.Fatal("invalid IP must not be recorded")
	}
}

func TestDoubleBlockKeepsAddressActive(t *testing.T) {
	fe := &fakeExecutor{}
	m, st, _ := newTestManager(t, fe, time.Hour)
	m.Block("198.51.100.7")
	m.Block("198.51.100.7")
	events, _ := st.Load()
	if len(events) != 2 {
		t.Fatalf("expected two blocked events, got %d", len(events))
	}
	active := m.ListActive()
	found := false
	for _, ev := range active {
		if ev.IP == "198.51.100.7" {
			found = true
		}
	}
	if !found {
		t.Fatal("ActiveBlocks must still report the address as blocked")
	}
}

func TestManualUnblockLeavesStaleBlockedEvent(t *testing.T) {
	fe := &fakeExecutor{}
	m, st, _ := newTestManager(t, fe, time.Hour)
	m.Block("198.51.100.7")
	if !m.Unblock("198.51.100.7") {
		t.Fatal("Unblock must return true when both directions succeed")
	}
	events, _ := st.Load()
	if len(events) != 2 {
		t.Fatalf("expected blocked and unblocked events, got %+v", events)
	}
	// documented stale-state behavior: the blocked event stays visible
	// until the next sweep prunes it
	active := m.ListActive()
	if len(active) != 1 || active[0].IP != "198.51.100.7" {
		t.Fatalf("manually unblocked address must stay in ActiveBlocks, got %+v", active)
	}
}

func TestBlockProceedsOverCorruptStore(t *testing.T) {
	fe := &fakeExecutor{}
	m, st, _, dir := newTestManagerDir(t, fe, time.Hour)
	if err := os.WriteFile(filepath.Join(dir, "blocklist.json"), []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !m.Block("203.0.113.9") {
		t.Fatal("a corrupt store must not fail the block action")
	}
	events, err := st.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 {
		t.Fatalf("expected a fresh store with one event, got %+v", events)
	}
}

func TestPruneExpiredKeepsUndueBlocks(t *testing.T) {
	fe := &fakeExecutor{}
	m, st, _ := newTestManager(t, fe, time.Hour)
	t0 := time.Now()
	mustRewrite(t, st, []store.BlockEvent{
		{Time: t0, IP: "198.51.100.7", Action: store.ActionBlocked},
	})
	if pruned := m.PruneExpired(t0.Add(30 * time.Minute)); pruned != 0 {
		t.Fatalf("nothing is due yet, pruned %d", pruned)
	}
	if events, _ := st.Load(); len(events) != 1 {
		t.Fatal("undue blocked event must survive the sweep unchanged")
	}
	if fe.callCount() != 0 {
		t.Fatal("no reversal may run before the deadline")
	}
}

func TestPruneExpiredReversesDueBlocks(t *testing.T) {
	fe := &fakeExecutor{}
	m, st, aud := newTestManager(t, fe, time.Hour)
	t0 := time.Now().Add(-61 * time.Minute)
	mustRewrite(t, st, []store.BlockEvent{
		{Time: t0, IP: "198.51.100.7", Action: store.ActionBlocked},
	})
	if pruned := m.PruneExpired(time.Now()); pruned != 1 {
		t.Fatal("due blocked event must be reversed and pruned")
	}
	if events, _ := st.Load(); len(events) != 0 {
		t.Fatal("pruned event must be absent from the store")
	}
	if len(m.ListActive()) != 0 {
		t.Fatal("ActiveBlocks must no longer include the address")
	}
	lines, err := aud.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], string(store.ActionUnblocked)) {
		t.Fatalf("sweep reversal must leave an unblocked audit line, got %v", lines)
	}
}

func TestPruneExpiredRetriesFailedReversal(t *testing.T) {
	fe := &fakeExecutor{errIn: firewall.ErrTimeout, errOut: firewall.ErrTimeout}
	m, st, _ := newTestManager(t, fe, time.Hour)
	t0 := time.Now().Add(-2 * time.Hour)
	mustRewrite(t, st, []store.BlockEvent{
		{Time: t0, IP: "198.51.100.7", Action: store.ActionBlocked},
	})
	if pruned := m.PruneExpired(time.Now()); pruned != 0 {
		t.Fatal("failed reversal must not prune")
	}
	events, _ := st.Load()
	if len(events) != 1 || !events[0].Time.Equal(t0) {
		t.Fatalf("failed reversal must keep the event unchanged, got %+v", events)
	}

	// next tick, enforcement recovered
	fe.mu.Lock()
	fe.errIn, fe.errOut = nil, nil
	fe.mu.Unlock()
	if pruned := m.PruneExpired(time.Now()); pruned != 1 {
		t.Fatal("recovered reversal must prune on the next tick")
	}
	if events, _ := st.Load(); len(events) != 0 {
		t.Fatal("event must be gone after the retried sweep")
	}
}

func TestPruneExpiredKeepsUnblockedEvents(t *testing.T) {
	fe := &fakeExecutor{}
	m, st, _ := newTestManager(t, fe, time.Hour)
	old := time.Now().Add(-3 * time.Hour)
	mustRewrite(t, st, []store.BlockEvent{
		{Time: old, IP: "203.0.113.9", Action: store.ActionUnblocked},
	})
	m.PruneExpired(time.Now())
	events, _ := st.Load()
	if len(events) != 1 || events[0].Action != store.ActionUnblocked {
		t.Fatalf("unblocked events are never pruned, got %+v", events)
	}
}

func TestRecentAuditLines(t *testing.T) {
	fe := &fakeExecutor{}
	m, _, _ := newTestManager(t, fe, time.Hour)
	m.Block("198.51.100.7")
	m.Unblock("198.51.100.7")
	lines := m.RecentAuditLines(1)
	if len(lines) != 1 || !strings.Contains(lines[0], string(store.ActionUnblocked)) {
		t.Fatalf("expected only the latest line, got %v", lines)
	}
	if got := m.RecentAuditLines(10); len(got) != 2 {
		t.Fatalf("expected both lines, got %v", got)
	}
}

func mustRewrite(t *testing.T, st *store.Store, events []store.BlockEvent) {
	t.Helper()
	if err := st.Rewrite(events); err != nil {
		t.Fatal(err)
	}
}
