package lifecycle

import (
	"net"
	"sync"
	"time"

	"block-watch/domain/audit"
	"block-watch/domain/firewall"
	"block-watch/domain/store"

	"github.com/Murilovisque/logs/v3"
)

// Manager orchestrates block and unblock decisions: it drives the
// enforcement executor for both traffic directions and records the outcome
// in the block store and the audit log.
//
// The mutex serializes every read-modify-write cycle on the store, shared by
// foreground requests and the expiry sweep. Enforcement calls from foreground
// requests run outside the lock and may overlap freely.
type Manager struct {
	executor firewall.Executor
	store    *store.Store
	audit    *audit.Logger
	ttl      time.Duration
	mu       sync.Mutex
	logger   logs.Logger
}

func NewManager(executor firewall.Executor, st *store.Store, aud *audit.Logger, ttl time.Duration) *Manager {
	return &Manager{
		executor: executor,
		store:    st,
		audit:    aud,
		ttl:      ttl,
		logger:   logs.NewChildLogger(logs.FixedFieldValue("component", "lifecycle")),
	}
}

// Block adds DROP rules for the address in both directions. An event is
// recorded as soon as either direction succeeds, so the log stays consistent
// with "we tried". The return value is true only when both directions
// succeeded; false means enforcement is incomplete even though an event may
// already be recorded.
func (m *Manager) Block(ip string) bool {
	return m.apply(ip, firewall.ModeAdd, store.ActionBlocked)
}

// Unblock removes the DROP rules for the address in both directions, under
// the same either-succeeds-record rule as Block. The earlier blocked event
// stays in the store until the next expiry sweep prunes it.
func (m *Manager) Unblock(ip string) bool {
	return m.apply(ip, firewall.ModeRemove, store.ActionUnblocked)
}

func (m *Manager) apply(ipStr string, mode firewall.Mode, action store.Action) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		m.logger.Errorf("received an invalid IP '%s'", ipStr)
		return false
	}
	okIn := m.enforce(firewall.DirectionInbound, mode, ip)
	okOut := m.enforce(firewall.DirectionOutbound, mode, ip)
	if okIn || okOut {
		m.record(store.BlockEvent{Time: time.Now(), IP: ip.String(), Action: action})
		m.logger.Infof("IP '%s' %s (inbound: %t, outbound: %t)", ip, action, okIn, okOut)
	} else {
		m.logger.Errorf("IP '%s' not %s, both directions failed", ip, action)
	}
	return okIn && okOut
}

func (m *Manager) enforce(direction firewall.Direction, mode firewall.Mode, ip net.IP) bool {
	if err := m.executor.Apply(direction, mode, ip); err != nil {
		m.logger.Errorf("%s %s rule for '%s' failed. Error: %v", direction, mode, ip, err)
		return false
	}
	return true
}

// record persists the decision. A store fault never fails the action: the
// audit line and the enforcement already happened, the store degrades to
// "no prior state known".
func (m *Manager) record(ev store.BlockEvent) {
	if err := m.audit.Append(ev); err != nil {
		m.logger.Errorf("audit log write failed. Error: %v", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Append(ev); err != nil {
		m.logger.Errorf("block store write failed. Error: %v", err)
	}
}

// ListActive returns the unpruned blocked events.
func (m *Manager) ListActive() []store.BlockEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.ActiveBlocks()
}

// RecentAuditLines returns the last n audit log lines, oldest first.
func (m *Manager) RecentAuditLines(n int) []string {
	lines, err := m.audit.Recent(n)
	if err != nil {
		m.logger.Errorf("audit log read failed. Error: %v", err)
		return nil
	}
	return lines
}

// PruneExpired runs one expiry sweep over the store: blocked events older
// than the TTL are reversed and dropped, everything else survives. A failed
// reversal keeps its event for the next sweep, so reversal is at-least-once.
// The whole load-reverse-rewrite cycle holds the store lock; a concurrent
// Block or Unblock waits instead of losing its append.
func (m *Manager) PruneExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	events, err := m.store.Load()
	if err != nil {
		m.logger.Errorf("expiry sweep loads nothing. Error: %v", err)
		events = nil
	}
	kept := make([]store.BlockEvent, 0, len(events))
	pruned := 0
	for _, ev := range events {
		if ev.Action != store.ActionBlocked {
			kept = append(kept, ev)
			continue
		}
		if !now.After(ev.Time.Add(m.ttl)) {
			kept = append(kept, ev)
			continue
		}
		if m.reverse(ev, now) {
			pruned++
			continue
		}
		kept = append(kept, ev)
	}
	if err := m.store.Rewrite(kept); err != nil {
		m.logger.Errorf("expiry sweep rewrite failed. Error: %v", err)
	}
	return pruned
}

// reverse removes the rules for an expired block and audit-logs the reversal.
// Sweep reversals never append to the store; the pruned blocked event simply
// disappears from it.
func (m *Manager) reverse(ev store.BlockEvent, now time.Time) bool {
	ip := net.ParseIP(ev.IP)
	if ip == nil {
		m.logger.Errorf("stored event has an invalid IP '%s', keeping it", ev.IP)
		return false
	}
	okIn := m.enforce(firewall.DirectionInbound, firewall.ModeRemove, ip)
	okOut := m.enforce(firewall.DirectionOutbound, firewall.ModeRemove, ip)
	if okIn || okOut {
		if err := m.audit.Append(store.BlockEvent{Time: now, IP: ev.IP, Action: store.ActionUnblocked}); err != nil {
			m.logger.Errorf("audit log write failed. Error: %v", err)
		}
	}
	if okIn && okOut {
		m.logger.Infof("auto-unblocked IP '%s', blocked since %s", ev.IP, ev.Time.Format(time.RFC3339))
		return true
	}
	return false
}
