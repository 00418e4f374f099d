package report

import (
	"sort"
	"time"

	"block-watch/domain/enrich"
	"block-watch/domain/store"
)

// Summary aggregates the block events of the store for reporting. It is a
// pure derivation; the event log stays the source of truth.
type Summary struct {
	TotalBlocks   int       `json:"totalBlocks"`
	TotalUnblocks int       `json:"totalUnblocks"`
	UniqueIPs     int       `json:"uniqueIPs"`
	FirstBlock    time.Time `json:"firstBlock,omitempty"`
	LastBlock     time.Time `json:"lastBlock,omitempty"`
}

type Row struct {
	IP        string    `json:"ip"`
	Blocks    int       `json:"blocks"`
	LastBlock time.Time `json:"lastBlock"`
	Country   string    `json:"country,omitempty"`
	ASNName   string    `json:"asnName,omitempty"`
	PTR       string    `json:"ptr,omitempty"`
}

func Summarize(events []store.BlockEvent) Summary {
	var s Summary
	seen := make(map[string]bool)
	for _, ev := range events {
		switch ev.Action {
		case store.ActionBlocked:
			s.TotalBlocks++
			seen[ev.IP] = true
			if s.FirstBlock.IsZero() || ev.Time.Before(s.FirstBlock) {
				s.FirstBlock = ev.Time
			}
			if ev.Time.After(s.LastBlock) {
				s.LastBlock = ev.Time
			}
		case store.ActionUnblocked:
			s.TotalUnblocks++
		}
	}
	s.UniqueIPs = len(seen)
	return s
}

// Rows groups the blocked events per address, most blocked first. A non-nil
// enricher adds country/ASN/PTR annotations.
func Rows(events []store.BlockEvent, e *enrich.Enricher) []Row {
	byIP := make(map[string]*Row)
	for _, ev := range events {
		if ev.Action != store.ActionBlocked {
			continue
		}
		r, ok := byIP[ev.IP]
		if !ok {
			r = &Row{IP: ev.IP}
			byIP[ev.IP] = r
		}
		r.Blocks++
		if ev.Time.After(r.LastBlock) {
			r.LastBlock = ev.Time
		}
	}
	rows := make([]Row, 0, len(byIP))
	for _, r := range byIP {
		if e != nil {
			res := e.Lookup(r.IP)
			r.Country = res.Country
			r.ASNName = res.ASNName
			r.PTR = res.PTR
		}
		rows = append(rows, *r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Blocks != rows[j].Blocks {
			return rows[i].Blocks > rows[j].Blocks
		}
		return rows[i].IP < rows[j].IP
	})
	return rows
}
