package enrich

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oschwald/geoip2-golang"
)

const (
	cacheTTL   = time.Hour
	ptrTimeout = time.Second
)

type Result struct {
	PTR     string
	ASN     uint
	ASNName string
	Country string
	ts      time.Time
}

// Enricher annotates addresses for reporting with reverse DNS and, when
// MaxMind databases are present, ASN and country. Lookups are cached with a
// TTL. It never participates in a lifecycle decision.
type Enricher struct {
	mu     sync.RWMutex
	cache  map[string]Result
	asnDB  *geoip2.Reader
	cityDB *geoip2.Reader
}

// New looks for GeoLite2-ASN.mmdb and GeoLite2-City.mmdb in dirs. Absent
// databases are not an error; the enricher then only provides PTR records.
func New(dirs ...string) *Enricher {
	e := &Enricher{cache: make(map[string]Result)}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if e.asnDB == nil {
			p := filepath.Join(d, "GeoLite2-ASN.mmdb")
			if _, err := os.Stat(p); err == nil {
				if db, err := geoip2.Open(p); err == nil {
					e.asnDB = db
				}
			}
		}
		if e.cityDB == nil {
			p := filepath.Join(d, "GeoLite2-City.mmdb")
			if _, err := os.Stat(p); err == nil {
				if db, err := geoip2.Open(p); err == nil {
					e.cityDB = db
				}
			}
		}
	}
	return e
}

func (e *Enricher) Close() {
	if e.asnDB != nil {
		_ = e.asnDB.Close()
	}
	if e.cityDB != nil {
		_ = e.cityDB.Close()
	}
}

// Enabled reports whether at least one GeoIP database is open.
func (e *Enricher) Enabled() bool {
	return e != nil && (e.asnDB != nil || e.cityDB != nil)
}

func (e *Enricher) Lookup(ipStr string) Result {
	now := time.Now()

	e.mu.RLock()
	if r, ok := e.cache[ipStr]; ok && now.Sub(r.ts) < cacheTTL {
		e.mu.RUnlock()
		return r
	}
	e.mu.RUnlock()

	r := Result{ts: now}
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return r
	}

	ctx, cancel := context.WithTimeout(context.Background(), ptrTimeout)
	names, _ := net.DefaultResolver.LookupAddr(ctx, ipStr)
	cancel()
	if len(names) > 0 {
		r.PTR = names[0]
	}

	if e.asnDB != nil {
		if rec, err := e.asnDB.ASN(ip); err == nil && rec != nil {
			r.ASN = rec.AutonomousSystemNumber
			r.ASNName = rec.AutonomousSystemOrganization
		}
	}
	if e.cityDB != nil {
		if rec, err := e.cityDB.City(ip); err == nil && rec != nil {
			if name, ok := rec.Country.Names["en"]; ok && name != "" {
				r.Country = name
			} else {
				r.Country = rec.Country.IsoCode
			}
		}
	}

	e.mu.Lock()
	e.cache[ipStr] = r
	e.mu.Unlock()
	return r
}
