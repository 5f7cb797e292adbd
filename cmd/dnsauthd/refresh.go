package main

import (
	"encoding/binary"
	"log"
	"os"
	"time"

	"dnsauthd/internal/config"
	"dnsauthd/internal/keystore"
	"dnsauthd/internal/name"
	"dnsauthd/internal/rdata"
	"dnsauthd/internal/rr"
	"dnsauthd/internal/tsig"
	"dnsauthd/internal/udb"
	"dnsauthd/internal/xfer"
	"dnsauthd/internal/zonedb"
)

// refreshEngine drives the secondary side of spec.md §4.7: one ticker
// per secondary zone probing its primary's SOA and pulling a fresh
// AXFR whenever the primary's serial has moved ahead. The last
// serial successfully applied is journaled in a udb arena so a
// restart doesn't re-transfer a zone it already holds.
type refreshEngine struct {
	db      *zonedb.DB
	ks      *keystore.Store
	journal *udb.DB
	stop    chan struct{}
}

func startRefreshEngine(zones *config.ZoneDocument, db *zonedb.DB, ks *keystore.Store, journal *udb.DB) *refreshEngine {
	eng := &refreshEngine{db: db, ks: ks, journal: journal, stop: make(chan struct{})}
	for zname, zc := range zones.Zones {
		if zc.Type != "secondary" {
			continue
		}
		apex, err := name.Parse(zname)
		if err != nil {
			log.Printf("dnsauthd: refresh engine: zone name %q: %v", zname, err)
			continue
		}
		interval := time.Duration(zc.RefreshSecs) * time.Second
		if interval <= 0 {
			interval = time.Duration(config.DefaultRefreshSecs) * time.Second
		}
		go eng.run(apex, zc, interval)
	}
	return eng
}

func (e *refreshEngine) Stop() {
	close(e.stop)
}

func (e *refreshEngine) run(apex name.DomainName, zc config.ZoneConf, interval time.Duration) {
	e.refreshOne(apex, zc)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-t.C:
			e.refreshOne(apex, zc)
		}
	}
}

func (e *refreshEngine) refreshOne(apex name.DomainName, zc config.ZoneConf) {
	var key *tsig.Key
	if zc.TSIGKey != "" {
		keyName, err := name.Parse(zc.TSIGKey)
		if err != nil {
			log.Printf("dnsauthd: refresh %s: tsig key name %q: %v", apex, zc.TSIGKey, err)
			return
		}
		k, ok, err := e.ks.GetKey(keyName)
		if err != nil {
			log.Printf("dnsauthd: refresh %s: keystore lookup for %s: %v", apex, zc.TSIGKey, err)
			return
		}
		if ok {
			key = &k
		}
	}

	remote, conn, err := xfer.ProbeSOA(zc.Primary, apex, 5*time.Second)
	if err != nil {
		log.Printf("dnsauthd: refresh %s: SOA probe to %s failed: %v", apex, zc.Primary, err)
		return
	}
	defer conn.Close()

	local, haveLocal := e.journalSerial(apex)
	if !haveLocal {
		if z, ok := e.db.Get(apex); ok {
			local = z.CurrentSerial
			haveLocal = true
		}
	}
	if haveLocal && !xfer.NeedsRefresh(local, remote) {
		return
	}

	result, err := xfer.FetchAXFR(conn, zc.Primary, apex, key, 30*time.Second)
	if err != nil {
		log.Printf("dnsauthd: refresh %s: AXFR from %s failed: %v", apex, zc.Primary, err)
		return
	}

	z := zonedb.NewZone(apex, rr.ClassINET)
	for i, a := range result.RRs {
		if a.Type == rdata.TypeSOA && i == len(result.RRs)-1 {
			continue // AXFR's closing SOA duplicates the opening one
		}
		if err := z.AddRRset(a.Owner, a.Type, a.Class, a.TTL, []rdata.Rdata{a.Data}); err != nil {
			log.Printf("dnsauthd: refresh %s: adding %s RRset for %s: %v", apex, a.Type, a.Owner, err)
			return
		}
	}
	if err := z.Freeze(); err != nil {
		log.Printf("dnsauthd: refresh %s: %v", apex, err)
		return
	}

	e.db.Replace(z)
	e.setJournalSerial(apex, result.Serial)
	log.Printf("dnsauthd: refresh %s: transferred %d RRs at serial %d from %s", apex, len(result.RRs), result.Serial, zc.Primary)
}

func (e *refreshEngine) journalSerial(apex name.DomainName) (uint32, bool) {
	if e.journal == nil {
		return 0, false
	}
	v, ok, err := e.journal.Get([]byte(apex.String()))
	if err != nil || !ok || len(v) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(v), true
}

func (e *refreshEngine) setJournalSerial(apex name.DomainName, serial uint32) {
	if e.journal == nil {
		return
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], serial)
	if err := e.journal.Put([]byte(apex.String()), buf[:]); err != nil {
		log.Printf("dnsauthd: refresh %s: journaling serial %d: %v", apex, serial, err)
	}
}

// openOrCreateJournal opens the refresh engine's udb arena, creating
// it on first run. A lost or corrupt journal only costs one extra
// AXFR per secondary zone on the next restart, never correctness.
func openOrCreateJournal(path string) (*udb.DB, error) {
	if _, err := os.Stat(path); err == nil {
		return udb.Open(path)
	}
	return udb.Create(path, 1<<20)
}
