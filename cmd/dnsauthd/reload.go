package main

import (
	"fmt"
	"log"

	"dnsauthd/internal/config"
	"dnsauthd/internal/name"
	"dnsauthd/internal/rr"
	"dnsauthd/internal/server"
	"dnsauthd/internal/xfer"
	"dnsauthd/internal/zonedb"
	"dnsauthd/internal/zonefile"
)

// newReloader builds a server.ReloadFunc that re-reads zonefiles from
// disk for primary zones and leaves secondaries to the refresh
// engine's AXFR path (refresh.go). A changed primary zone NOTIFYs its
// configured downstreams once the new snapshot is live.
func newReloader(zones *config.ZoneDocument) server.ReloadFunc {
	return func(db *zonedb.DB, apex name.DomainName) (bool, error) {
		changed := false
		for zname, zc := range zones.Zones {
			n, err := name.Parse(zname)
			if err != nil {
				return changed, fmt.Errorf("dnsauthd: zone name %q: %w", zname, err)
			}
			if !apex.IsRoot() && !apex.Equal(name.DomainName{}) && !n.Equal(apex) {
				continue
			}
			if zc.Type != "primary" || zc.Zonefile == "" {
				continue
			}
			z, err := loadZonefile(n, zc.Zonefile)
			if err != nil {
				log.Printf("dnsauthd: loading zone %s from %s: %v", zname, zc.Zonefile, err)
				continue
			}
			db.Replace(z)
			changed = true
			if len(zc.Notify) > 0 {
				go notifyDownstreams(n, zc.Notify)
			}
		}
		return changed, nil
	}
}

func notifyDownstreams(apex name.DomainName, downstreams []string) {
	for addr, err := range xfer.NotifyDownstreams(downstreams, apex) {
		if err != nil {
			log.Printf("dnsauthd: NOTIFY %s for %s: %v", addr, apex, err)
		}
	}
}

func loadZonefile(apex name.DomainName, path string) (*zonedb.Zone, error) {
	return zonefile.Load(apex, rr.ClassINET, path)
}

