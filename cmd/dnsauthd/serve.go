package main

import (
	"fmt"
	"log"
	"os"

	flag "github.com/spf13/pflag"

	"dnsauthd/internal/config"
	"dnsauthd/internal/control"
	"dnsauthd/internal/keystore"
	"dnsauthd/internal/logging"
	"dnsauthd/internal/name"
	"dnsauthd/internal/query"
	"dnsauthd/internal/server"
	"dnsauthd/internal/tsig"
	"dnsauthd/internal/zonedb"
)

// cmdServe is the supervisor: load config and zones, open the
// keystore and refresh journal, bind listeners, start the control
// channel, and run until signalled to stop. Exit code 3 on any
// startup failure; 0 on a clean shutdown.
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	var cfgFile, zonesFile string
	var debug, verbose bool
	fs.StringVar(&cfgFile, "config", config.DefaultConfigFile, "config file path")
	fs.StringVar(&zonesFile, "zones", config.DefaultZonesFile, "zones file path")
	fs.BoolVar(&debug, "debug", false, "run in debug mode")
	fs.BoolVarP(&verbose, "verbose", "v", false, "verbose mode")
	fs.Parse(args)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dnsauthd: %v\n", err)
		os.Exit(3)
	}
	cfg.Service.Debug = cfg.Service.Debug || debug
	cfg.Service.Verbose = cfg.Service.Verbose || verbose

	if err := logging.Setup(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "dnsauthd: %v\n", err)
		os.Exit(3)
	}
	log.Printf("dnsauthd %s starting", appVersion)
	fatal := func(format string, v ...interface{}) {
		log.Printf(format, v...)
		os.Exit(3)
	}

	zones, err := config.LoadZones(zonesFile)
	if err != nil {
		fatal("dnsauthd: loading zones: %v", err)
	}

	db := zonedb.NewDB()
	reloader := newReloader(zones)
	if _, err := reloader(db, name.DomainName{}); err != nil {
		fatal("dnsauthd: initial zone load: %v", err)
	}

	ks, err := keystore.Open(cfg.Keystore.File)
	if err != nil {
		fatal("dnsauthd: opening keystore: %v", err)
	}
	defer ks.Close()

	journal, err := openOrCreateJournal(cfg.Keystore.File + ".journal")
	if err != nil {
		log.Printf("dnsauthd: opening refresh journal: %v (secondary zones will re-transfer on every restart)", err)
	} else {
		defer journal.Close()
	}
	refresher := startRefreshEngine(zones, db, ks, journal)
	defer refresher.Stop()

	acls := buildACLResolver(ks, cfg, zones)
	keyLookup := func(keyName name.DomainName) (tsig.Key, bool) {
		key, ok, err := ks.GetKey(keyName)
		if err != nil {
			log.Printf("dnsauthd: keystore lookup for %s: %v", keyName, err)
			return tsig.Key{}, false
		}
		return key, ok
	}
	engine := query.NewEngine(db, keyLookup, acls)

	srv := server.New(engine, db, reloader, cfg.Service.PIDFile)
	for _, addr := range cfg.Listen.Addresses {
		if !cfg.Listen.IPv6Only {
			if err := srv.ListenUDP(addr); err != nil {
				fatal("dnsauthd: %v", err)
			}
			if err := srv.ListenTCP(addr); err != nil {
				fatal("dnsauthd: %v", err)
			}
		}
	}

	if err := server.DropPrivileges(cfg.Service.Chroot, cfg.Service.User); err != nil {
		fatal("dnsauthd: %v", err)
	}

	ctl, err := control.NewServer(cfg.Control.APIKey, []string{cfg.Control.Address}, cfg.Control.CertFile, cfg.Control.KeyFile,
		control.Handlers{
			Reload: func(apex name.DomainName) (bool, error) { return reloader(db, apex) },
			Status: func(apex name.DomainName) (uint32, bool) {
				z, ok := db.Get(apex)
				if !ok {
					return 0, false
				}
				return z.CurrentSerial, true
			},
			StatsFn:    srv.Stats,
			StopServer: func() { srv.StopCh <- struct{}{} },
			PutKey:     func(key tsig.Key, comment string) error { return ks.PutKey(key, comment) },
		})
	if err != nil {
		log.Printf("dnsauthd: control channel not started: %v", err)
	} else {
		ctl.ListenAndServe()
	}

	srv.Run()
	log.Println("dnsauthd: exiting")
}
