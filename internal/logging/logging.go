// Package logging sets up the stdlib log package's output, rotating
// through lumberjack when a file is configured.
package logging

import (
	"log"

	"gopkg.in/natefinch/lumberjack.v2"

	"dnsauthd/internal/config"
)

// Setup points the stdlib logger at cfg's rotating file, matching the
// size/backup/age policy from the config document.
func Setup(cfg config.LogConf) error {
	log.SetFlags(log.Lshortfile | log.Ltime)

	if cfg.File == "" {
		log.Fatalf("logging: log.file not configured")
	}

	log.SetOutput(&lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
	return nil
}

// SetupCLI configures logging for the control-plane CLI, which has no
// log file of its own: verbose/debug keeps file/line info, otherwise
// output is bare so piped command output stays clean.
func SetupCLI(verbose, debug bool) {
	if verbose || debug {
		log.SetFlags(log.Lshortfile | log.Ltime)
	} else {
		log.SetFlags(0)
	}
}
