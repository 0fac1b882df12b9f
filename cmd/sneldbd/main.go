// Command sneldbd wires the engine's core packages into a running
// process: load config, start the schema registry, bring up the shard
// manager. The TCP/WebSocket listeners, command tokenizer/parser, and
// auth layer are explicitly external to this core (spec §1) — this is
// the thin wiring demo those layers would sit in front of, not a
// standalone server.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sneldb/sneldb-sub000/internal/config"
	"github.com/sneldb/sneldb-sub000/internal/nlog"
	"github.com/sneldb/sneldb-sub000/internal/schema"
	"github.com/sneldb/sneldb-sub000/internal/shard"
)

func main() {
	cfgPath := flag.String("config", "", "path to config JSON (defaults applied for anything unset)")
	numShards := flag.Int("shards", 4, "number of shards")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *cfgPath == "" {
		cfg = config.Default()
	} else {
		cfg, err = config.LoadFile(*cfgPath)
		if err != nil {
			nlog.Errorf("loading config %s: %v", *cfgPath, err)
			os.Exit(1)
		}
	}
	nlog.SetLevel(levelFromString(cfg.Logging.Level))

	reg := schema.NewRegistry()

	mgr, err := shard.NewManager(*numShards, cfg.Engine.DataDir, cfg, reg)
	if err != nil {
		nlog.Errorf("starting shard manager: %v", err)
		os.Exit(1)
	}
	nlog.Infof("sneldbd up: data_dir=%s shards=%d tcp=%s ws=%s", cfg.Engine.DataDir, *numShards, cfg.Server.TCPAddr, cfg.Server.WSAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	nlog.Infof("sneldbd shutting down")
	if err := mgr.FlushAll(); err != nil {
		nlog.Warningf("flush on shutdown: %v", err)
	}
	mgr.Shutdown()
	nlog.Flush()
}

func levelFromString(s string) int {
	switch s {
	case "error":
		return 0
	case "warn", "warning":
		return 1
	default:
		return 2
	}
}
