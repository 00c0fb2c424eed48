// Command symd runs the symbolication server: it keeps a local stash of
// MemDB files synced against a remote bucket and serves lookups over
// HTTP.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	symd "github.com/coresymbols/symd"
	"github.com/coresymbols/symd/internal/config"
)

func main() {
	var (
		configPath = flag.String("config", "/etc/symd/symd.yaml", "path to the YAML configuration file")
		addr       = flag.String("addr", ":8086", "address to listen on")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("symd: loading config: %v", err)
	}

	server, err := symd.NewServer(cfg, *addr)
	if err != nil {
		log.Fatalf("symd: starting server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Print("symd: received shutdown signal")
		cancel()
	}()

	log.Printf("symd: listening on %s, symbol_dir=%s", *addr, cfg.SymbolDir)
	if err := server.Run(ctx); err != nil {
		log.Fatalf("symd: %v", err)
	}
}
