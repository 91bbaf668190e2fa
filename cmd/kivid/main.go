// Command kivid runs the store as a standalone process: it loads a
// snapshot, serves requests from whatever in-process callers are wired
// in, and saves on exit.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zond/kivi"
	"github.com/zond/kivi/store"
)

const shutdownGrace = 5 * time.Second

func main() {
	cfg := kivi.NewConfig()
	var logFile string
	var seed uint

	flag.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "Path to the JSON snapshot file.")
	flag.UintVar(&seed, "seed", 0, "Fixed hash/PRNG seed (0 derives one from the clock).")
	flag.StringVar(&logFile, "logfile", "", "Path to a rotating log file (default: stderr).")
	flag.Parse()
	cfg.Seed = uint32(seed)

	if logFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		})
	}

	s := store.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Start(ctx, cfg); err != nil {
		log.Fatalf("starting store: %v", err)
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		log.Printf("kivid serving, snapshot %s, press Ctrl+C to stop", cfg.SnapshotPath)
	} else {
		log.Printf("kivid serving, snapshot %s", cfg.SnapshotPath)
	}

	<-ctx.Done()
	log.Print("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutting down: %v", err)
	}
}
