package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gregLibert/smart-card-reader/internal/bridge"
	"github.com/gregLibert/smart-card-reader/internal/config"
	"github.com/gregLibert/smart-card-reader/internal/logging"
	"github.com/gregLibert/smart-card-reader/pkg/codec"
	"github.com/gregLibert/smart-card-reader/pkg/fileread"
	"github.com/gregLibert/smart-card-reader/pkg/pcsc"
	"github.com/gregLibert/smart-card-reader/pkg/reader"
	"github.com/gregLibert/smart-card-reader/pkg/session"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	// --- 1. Configuration ---
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	ring := logging.NewRing(logging.DefaultRingSize)
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format}, os.Stderr, ring)
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Reader Setup ---
	s, err := openSession(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Error opening reader: %v", err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("Warning: Failed to close session: %v", err)
		}
	}()

	info, _ := s.Info()
	fmt.Printf(">> Using reader: %s (%d slot(s))\n", info.ReaderName, info.NumSlots)

	// --- 3. Card Handling ---
	s.Subscribe(func(evt session.PresenceEvent) {
		if evt.Slot != cfg.Reader.Slot {
			return
		}
		onPresence(ctx, s, cfg, evt)
	})

	// --- 4. Bridge ---
	if cfg.Bridge.Listen != "" {
		go serveBridge(ctx, s, cfg.Bridge.Listen, logger, ring)
	}

	fmt.Println(">> Waiting for cards (Ctrl+C to quit)")
	<-ctx.Done()
	fmt.Println("\n>> Shutting down")
}

// =========================================================================
// Helper Functions
// =========================================================================

// openSession builds the PC/SC driver and the card session from the configuration.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*session.Session, error) {
	fileOpts, err := fileOptions(cfg.File, logger)
	if err != nil {
		return nil, err
	}

	drv := pcsc.New(
		pcsc.WithReaderFilter(cfg.Reader.Name),
		pcsc.WithWarmReset(cfg.Reader.WarmReset),
		pcsc.WithPollInterval(cfg.Reader.PollInterval()),
		pcsc.WithLogger(logger),
	)

	s := session.New(drv,
		session.WithLogger(logger),
		session.WithTimeout(cfg.Reader.Timeout()),
		session.WithFileOptions(fileOpts...),
	)
	if _, err := s.Init(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func fileOptions(fc config.FileConfig, logger *slog.Logger) ([]fileread.Option, error) {
	opts := []fileread.Option{
		fileread.WithChunkSize(fc.ChunkSize),
		fileread.WithLe(fc.Le),
		fileread.WithLogger(logger),
	}

	aid, err := fc.AID()
	if err != nil {
		return nil, fmt.Errorf("directory_aid: %w", err)
	}
	if aid != nil {
		return append(opts, fileread.WithDirectoryAID(aid)), nil
	}

	dir, err := fc.DirectoryFID()
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}
	return append(opts, fileread.WithDirectory(dir)), nil
}

// onPresence reports an inserted card: ATR, UID and, when configured, the file content.
func onPresence(ctx context.Context, s *session.Session, cfg *config.Config, evt session.PresenceEvent) {
	switch {
	case evt.Current == reader.Absent:
		fmt.Printf("\n>> Slot %d: card removed\n", evt.Slot)
		return
	case evt.Err != nil:
		fmt.Printf("\n>> Slot %d: card present but connection failed: %v\n", evt.Slot, evt.Err)
		return
	case evt.ATR == nil:
		return
	}

	fmt.Printf("\n>> Slot %d: card inserted\n", evt.Slot)
	fmt.Printf("   ATR: %s\n", codec.Encode(evt.ATR))

	uid, err := s.UID(ctx, evt.Slot)
	switch {
	case errors.Is(err, reader.ErrProtocolViolation):
		fmt.Printf("   UID: not available (%v)\n", err)
	case err != nil:
		fmt.Printf("   UID: error: %v\n", err)
	default:
		fmt.Printf("   UID: %s\n", codec.Display(uid))
	}

	if !cfg.File.ReadOnInsert {
		return
	}

	fid, err := cfg.File.FID()
	if err != nil {
		fmt.Printf("   File: %v\n", err)
		return
	}

	f, err := s.OpenFile(ctx, evt.Slot, fid)
	if err != nil {
		fmt.Printf("   File %04X: %v\n", fid, err)
		return
	}
	fmt.Printf("   File %s: %d bytes in %d exchanges\n", f.Path, len(f.Content), len(f.Trace))
	fmt.Printf("   Content: %s\n", codec.Encode(f.Content))

	if cfg.File.Report {
		fmt.Printf("\n%s\n", f.Report())
	}
}

// serveBridge runs the WebSocket bridge until ctx is done.
func serveBridge(ctx context.Context, s *session.Session, addr string, logger *slog.Logger, ring *logging.Ring) {
	hub := bridge.New(s, bridge.WithLogger(logger), bridge.WithLogs(ring))
	go hub.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	fmt.Printf(">> Bridge listening on ws://%s/ws\n", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("bridge stopped", slog.Any("err", err))
	}
}
