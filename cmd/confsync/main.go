package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/iudanet/confsync/internal/config"
	"github.com/iudanet/confsync/internal/crypto"
	"github.com/iudanet/confsync/internal/iocli"
	"github.com/iudanet/confsync/internal/queue"
	"github.com/iudanet/confsync/internal/storage/boltdb"
	"github.com/iudanet/confsync/internal/storage/httpremote"
	"github.com/iudanet/confsync/internal/syncer"
	"github.com/iudanet/confsync/internal/transfer"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "confsync.yaml", "Path to config file")
	dbPath := flag.String("db", "confsync.db", "Path to local database")
	serverURL := flag.String("server", "http://localhost:8080", "Peer URL")
	direction := flag.String("direction", "bidirectional", "Sync direction: push, pull or bidirectional")
	itemType := flag.String("type", "", "Item type filter: config, snippet, binary, preference")
	force := flag.Bool("force", false, "Local side wins without comparison")

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	command := args[0]
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	app, err := buildApp(ctx, cfg, *dbPath, *serverURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer app.shutdown(ctx, logger)

	switch command {
	case "sync":
		err = runSync(ctx, app, syncer.SyncOptions{
			ItemType:  *itemType,
			Direction: syncer.Direction(*direction),
			Force:     *force,
		})
	case "status":
		err = runStatus(ctx, app)
	case "version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app собранные зависимости команды.
type app struct {
	engine *syncer.Engine
	local  *boltdb.Storage
	queue  *queue.Queue
	cfg    *config.Config
	io     iocli.IO
}

// buildApp собирает хранилища, очередь, transfer engine и оркестратор
// из конфигурации и флагов.
func buildApp(ctx context.Context, cfg *config.Config, dbPath, serverURL string, logger *slog.Logger) (*app, error) {
	stdio := iocli.NewStdio()

	local, err := boltdb.New(ctx, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open local database: %w", err)
	}

	remote := httpremote.New(httpremote.Config{BaseURL: serverURL})

	var cryptoSvc *crypto.Service
	if cfg.Encryption.Enabled {
		cryptoSvc = crypto.NewService(crypto.Config{
			Algorithm: cfg.Encryption.Algorithm,
			KDF:       cfg.Encryption.KDF,
		})

		password, err := stdio.ReadPassword("Encryption password: ")
		if err != nil {
			return nil, fmt.Errorf("failed to read password: %w", err)
		}
		if err := cryptoSvc.Initialize(password); err != nil {
			return nil, fmt.Errorf("failed to initialize encryption: %w", err)
		}
	}

	q, err := queue.New(queue.Config{
		Persistence: cfg.Queue.Persistence,
		Path:        cfg.Queue.Path,
		MaxRetries:  cfg.Queue.MaxRetries,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open offline queue: %w", err)
	}

	transferEngine := transfer.NewEngine(transfer.Config{
		ChunkSize:       cfg.Transfer.ChunkSize,
		MaxConcurrent:   cfg.Transfer.MaxConcurrent,
		RetryAttempts:   cfg.Transfer.RetryAttempts,
		RetryDelay:      cfg.Transfer.RetryDelay,
		Timeout:         cfg.Transfer.Timeout,
		BandwidthLimit:  cfg.Transfer.BandwidthLimit,
		Compression:     cfg.Transfer.Compression,
		VerifyIntegrity: cfg.Transfer.VerifyIntegrity,
	}, logger)

	engine := syncer.New(local, remote, syncer.Config{
		NodeID:            cfg.NodeID,
		Encryption:        cryptoSvc,
		EncryptionEnabled: cfg.Encryption.Enabled,
		Queue:             q,
		Transfer:          transferEngine,
		AutoSyncInterval:  cfg.AutoSyncInterval,
	}, logger)

	if err := engine.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize sync engine: %w", err)
	}

	return &app{
		engine: engine,
		local:  local,
		queue:  q,
		cfg:    cfg,
		io:     stdio,
	}, nil
}

func (a *app) shutdown(ctx context.Context, logger *slog.Logger) {
	if err := a.engine.Close(ctx); err != nil {
		logger.Error("failed to close sync engine", "error", err)
	}
	if err := a.queue.Close(); err != nil {
		logger.Error("failed to close queue", "error", err)
	}
	if err := a.local.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
}

// runSync выполняет синхронизацию и печатает итог.
func runSync(ctx context.Context, a *app, opts syncer.SyncOptions) error {
	if opts.Force {
		ok, err := confirmForce(a.io)
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if !ok {
			a.io.Println("Aborted.")
			return nil
		}
	}

	opts.OnProgress = func(itemID string, processed, total int) {
		a.io.Printf("\r[%d/%d] %s", processed, total, itemID)
	}

	result, err := a.engine.Sync(ctx, opts)
	if err != nil {
		return err
	}

	a.io.Println("")
	a.io.Printf("Pushed:    %d\n", len(result.Pushed))
	a.io.Printf("Pulled:    %d\n", len(result.Pulled))
	a.io.Printf("Merged:    %d\n", len(result.Merged))
	a.io.Printf("Conflicts: %d\n", len(result.Conflicts))
	a.io.Printf("Errors:    %d\n", len(result.Errors))
	a.io.Printf("Duration:  %s\n", result.Duration)

	for _, id := range result.Conflicts {
		a.io.Printf("  conflict: %s\n", id)
	}
	for _, itemErr := range result.Errors {
		a.io.Printf("  error: %s: %s\n", itemErr.ItemID, itemErr.Message)
	}

	if !result.Success {
		return fmt.Errorf("sync finished with %d errors", len(result.Errors))
	}
	return nil
}

// confirmForce запрашивает подтверждение перед force-синхронизацией:
// она перезаписывает состояние peer без сравнения версий.
func confirmForce(io iocli.IO) (bool, error) {
	answer, err := io.ReadInput("Force sync overwrites the peer copy of every item. Continue? [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// runStatus печатает состояние локального хранилища и очереди.
func runStatus(ctx context.Context, a *app) error {
	ids, err := a.local.List(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to list local items: %w", err)
	}

	state := a.queue.GetState()

	a.io.Printf("Node:        %s\n", a.engine.NodeID())
	a.io.Printf("Local items: %d\n", len(ids))
	a.io.Printf("Queue:       %d pending\n", state.Pending)
	if state.Online {
		a.io.Println("Network:     online")
	} else {
		a.io.Println("Network:     offline")
	}
	a.io.Printf("Encryption:  %v\n", a.cfg.Encryption.Enabled)
	return nil
}

func printUsage() {
	fmt.Println("Usage: confsync [flags] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  sync     Synchronize with the configured peer")
	fmt.Println("  status   Show local store and queue state")
	fmt.Println("  version  Show version information")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func printVersion() {
	fmt.Printf("confsync\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
