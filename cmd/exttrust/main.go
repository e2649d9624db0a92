package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/go-chi/chi/v5"

	"github.com/exttrust/exttrust/internal/analysis"
	"github.com/exttrust/exttrust/internal/api"
	"github.com/exttrust/exttrust/internal/blocklist"
	"github.com/exttrust/exttrust/internal/config"
	"github.com/exttrust/exttrust/internal/database"
	"github.com/exttrust/exttrust/internal/inventory"
	"github.com/exttrust/exttrust/internal/policy"
	"github.com/exttrust/exttrust/internal/registry"
	"github.com/exttrust/exttrust/internal/scheduler"
	"github.com/exttrust/exttrust/internal/web"
)

const usage = `exttrust - browser extension trust analysis

Usage:
  exttrust serve          start the HTTP API and web report (default)
  exttrust scan [-json]   run one scan and print the results

Configuration is read from EXTTRUST_* environment variables.
`

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		serve()
	case "scan":
		os.Exit(scanOnce(args, os.Stdout))
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
}

// app bundles the engine with whatever it holds open
type app struct {
	engine *analysis.Engine
	table  *policy.Table
	db     *database.DB
}

func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
}

// newApp wires the engine from configuration
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	table, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	pol, err := policy.New(table)
	if err != nil {
		return nil, err
	}

	a := &app{table: table}

	var source inventory.Source
	if cfg.DatabaseURL != "" {
		db, err := database.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to fleet database: %w", err)
		}
		a.db = db
		source = inventory.NewFleet(db, cfg.FleetHostID)
		log.Printf("Using fleet inventory for host %s", cfg.FleetHostID)
	} else {
		source = inventory.NewChromeProfile(cfg.ProfileDir)
		log.Printf("Using Chrome profile %s", cfg.ProfileDir)
	}

	a.engine = analysis.New(
		source,
		blocklist.New(cfg.BlocklistURL, cfg.BlocklistSnapshot, cfg.HTTPTimeout),
		registry.New(cfg.RegistryURL, cfg.ProdVersion, cfg.PresenceConcurrency, cfg.HTTPTimeout),
		pol,
		cfg.SelfID,
	)

	return a, nil
}

func serve() {
	log.Println("exttrust starting...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	// Start watch scans in background
	schedCtx, schedCancel := context.WithCancel(context.Background())
	defer schedCancel()

	if cfg.ScanInterval > 0 {
		sched := scheduler.New(a.engine, cfg.ScanInterval)
		go func() {
			if err := sched.Start(schedCtx); err != nil {
				log.Printf("Scheduler error: %v", err)
			}
		}()
	}

	// Initialize API
	apiHandler := api.New(a.engine, *a.table)

	// Initialize web UI
	webHandler, err := web.New(a.engine)
	if err != nil {
		log.Fatalf("Failed to initialize web handler: %v", err)
	}

	// Setup router
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if a.db != nil {
			if err := a.db.Health(r.Context()); err != nil {
				http.Error(w, "database unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.Write([]byte("ok"))
	})
	r.Mount("/api/v1", apiHandler.Router())
	r.Mount("/", webHandler.Router())

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		schedCancel()
		server.Shutdown(context.Background())
	}()

	log.Printf("exttrust listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("exttrust stopped")
}

// scanOnce runs a single scan and prints it. It returns the process exit code.
func scanOnce(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "print results as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Printf("Failed to initialize: %v", err)
		return 1
	}
	defer a.Close()

	result, err := a.engine.Scan(ctx)
	if err != nil {
		if errors.Is(err, analysis.ErrInventoryUnavailable) {
			fmt.Fprintln(os.Stderr, "Failed to scan extensions.")
		}
		log.Printf("Scan failed: %v", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Printf("Encode result: %v", err)
			return 1
		}
		return 0
	}

	printTable(out, result)
	return 0
}

// printTable writes a human-readable report
func printTable(out io.Writer, result *analysis.Result) {
	if len(result.Items) == 0 {
		fmt.Fprintln(out, "No other extensions found.")
		return
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LEVEL\tSCORE\tNAME\tVERSION\tSTATE\tINSTALL\tREASONS")
	for _, it := range result.Items {
		state := "enabled"
		if !it.Module.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
			it.Verdict.Level, it.Verdict.Score, it.Module.Name, it.Module.Version,
			state, it.Module.Provenance, strings.Join(it.Verdict.Reasons, "; "))
	}
	tw.Flush()

	s := result.Summary
	fmt.Fprintf(out, "\n%d Safe  %d Warnings  %d Dangerous (%d blocklisted)\n", s.Safe, s.Warn, s.Danger, s.Blocklisted)
}
