package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hoofbeat/hoofbeat/internal/config"
	"github.com/hoofbeat/hoofbeat/internal/logging"
	"github.com/hoofbeat/hoofbeat/internal/notify"
	"github.com/hoofbeat/hoofbeat/internal/reconcile"
	"github.com/hoofbeat/hoofbeat/internal/scanner"
	"github.com/hoofbeat/hoofbeat/internal/server"
	"github.com/hoofbeat/hoofbeat/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Serve a project directory with hot reload",
	Long: `Serve a project directory over HTTP and watch it for changes.

Both listeners default to port 0, which asks the system for a free port;
the chosen addresses are logged at startup.

Examples:
  hoofbeat serve                   # Serve the current directory
  hoofbeat serve ./site            # Serve a specific directory
  hoofbeat serve -p 8080 ./site    # Fixed project port`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("project-host", "l", "::1", "Address to serve the project on")
	serveCmd.Flags().IntP("project-port", "p", 0, "Port to serve the project on (0 = system-assigned)")
	serveCmd.Flags().StringP("status-host", "s", "::1", "Address to serve status on")
	serveCmd.Flags().IntP("status-port", "q", 0, "Port to serve status on (0 = system-assigned)")

	mustBind("project.host", serveCmd.Flags().Lookup("project-host"))
	mustBind("project.port", serveCmd.Flags().Lookup("project-port"))
	mustBind("status.host", serveCmd.Flags().Lookup("status-host"))
	mustBind("status.port", serveCmd.Flags().Lookup("status-port"))
}

// runServe performs the startup sequence in its required order: resolve
// the project root, start observing it, wait for the watcher rendezvous
// plus the grace delay, scan, drop the first marker, and only then bind
// the listeners. Failures before serving are startup-fatal; no partial
// startup is attempted.
func runServe(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		viper.Set("project_dir", args[0])
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.ProjectDir == "" {
		cfg.ProjectDir = "."
	}

	logger := logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	exclude := scanner.DefaultExclusions()

	sc, err := scanner.New(cfg.ProjectDir, exclude, logger)
	if err != nil {
		return err
	}

	// The watcher must be observing before the first marker exists, or
	// the marker's creation event is missed forever.
	w, err := watcher.NewFSNotify(sc.Root(), exclude, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	<-w.Ready()
	time.Sleep(watcher.ReadyGraceDelay)

	hub := notify.NewHub(cfg.Notify.Buffer, logger)
	defer hub.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := reconcile.NewEngine(w, sc, hub, cfg.Reconcile.InitialTimeout, logger)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	go engine.Run(ctx)

	srv := server.New(cfg, sc.Root(), exclude, engine, hub, logger)
	return srv.Start(ctx)
}
