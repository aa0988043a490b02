// ABOUTME: CLI entrypoint for the pulse dashboard client with TUI and dev-server modes.
// ABOUTME: Wires together config loading, the session layer, history storage, and signal handling.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389-research/pulse/api"
	"github.com/2389-research/pulse/chat"
	"github.com/2389-research/pulse/config"
	"github.com/2389-research/pulse/devserver"
	"github.com/2389-research/pulse/history"
	"github.com/2389-research/pulse/session"
	"github.com/2389-research/pulse/tui"
)

var version = "dev"

// cliConfig holds all CLI configuration parsed from flags.
type cliConfig struct {
	serveMode   bool
	port        int
	configPath  string
	driver      string
	dsn         string
	noHistory   bool
	verbose     bool
	showVersion bool
}

func main() {
	loadDotEnv(".env")

	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("pulse %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

// parseFlags parses command-line flags and returns a populated cliConfig.
func parseFlags() cliConfig {
	var cfg cliConfig

	fs := flag.NewFlagSet("pulse", flag.ContinueOnError)
	fs.BoolVar(&cfg.serveMode, "serve", false, "Start the local dev server instead of the dashboard")
	fs.IntVar(&cfg.port, "port", 8788, "Dev server port (default: 8788)")
	fs.StringVar(&cfg.configPath, "config", "", "Config file path (default: $XDG_CONFIG_HOME/pulse/config.yaml)")
	fs.StringVar(&cfg.driver, "driver", "postgres", "Upstream driver for the connect stage")
	fs.StringVar(&cfg.dsn, "dsn", "", "Upstream DSN for the connect stage")
	fs.BoolVar(&cfg.noHistory, "no-history", false, "Disable chat and run persistence")
	fs.BoolVar(&cfg.verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	fs.Usage = func() {
		printHelp(os.Stderr, version)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	return cfg
}

// run dispatches to the appropriate mode based on the config.
// Returns an exit code: 0 for success, 1 for failure.
func run(cfg cliConfig) int {
	if cfg.serveMode {
		return runDevServer(cfg)
	}
	return runDashboard(cfg)
}

// loadAppConfig resolves the config path and loads the YAML config.
func loadAppConfig(cfg cliConfig) (*config.Config, error) {
	path := cfg.configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

// wsEndpoints derives the websocket channel URLs from the HTTP base URL.
func wsEndpoints(baseURL string) (chatURL, pipelineURL string) {
	ws := strings.Replace(baseURL, "http", "ws", 1)
	return ws + "/ws/chat", ws + "/ws/pipeline"
}

// runDashboard starts the session and runs the interactive TUI.
func runDashboard(cfg cliConfig) int {
	appCfg, err := loadAppConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	var store *history.Store
	if !cfg.noHistory {
		if err := os.MkdirAll(appCfg.DataDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not create data dir: %v\n", err)
		} else {
			store, err = history.Open(filepath.Join(appCfg.DataDir, "history.db"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: could not open history store: %v\n", err)
				store = nil
			}
		}
	}
	if store != nil {
		defer store.Close()
	}

	chatURL, pipelineURL := wsEndpoints(appCfg.ServerURL)
	sess := session.New(session.Config{
		BaseURL:          appCfg.ServerURL,
		ChatEndpoint:     chatURL,
		PipelineEndpoint: pipelineURL,
		Turn: chat.TurnConfig{
			Provider: appCfg.Provider,
			Model:    appCfg.Model,
			OrgID:    appCfg.OrgID,
		},
		Store: store,
	}, session.StaticToken(appCfg.Token))

	if cfg.verbose {
		sess.SetVerbose(true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess.Start(ctx)
	defer sess.Stop()

	connectReq := api.ConnectRequest{Driver: cfg.driver, DSN: cfg.dsn}
	model := tui.NewAppModel(ctx, sess, connectReq)

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	return 0
}

// runDevServer starts the local backend emulator.
func runDevServer(cfg cliConfig) int {
	appCfg, err := loadAppConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	server := devserver.NewServer(devserver.Config{Token: appCfg.Token})
	addr := fmt.Sprintf("127.0.0.1:%d", cfg.port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nInterrupted, shutting down...")
		cancel()
	}()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	fmt.Fprintf(os.Stderr, "dev server listening on %s\n", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	return 0
}
