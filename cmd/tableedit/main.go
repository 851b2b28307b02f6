// tableedit looks up one record of a configured table by id, lets you edit
// its fields and saves only what changed. It runs as a TUI, as a one-shot
// CLI or as an SSH server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"golang.org/x/term"

	"github.com/johan-st/tableedit/internal/access"
	"github.com/johan-st/tableedit/internal/cli"
	"github.com/johan-st/tableedit/internal/config"
	"github.com/johan-st/tableedit/internal/database"
	"github.com/johan-st/tableedit/internal/editor"
	"github.com/johan-st/tableedit/internal/history"
	"github.com/johan-st/tableedit/internal/logging"
	"github.com/johan-st/tableedit/internal/server"
	"github.com/johan-st/tableedit/internal/tui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// startupTimeout bounds the first connect and column lookup.
const startupTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "config.json", "path to config file")
	sshMode := flag.Bool("ssh", false, "run SSH server mode")
	showVersion := flag.Bool("version", false, "show version information")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		fmt.Printf("tableedit %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built: %s\n", buildDate)
		os.Exit(0)
	}

	var err error
	args := flag.Args()
	switch {
	case *sshMode:
		err = runSSHServer(*configPath)
	case len(args) > 0:
		// CLI mode: run command and exit
		err = runLocalCLI(*configPath, args)
	default:
		err = runLocalTUI(*configPath)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("tableedit - edit one database record at a time")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tableedit [-config file]                    Interactive TUI mode")
	fmt.Println("  tableedit [-config file] <command> [args]   CLI mode (run and exit)")
	fmt.Println("  tableedit -ssh [-config file]              SSH server mode")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  tableedit                                   Edit the table in config.json")
	fmt.Println("  tableedit get 42                            Print record 42")
	fmt.Println("  tableedit set 42 --set='{\"name\":\"Jane\"}'    Change one field")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

// services is what every mode shares once startup succeeded.
type services struct {
	cfg          *config.Config
	logger       *log.Logger
	logCloser    io.Closer
	dbManager    *database.Manager
	historyStore *history.Store
}

// initServices loads the config, opens the log, connects once to load the
// table's columns and opens the audit store. console receives a copy of the
// log when non-nil.
func initServices(configPath string, console io.Writer) (*services, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, logCloser, err := logging.New(logging.Options{
		File:       cfg.Log.File,
		Level:      cfg.Log.Level,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		Console:    console,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open log: %w", err)
	}
	svc := &services{cfg: cfg, logger: logger, logCloser: logCloser}

	svc.dbManager, err = database.NewManager(cfg)
	if err != nil {
		logger.Errorf("invalid database configuration: %v", err)
		svc.Close()
		return nil, err
	}
	if conn, err := svc.dbManager.NewConnector(); err != nil {
		logger.Errorf("invalid connection parameters: %v", err)
		svc.Close()
		return nil, err
	} else if unused := conn.UnusedParams(); len(unused) > 0 {
		logger.Warnf("ignoring unknown connection parameters: %s", strings.Join(unused, ", "))
	}

	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	if err := svc.dbManager.Start(ctx); err != nil {
		logger.Errorf("startup failed: %v", err)
		svc.Close()
		return nil, err
	}
	logger.Infof("editing %s (%d columns)", svc.dbManager.Describe(), len(svc.dbManager.Columns()))

	svc.historyStore, err = history.NewStore(cfg.GetDataDir())
	if err != nil {
		logger.Errorf("failed to open history store: %v", err)
		svc.Close()
		return nil, fmt.Errorf("failed to initialize history store: %w", err)
	}

	return svc, nil
}

// Close releases the audit store and the log file.
func (svc *services) Close() {
	if svc.historyStore != nil {
		svc.historyStore.Close()
	}
	svc.logCloser.Close()
}

// localSession opens an editor for the local user, who is always admin, and
// records the session in the audit store.
func (svc *services) localSession(mode string) (*editor.Editor, *access.UserInfo, func(), error) {
	user := &access.UserInfo{
		Name:    "local",
		IsAdmin: true,
	}

	session := history.NewSession(history.NewSessionID(), user, mode)
	if err := svc.historyStore.CreateSession(session); err != nil {
		svc.logger.Warnf("failed to record session: %v", err)
	}

	ed, err := editor.ForSession(svc.dbManager, editor.Options{
		RestoreOnSearchError: svc.cfg.Editor.RestoreOnSearchError,
		ClearOnFailedSave:    svc.cfg.Editor.ClearOnFailedSave,
		User:                 user,
		SessionID:            session.ID,
		Recorder:             svc.historyStore,
		Logger:               svc.logger,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	done := func() {
		ed.Close()
		if err := svc.historyStore.EndSession(session.ID); err != nil {
			svc.logger.Warnf("failed to end session: %v", err)
		}
	}
	return ed, user, done, nil
}

// runLocalCLI runs a CLI command in local mode
func runLocalCLI(configPath string, cmdArgs []string) error {
	svc, err := initServices(configPath, os.Stderr)
	if err != nil {
		return err
	}
	defer svc.Close()

	ed, user, done, err := svc.localSession(history.ModeCLI)
	if err != nil {
		return err
	}
	defer done()

	handler := cli.NewHandler(svc.dbManager, svc.historyStore, version)
	ctx := cli.NewLocalContext(user, ed, cmdArgs, os.Stdout, os.Stderr)
	ctx.SessionID = ed.SessionID()
	return handler.HandleLocal(ctx)
}

// runLocalTUI runs the interactive TUI in local mode
func runLocalTUI(configPath string) error {
	// The terminal belongs to the TUI, so logs go to the file only.
	svc, err := initServices(configPath, nil)
	if err != nil {
		return err
	}
	defer svc.Close()

	ed, user, done, err := svc.localSession(history.ModeTUI)
	if err != nil {
		return err
	}
	defer done()

	// Get terminal size
	width, height := 80, 24
	fd := int(os.Stdout.Fd())
	if term.IsTerminal(fd) {
		if w, h, err := term.GetSize(fd); err == nil {
			width, height = w, h
		}
	}

	app := tui.NewApp(context.Background(), ed, user, width, height)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err = p.Run()
	return err
}

// runSSHServer runs the SSH server mode
func runSSHServer(configPath string) error {
	svc, err := initServices(configPath, os.Stderr)
	if err != nil {
		return err
	}
	defer svc.Close()

	cfg, dbManager := svc.cfg, svc.dbManager

	// Start config watcher for hot-reloading access rules
	configWatcher, err := config.NewWatcher(cfg, svc.logger)
	if err != nil {
		svc.logger.Warnf("Failed to create config watcher: %v", err)
	} else {
		configWatcher.OnReload(func(newCfg *config.Config) {
			dbManager.UpdateResolver(newCfg.BuildResolver())
		})
		if err := configWatcher.Start(); err != nil {
			svc.logger.Warnf("Failed to start config watcher: %v", err)
		} else {
			defer configWatcher.Stop()
		}
	}

	cliHandler := cli.NewHandler(dbManager, svc.historyStore, version)
	cliHandler.SetReloadFunc(func() ([]string, error) {
		ignored, err := cfg.Reload()
		if err != nil {
			return nil, err
		}
		dbManager.UpdateResolver(cfg.BuildResolver())
		return ignored, nil
	})

	sshServer := server.NewServer(cfg, dbManager, svc.historyStore, svc.logger)
	sshServer.SetCLIHandler(cliHandler.Handle)
	sshServer.SetTUIHandler(tui.Handler())

	return sshServer.Start()
}
