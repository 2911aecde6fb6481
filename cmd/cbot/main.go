package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/AndrioCelos/CBot-sub003/internal/accounts"
	"github.com/AndrioCelos/CBot-sub003/internal/config"
	"github.com/AndrioCelos/CBot-sub003/internal/irc"
	"github.com/AndrioCelos/CBot-sub003/internal/plugins"
	"github.com/AndrioCelos/CBot-sub003/internal/router"
	"github.com/AndrioCelos/CBot-sub003/internal/storage"
)

// Version information - set at build time via ldflags
var (
	version   = "dev"
	buildDate = "unknown"
	gitCommit = "unknown"
)

func main() {
	foreground := flag.Bool("x", false, "Run in foreground (don't daemonize)")
	configPath := flag.String("c", "./config.yaml", "Path to configuration file")
	showVersion := flag.Bool("v", false, "Show version information and exit")
	showVersionLong := flag.Bool("version", false, "Show version information and exit")
	flag.Parse()

	if *showVersion || *showVersionLong {
		fmt.Printf("cbot version %s\n", version)
		fmt.Printf("Built: %s\n", buildDate)
		fmt.Printf("Commit: %s\n", gitCommit)
		os.Exit(0)
	}

	irc.Version = version
	irc.BuildDate = buildDate
	irc.GitCommit = gitCommit

	if !*foreground {
		daemonize()
		return
	}

	if err := writePIDFile(); err != nil {
		slog.Warn("could not write PID file", "error", err)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

// daemonize re-executes the binary detached from the terminal.
func daemonize() {
	if os.Getenv("CBOT_DAEMON") == "1" {
		if err := writePIDFile(); err != nil {
			slog.Warn("could not write PID file", "error", err)
		}
		fmt.Printf("Now becoming a daemon\nMy pid is %d, this has been written to pid.txt\n", os.Getpid())

		args := append(os.Args, "-x")
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Env = os.Environ()
		if err := cmd.Start(); err != nil {
			slog.Error("failed to start daemon", "error", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	cmd := exec.Command(os.Args[0], os.Args[1:]...)
	cmd.Env = append(os.Environ(), "CBOT_DAEMON=1")
	if err := cmd.Start(); err != nil {
		slog.Error("failed to fork", "error", err)
		os.Exit(1)
	}
	os.Exit(0)
}

func writePIDFile() error {
	return os.WriteFile("pid.txt", []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}

func run(configPath string) error {
	if !filepath.IsAbs(configPath) {
		wd, _ := os.Getwd()
		configPath = filepath.Join(wd, configPath)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(log)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := storage.OpenAccountDB(filepath.Join(cfg.DataDir, "accounts.db"))
	if err != nil {
		return err
	}
	defer db.Close()

	store := accounts.NewStore()
	n, err := db.Load(store)
	if err != nil {
		return err
	}
	log.Info("loaded accounts", "count", n)

	seeded, err := seedAccounts(store, cfg.Accounts)
	if err != nil {
		return err
	}
	if seeded > 0 {
		log.Info("seeded accounts from configuration", "count", seeded)
		if err := db.Save(store); err != nil {
			return err
		}
	}

	audit, err := storage.OpenAuditLog(cfg.DataDir, log)
	if err != nil {
		return err
	}

	core := router.New(store, router.Options{
		Logger:   log,
		Prefixes: cfg.Prefixes,
		Auditor:  audit,
	})

	var (
		clients []*irc.Client
		once    sync.Once
	)
	quitAll := func(message string) {
		once.Do(func() {
			for _, c := range clients {
				c.Quit(message)
			}
			if err := db.Save(store); err != nil {
				log.Error("failed to save accounts", "error", err)
			}
		})
	}

	env := &plugins.Env{
		Core:    core,
		Log:     log,
		Persist: func() error { return db.Save(store) },
		Audit:   audit,
		OnShutdown: func() {
			quitAll("Shutdown requested")
			os.Exit(0)
		},
		OnRestart: func() {
			quitAll("Restarting")
			restart(log)
		},
	}
	for _, pc := range cfg.Plugins {
		p, err := plugins.New(pc, env)
		if err != nil {
			return fmt.Errorf("plugin %s: %w", pc.Key, err)
		}
		if err := core.AddPlugin(p); err != nil {
			return err
		}
		log.Info("plugin activated", "key", pc.Key, "type", pc.Type)
	}

	for _, nc := range cfg.Networks {
		clients = append(clients, irc.NewClient(nc, core, log))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info("received signal, shutting down", "signal", sig)
		quitAll("Received shutdown signal")
		os.Exit(0)
	}()

	var wg sync.WaitGroup
	for i, c := range clients {
		c := c
		nc := cfg.Networks[i]
		log.Info("connecting", "network", nc.Name, "server", nc.Server, "port", nc.Port)
		if err := c.Connect(); err != nil {
			log.Error("failed to connect", "network", nc.Name, "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Loop()
		}()
	}
	wg.Wait()
	quitAll("Shutting down")
	return nil
}

// seedAccounts creates configured accounts that the store does not have.
func seedAccounts(store *accounts.Store, seeds []config.SeedAccount) (int, error) {
	n := 0
	for _, s := range seeds {
		a := &accounts.Account{Permissions: s.Permissions}
		if s.Password != "" {
			if err := a.SetPassword(s.Password); err != nil {
				return n, fmt.Errorf("account %s: %w", s.Name, err)
			}
		}
		if err := store.Create(s.Name, a); errors.Is(err, accounts.ErrExists) {
			continue
		} else if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func restart(log *slog.Logger) {
	var args []string
	for _, arg := range os.Args {
		if arg != "-x" {
			args = append(args, arg)
		}
	}
	if err := syscall.Exec(args[0], args, os.Environ()); err != nil {
		log.Error("failed to restart", "error", err)
		os.Exit(1)
	}
}
