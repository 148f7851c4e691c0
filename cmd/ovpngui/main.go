// Command ovpngui supervises openvpn daemons through their management
// interface, asking for credentials on the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/pborman/getopt/v2"

	"github.com/ovpngui/ovpngui/internal/config"
	"github.com/ovpngui/ovpngui/internal/connection"
	"github.com/ovpngui/ovpngui/internal/model"
	"github.com/ovpngui/ovpngui/internal/process"
	"github.com/ovpngui/ovpngui/internal/prompt"
	"github.com/ovpngui/ovpngui/internal/scripts"
	"github.com/ovpngui/ovpngui/internal/store"
	"github.com/ovpngui/ovpngui/internal/supervisor"
)

// shutdownTimeout bounds disconnecting everything on exit.
const shutdownTimeout = 30 * time.Second

func main() {
	optConfig := getopt.StringLong("config", 'c', config.DefaultPath(), "Configuration file")
	optConnect := getopt.StringLong("connect", 'C', "", "Comma separated profiles to connect (default: auto_connect profiles)")
	optVerbosity := getopt.Uint16Long("verbosity", 'v', uint16(4), "Verbosity level (1 to 5, 1 is lowest)")
	helpFlag := getopt.BoolLong("help", 'h', "Display help")

	getopt.Parse()
	if *helpFlag {
		getopt.Usage()
		os.Exit(0)
	}

	logger := &log.Logger{Level: verbosityLevel(*optVerbosity), Handler: &logHandler{Writer: os.Stderr}}
	logger.Debugf("config file: %s", *optConfig)

	manager := config.NewManager(*optConfig)
	if err := manager.Load(); err != nil {
		fmt.Println("fatal: " + err.Error())
		os.Exit(1)
	}
	cfg := manager.Get()
	if len(cfg.Profiles) == 0 {
		fmt.Printf("no profiles configured in %s\n", manager.Path())
		os.Exit(1)
	}

	if err := run(logger, cfg, splitNames(*optConnect)); err != nil {
		fmt.Println("fatal: " + err.Error())
		os.Exit(1)
	}
}

func splitNames(s string) []string {
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func run(logger model.Logger, cfg *config.Config, names []string) error {
	terminal := prompt.NewTerminal(os.Stdin, os.Stdout)
	runner := scripts.NewRunner(logger, cfg.ConnectScriptTimeout)
	defer runner.Wait()

	options := []connection.Option{
		connection.WithLauncher(process.NewLauncher(cfg.OpenVPNPath, logger)),
		connection.WithPrompter(terminal),
		connection.WithNotifier(terminal),
		connection.WithScripts(runner),
	}
	st, err := store.Open(cfg.StateFile, cfg.KeyFile, logger)
	if err != nil {
		logger.Warnf("main: nothing will be saved: %s", err.Error())
	} else {
		options = append(options, connection.WithStore(st))
	}

	sup := supervisor.New(cfg.ResolvedProfiles(), model.NewConfig(cfg.Options(logger)...), options...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() {
		runDone <- sup.Run(ctx)
	}()

	if err := sup.ConnectAll(ctx, names...); err != nil {
		logger.Warnf("main: %s", err.Error())
	}

	idle := make(chan error, 1)
	go func() {
		idle <- sup.WaitIdle(ctx)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case sig := <-sigs:
		logger.Infof("main: got %s, disconnecting", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, shutdownTimeout)
		defer shutdownCancel()
		if err := sup.DisconnectAll(shutdownCtx); err != nil {
			logger.Warnf("main: %s", err.Error())
		}
	case err := <-idle:
		if err != nil {
			logger.Warnf("main: %s", err.Error())
		}
		logger.Info("main: all connections are down")
	}

	cancel()
	return <-runDone
}
