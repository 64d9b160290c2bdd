// Package main provides the entry point for the agent session workspace
// server: one process per workspace directory, speaking the wire protocol
// over a single websocket endpoint. A workspace supervisor spawns this
// binary and tracks its listen address; it can also be run standalone for
// debugging with a REPL client pointed at its socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/agentsessiond/agentsession/internal/command"
	"github.com/agentsessiond/agentsession/internal/config"
	"github.com/agentsessiond/agentsession/internal/mediator"
	"github.com/agentsessiond/agentsession/internal/provider"
	"github.com/agentsessiond/agentsession/internal/runtime"
	"github.com/agentsessiond/agentsession/internal/tool"
	"github.com/agentsessiond/agentsession/internal/transcript"
	"github.com/agentsessiond/agentsession/internal/transport"
)

var (
	port      = flag.Int("port", 0, "Server port (0 picks an ephemeral port)")
	directory = flag.String("directory", "", "Working directory")
	version   = flag.Bool("version", false, "Print version and exit")
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("agentsessiond %s (%s)\n", Version, BuildTime)
		os.Exit(0)
	}

	workDir := *directory
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			log.Fatalf("failed to get working directory: %v", err)
		}
	}

	log.Printf("starting agentsessiond %s", Version)
	log.Printf("working directory: %s", workDir)

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		log.Fatalf("failed to create data directories: %v", err)
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store := transcript.New(paths.StoragePath())

	ctx := context.Background()
	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		log.Printf("warning: failed to initialize some providers: %v", err)
	}

	toolReg := tool.DefaultRegistry(workDir, store)
	permChecker := mediator.NewChecker()

	var defaultProviderID, defaultModelID string
	if appConfig.Model != "" {
		parts := strings.SplitN(appConfig.Model, "/", 2)
		if len(parts) == 2 {
			defaultProviderID, defaultModelID = parts[0], parts[1]
		}
	}

	cmdExec := command.NewExecutor(workDir, appConfig)

	service := runtime.NewServiceWithProcessor(store, providerReg, toolReg, permChecker, defaultProviderID, defaultModelID)
	dispatcher := runtime.NewDispatcher(service, toolReg, runtime.DefaultAgent(), workDir).
		WithProviderAuth(providerReg, paths.AuthPath()).
		WithMediator(permChecker).
		WithCommands(cmdExec)

	srv := transport.New(transport.Config{
		Addr: fmt.Sprintf("127.0.0.1:%d", *port),
	}, dispatcher)

	go func() {
		log.Printf("listening on %s", srv.Addr())
		if err := srv.Start(); err != nil {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	log.Println("server stopped")
}
