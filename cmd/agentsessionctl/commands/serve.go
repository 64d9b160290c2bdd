package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentsessiond/agentsession/internal/command"
	"github.com/agentsessiond/agentsession/internal/config"
	"github.com/agentsessiond/agentsession/internal/logging"
	"github.com/agentsessiond/agentsession/internal/mcp"
	"github.com/agentsessiond/agentsession/internal/mediator"
	"github.com/agentsessiond/agentsession/internal/provider"
	"github.com/agentsessiond/agentsession/internal/runtime"
	"github.com/agentsessiond/agentsession/internal/tool"
	"github.com/agentsessiond/agentsession/internal/transcript"
	"github.com/agentsessiond/agentsession/internal/transport"
)

var (
	servePort     int
	serveHostname string
	serveDir      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a headless workspace server",
	Long: `Start the workspace server that exposes the wire protocol over a
persistent websocket connection.

This is the process a workspace supervisor spawns per project directory;
run it directly for debugging with a REPL client pointed at its socket.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveHostname, "hostname", "127.0.0.1", "Hostname to listen on")
	serveCmd.Flags().StringVar(&serveDir, "directory", "", "Working directory")
}

func runServe(cmd *cobra.Command, args []string) error {
	workDir, err := GetWorkDir(serveDir)
	if err != nil {
		return err
	}

	logging.Info().Str("version", Version).Msg("starting workspace server")
	logging.Info().Str("directory", workDir).Msg("working directory")

	paths := config.GetPaths()
	if err := paths.EnsurePaths(); err != nil {
		return err
	}

	appConfig, err := config.Load(workDir)
	if err != nil {
		return err
	}
	if model := GetGlobalModel(); model != "" {
		appConfig.Model = model
	}

	store := transcript.New(paths.StoragePath())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	providerReg, err := provider.InitializeProviders(ctx, appConfig)
	if err != nil {
		logging.Warn().Err(err).Msg("failed to initialize some providers")
	}

	toolReg := tool.DefaultRegistry(workDir, store)
	permChecker := mediator.NewChecker()

	mcpClient := mcp.NewClient()
	for name, srvCfg := range appConfig.MCP {
		mcfg := &mcp.Config{
			Type:        mcp.TransportType(srvCfg.Type),
			Command:     srvCfg.Command,
			URL:         srvCfg.URL,
			Headers:     srvCfg.Headers,
			Environment: srvCfg.Environment,
		}
		if err := mcpClient.AddServer(ctx, name, mcfg); err != nil {
			logging.Warn().Err(err).Str("server", name).Msg("failed to connect mcp server")
		}
	}
	mcp.RegisterMCPTools(mcpClient, toolReg)
	logging.Info().Int("mcpToolCount", len(mcpClient.Tools())).Msg("registered mcp tools")
	defer mcpClient.Close()

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
		Addr:           fmt.Sprintf("%s:%d", serveHostname, servePort),
		AllowedOrigins: []string{"*"},
	}, dispatcher)

	go func() {
		if err := srv.Start(); err != nil {
			logging.Fatal().Err(err).Msg("transport server error")
		}
	}()
	logging.Info().Str("addr", srv.Addr()).Msg("server listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logging.Info().Msg("shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("server shutdown error")
	}

	logging.Info().Msg("server stopped")
	return nil
}
