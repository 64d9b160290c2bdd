package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/agentsessiond/agentsession/internal/auth"
	"github.com/agentsessiond/agentsession/internal/config"
	"github.com/spf13/cobra"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage provider credentials",
	Long: `Manage authentication credentials for AI providers.

Subcommands:
  list     List all configured providers and their status
  login    Log in to a provider
  logout   Log out from a provider`,
}

var authListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List all providers and their status",
	RunE:    runAuthList,
}

var authLoginCmd = &cobra.Command{
	Use:   "login [provider]",
	Short: "Log in to a provider",
	Long: `Log in to a provider by providing an API key.

Supported providers:
  anthropic    Anthropic (Claude)
  openai       OpenAI (GPT-4, etc.)
  google       Google AI (Gemini)`,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout [provider]",
	Short: "Log out from a provider",
	RunE:  runAuthLogout,
}

func init() {
	authCmd.AddCommand(authListCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authLogoutCmd)
}

// envVarsByProvider mirrors what the wire protocol's provider_status entries
// also report, so the CLI view and a connected client never disagree about
// what counts as "configured".
var envVarsByProvider = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"google":    "GOOGLE_API_KEY",
	"bedrock":   "AWS_ACCESS_KEY_ID",
}

func runAuthList(cmd *cobra.Command, args []string) error {
	paths := config.GetPaths()
	store := auth.NewStore(paths.AuthPath())
	creds := store.All()

	fmt.Println("Provider Authentication Status:")
	fmt.Println()

	for _, provider := range auth.AllProviders() {
		status := "not configured"
		if envVar, ok := envVarsByProvider[provider]; ok && os.Getenv(envVar) != "" {
			status = fmt.Sprintf("configured (via %s)", envVar)
		}
		if c, ok := creds[provider]; ok {
			status = fmt.Sprintf("configured (via auth file, %s)", c.Mode)
		}
		fmt.Printf("  %-12s %s\n", provider, status)
	}

	fmt.Println()
	fmt.Printf("Auth file: %s\n", paths.AuthPath())
	return nil
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provider name required. Use: agentsessionctl auth login <provider>")
	}
	provider := args[0]

	fmt.Printf("Enter API key for %s: ", provider)
	reader := bufio.NewReader(os.Stdin)
	apiKey, err := reader.ReadString('\n')
	if err != nil {
		return err
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	store := auth.NewStore(config.GetPaths().AuthPath())
	if err := store.SetAPIKey(provider, apiKey); err != nil {
		return fmt.Errorf("failed to save auth: %w", err)
	}

	fmt.Printf("Successfully logged in to %s\n", provider)
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provider name required. Use: agentsessionctl auth logout <provider>")
	}
	provider := args[0]

	store := auth.NewStore(config.GetPaths().AuthPath())
	if _, ok := store.Get(provider); !ok {
		return fmt.Errorf("not logged in to %s", provider)
	}
	if err := store.Remove(provider); err != nil {
		return fmt.Errorf("failed to save auth: %w", err)
	}

	fmt.Printf("Successfully logged out from %s\n", provider)
	return nil
}
