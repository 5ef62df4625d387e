package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/clovis-agent/clovis/pkg/config"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication commands",
		Long:  `Manage the model provider API key stored in the settings file.`,
	}

	cmd.AddCommand(newAuthLoginCmd())
	cmd.AddCommand(newAuthLogoutCmd())
	cmd.AddCommand(newAuthStatusCmd())

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the model provider API key",
		Long: `Store the API key used for every model call (router, screen judge,
vision, annotation). The key is written to the settings file.`,
		Example: `  # Interactive login (key is not echoed)
  clovisd auth login

  # Provide the key directly
  clovisd auth login --api-key sk-xxxxx`,
		RunE: runAuthLogin,
	}

	cmd.Flags().StringP("api-key", "k", "", "API key (if not provided, will prompt)")

	return cmd
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored API key",
		RunE:  runAuthLogout,
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check authentication status",
		RunE:  runAuthStatus,
	}
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	settings, err := settingsFromCommand(cmd)
	if err != nil {
		return err
	}

	key, _ := cmd.Flags().GetString("api-key")
	if key == "" {
		key, err = promptForKey()
		if err != nil {
			return err
		}
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("no API key provided")
	}

	if err := settings.PersistModelAPIKey(key); err != nil {
		return err
	}
	fmt.Println("API key stored.")
	return nil
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	settings, err := settingsFromCommand(cmd)
	if err != nil {
		return err
	}
	if err := settings.PersistModelAPIKey(""); err != nil {
		return err
	}
	fmt.Println("API key removed.")
	return nil
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	settings, err := settingsFromCommand(cmd)
	if err != nil {
		return err
	}
	if settings.ModelProvider.APIKey == "" {
		fmt.Println("Not authenticated: no model provider API key configured.")
		return nil
	}
	fmt.Printf("Authenticated (key ending in %s).\n", keySuffix(settings.ModelProvider.APIKey))
	if settings.ModelProvider.Endpoint != "" {
		fmt.Printf("Endpoint: %s\n", settings.ModelProvider.Endpoint)
	}
	return nil
}

// promptForKey reads the key without echo when stdin is a terminal, and
// falls back to a plain line read otherwise (piped input, CI).
func promptForKey() (string, error) {
	fmt.Print("API key: ")
	if term.IsTerminal(int(syscall.Stdin)) {
		keyBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read API key: %w", err)
		}
		return string(keyBytes), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read API key: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func keySuffix(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "..." + key[len(key)-4:]
}
