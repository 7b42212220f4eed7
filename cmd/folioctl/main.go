// Command folioctl runs maintenance tasks against a Folio deployment: it
// writes example configuration, compiles LaTeX documents through the backend
// and imports Markdown posts as drafts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/debemdeboas/folio/internal/api"
	"github.com/debemdeboas/folio/internal/config"
	"github.com/debemdeboas/folio/internal/logger"
)

// EnvPassword holds the password commands sign in with.
const EnvPassword = "FOLIO_PASSWORD"

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("63")).Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	logStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			PaddingLeft(1)
)

var rootCmd = &cobra.Command{
	Use:           "folioctl",
	Short:         "Maintenance tasks for a Folio site",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		path, _ := cmd.Flags().GetString("config")
		if path == "" {
			path = os.Getenv(config.EnvConfigPath)
		}
		if path != "" {
			if err := config.LoadConfig(path); err != nil {
				return err
			}
		}
		if url, _ := cmd.Flags().GetString("api"); url != "" {
			config.AppConfig.Backend.BaseURL = url
		}
		api.SetLogger(logger.New(config.AppConfig.Logging.Level))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: $"+config.EnvConfigPath+" or built-in defaults)")
	rootCmd.PersistentFlags().String("api", "", "backend base URL, overriding the config")
}

// staticTokens authenticates a command run with the tokens of one login.
type staticTokens struct {
	client  *api.Client
	access  string
	refresh string
}

func (t *staticTokens) Token(context.Context) (string, error) {
	return t.access, nil
}

func (t *staticTokens) Refresh(ctx context.Context) (string, error) {
	access, err := t.client.Refresh(ctx, t.refresh)
	if err != nil {
		return "", api.ErrSessionExpired
	}
	t.access = access
	return access, nil
}

// signIn logs in as username with the password from the environment.
func signIn(ctx context.Context, client *api.Client, username string) (*api.Client, error) {
	if username == "" {
		return nil, errors.New("--user is required")
	}
	password := os.Getenv(EnvPassword)
	if password == "" {
		return nil, fmt.Errorf("set %s to the password of %s", EnvPassword, username)
	}
	lr, err := client.Login(ctx, username, password)
	if err != nil {
		return nil, fmt.Errorf("signing in as %s: %w", username, err)
	}
	return client.WithTokens(&staticTokens{client: client, access: lr.Access, refresh: lr.Refresh}), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error: ")+err.Error())
		os.Exit(1)
	}
}
