package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/hupe1980/devassist/config"
	"github.com/hupe1980/devassist/logging"
)

var (
	configPath string
	verbose    bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "devassist",
	Short: "Repository-aware development assistant",
	Long: `devassist answers questions about a GitHub repository and edits it
through a small set of tools: listing, reading, writing and searching files,
inspecting history, branching, opening pull requests and triggering deploys.

Usage:
  devassist serve
  devassist chat "What does apps/ethos/page.tsx render?"`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(func(o *config.Options) { o.ConfigFile = configPath })
		if err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("devassist", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the configured backend. The returned func flushes it.
func newLogger(c *config.Config) (logging.Logger, func(), error) {
	level := logging.ParseLevel(c.Log.Level)
	if verbose {
		level = logging.LogLevelDebug
	}

	switch c.Log.Backend {
	case "zap":
		z, err := logging.NewZapLogger(verbose)
		if err != nil {
			return nil, nil, fmt.Errorf("create zap logger: %w", err)
		}
		return z, func() { _ = z.Sync() }, nil
	case "", "slog":
		return logging.NewSlogLogger(level, c.Log.Format, false), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown log backend %q", c.Log.Backend)
	}
}

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#06B6D4"))
)

func printError(msg string, err error) {
	fmt.Fprintln(os.Stderr, errStyle.Render(fmt.Sprintf("Error: %s: %v", msg, err)))
}
