// Package main provides the questlink CLI: device pairing and quest
// assignment, run locally or against a relay.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hearthkin/questlink/internal/client"
	"github.com/hearthkin/questlink/internal/config"
	"github.com/hearthkin/questlink/internal/logging"
)

var (
	// configDir is set by the --config-dir flag.
	configDir string
	// parentID / childID override the configured device identity.
	parentID string
	childID  string

	cfg    *config.Config
	logger *slog.Logger
	app    *client.App
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "questlink",
	Short: "questlink pairs parent and child devices and syncs quest assignments",
	Long: `questlink manages pairing codes, link approvals, and quest assignments
between parent and child devices. Without a relay configured it keeps
everything on this device; with sync enabled it works against the relay
and queues writes while offline.`,
	SilenceUsage:      true,
	PersistentPreRunE: initApp,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app != nil {
			return app.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", config.DefaultDir(), "directory holding config.yaml and the device database")
	rootCmd.PersistentFlags().StringVar(&parentID, "parent", "", "act as this parent id (overrides config)")
	rootCmd.PersistentFlags().StringVar(&childID, "child", "", "act as this child id (overrides config)")

	rootCmd.AddCommand(pairCmd)
	rootCmd.AddCommand(linksCmd)
	rootCmd.AddCommand(assignCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(unassignCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(flushCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(versionCmd)
}

func initApp(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configDir)
	if err != nil {
		return err
	}
	if parentID != "" {
		cfg.ParentID = parentID
	}
	if childID != "" {
		cfg.ChildID = childID
	}

	logger = logging.Setup(cfg.LogLevel, cfg.LogFile)

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	app, err = client.New(cfg, logger)
	if err != nil {
		return err
	}
	logger.Debug("app ready", "mode", app.Mode)
	return nil
}

// requireParent returns the acting parent id or an error.
func requireParent() (string, error) {
	if cfg.ParentID == "" {
		return "", fmt.Errorf("no parent id: set parent_id in config or pass --parent")
	}
	return cfg.ParentID, nil
}

// requireChild returns the acting child id or an error.
func requireChild() (string, error) {
	if cfg.ChildID == "" {
		return "", fmt.Errorf("no child id: set child_id in config or pass --child")
	}
	return cfg.ChildID, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("questlink 0.4.1")
	},
}
