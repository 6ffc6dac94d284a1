package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hearthkin/questlink/internal/backup"
)

var backupPassphrase string

func init() {
	exportCmd.Flags().StringVar(&backupPassphrase, "passphrase", "", "archive passphrase (required)")
	exportCmd.MarkFlagRequired("passphrase")
	importCmd.Flags().StringVar(&backupPassphrase, "passphrase", "", "archive passphrase (required)")
	importCmd.MarkFlagRequired("passphrase")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export <archive-file>",
	Short: "Write an encrypted archive of links, codes, and assignments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blob, err := backup.Export(app.KV(), backupPassphrase)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], blob, 0o600); err != nil {
			return err
		}
		fmt.Printf("Exported to %s (%d bytes).\n", args[0], len(blob))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <archive-file>",
	Short: "Restore pairing data from an encrypted archive",
	Long: `Restore replaces this device's links, codes, and assignments with the
archive's contents. The offline queue and response cache are untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		blob, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		n, err := backup.Import(app.KV(), blob, backupPassphrase)
		if err != nil {
			return err
		}
		fmt.Printf("Restored %d record(s).\n", n)
		return nil
	},
}
