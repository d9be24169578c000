package cli

import (
	"fmt"
	"os"

	"github.com/StewieC/DApp-PropertyVault/internal/handler"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/spf13/cobra"
)

func newBackupCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Work with encrypted ledger backups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <file>",
		Short: "Decrypt a backup file and print a summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read backup: %w", err)
			}
			snap, err := handler.DecodeSnapshot(e.cfg.Security.EncryptionKey, data)
			if err != nil {
				return err
			}

			var saved int64
			for _, p := range snap.Properties {
				saved += p.TotalSaved
			}
			out := cmd.OutOrStdout()
			printf(out, "created:     %s\n", snap.Created.Format("2006-01-02 15:04:05 MST"))
			printf(out, "owner:       %s\n", snap.Owner)
			printf(out, "properties:  %d\n", len(snap.Properties))
			printf(out, "payments:    %d\n", len(snap.Payments))
			printf(out, "withdrawals: %d\n", len(snap.Withdrawals))
			printf(out, "accounts:    %d\n", len(snap.Accounts))
			printf(out, "total saved: %s %s\n", util.FormatUnits(saved, e.cfg.Vault.Decimals), e.cfg.Vault.Symbol)
			return nil
		},
	})
	return cmd
}
