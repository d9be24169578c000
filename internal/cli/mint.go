package cli

import (
	"fmt"

	"github.com/StewieC/DApp-PropertyVault/internal/token"
	"github.com/StewieC/DApp-PropertyVault/internal/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMintCmd(configPath *string) *cobra.Command {
	var (
		to      string
		amount  string
		approve bool
	)

	cmd := &cobra.Command{
		Use:   "mint",
		Short: "Credit test funds to an address (development faucet)",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer e.close()

			if !e.cfg.Token.FaucetEnabled {
				return fmt.Errorf("faucet is disabled, set token.faucet_enabled")
			}
			units, err := util.ParseUnits(amount, e.cfg.Vault.Decimals)
			if err != nil {
				return err
			}

			tok, err := token.New(e.db, e.cfg.Vault.Address)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			tr, err := tok.Mint(ctx, to, units)
			if err != nil {
				return fmt.Errorf("mint: %w", err)
			}
			if approve {
				if err := tok.Approve(ctx, to, tok.Vault(), units); err != nil {
					return fmt.Errorf("approve: %w", err)
				}
			}
			bal, err := tok.BalanceOf(ctx, to)
			if err != nil {
				return err
			}

			e.logger.Info("faucet mint", zap.String("to", to), zap.Int64("amount", units), zap.String("reference", tr.Reference))
			printf(cmd.OutOrStdout(), "minted %s %s to %s (balance %s, ref %s)\n",
				util.FormatUnits(units, e.cfg.Vault.Decimals), e.cfg.Vault.Symbol, to,
				util.FormatUnits(bal, e.cfg.Vault.Decimals), tr.Reference)
			return nil
		},
	}

	cmd.Flags().StringVar(&to, "to", "", "Recipient address")
	cmd.Flags().StringVar(&amount, "amount", "", "Amount in whole units, e.g. 100.5")
	cmd.Flags().BoolVar(&approve, "approve", false, "Also approve the vault to spend the minted amount")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}
