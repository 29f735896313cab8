// File: cmd/store.go
package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/xkilldash9x/relock/internal/config"
	"github.com/xkilldash9x/relock/internal/observability"
)

// newStoreCmd groups store inspection subcommands.
func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Inspect the learned locator store.",
	}
	cmd.AddCommand(newStoreListCmd())
	return cmd
}

// newStoreListCmd dumps learned records, newest first, for every identity.
func newStoreListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List learned locators per element identity, newest first.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()
			logger := observability.GetLogger()
			ctx := cmd.Context()

			st, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			ids, err := st.Identities(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				cmd.Println("store is empty")
				return nil
			}

			for _, id := range ids {
				recs, err := st.RecordsFor(ctx, id)
				if err != nil {
					return err
				}
				cmd.Printf("%s\n", id.String())
				for _, rec := range recs {
					cmd.Printf("  %s  learned %s\n",
						rec.Descriptor,
						rec.Timestamp.Format(time.RFC3339))
				}
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newStoreCmd())
}
