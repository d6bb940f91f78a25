package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/PCreations/syncview/internal/local"
)

// NewStatusCommand creates the status command: inspect the local cache
// without touching the network.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the local cache and pending writes",
		Long: "status opens the local cache database and reports the writes still\n" +
			"waiting for server acknowledgment. It never connects to the backend.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config()
			if err != nil {
				return err
			}
			store, err := local.OpenSQLite(cfg.Cache.Path)
			if err != nil {
				return fmt.Errorf("open cache %s: %w", cfg.Cache.Path, err)
			}
			defer store.Close()

			pending, err := store.PendingMutations(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.Format == "json" {
				type pendingJSON struct {
					ID       string `json:"id"`
					Document string `json:"document"`
					Seq      int64  `json:"seq"`
					Fields   int    `json:"fields"`
				}
				report := struct {
					Cache   string        `json:"cache"`
					Pending []pendingJSON `json:"pendingWrites"`
				}{Cache: cfg.Cache.Path, Pending: []pendingJSON{}}
				for _, m := range pending {
					report.Pending = append(report.Pending, pendingJSON{
						ID:       m.ID,
						Document: m.Key.Path(),
						Seq:      m.Seq,
						Fields:   len(m.Fields),
					})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			fmt.Fprintf(out, "cache: %s\n", cfg.Cache.Path)
			if len(pending) == 0 {
				fmt.Fprintln(out, "no pending writes")
				return nil
			}
			fmt.Fprintf(out, "%d pending write(s):\n", len(pending))
			for _, m := range pending {
				fmt.Fprintf(out, "  seq=%d %s %s (%d field(s))\n", m.Seq, m.ID, m.Key.Path(), len(m.Fields))
			}
			return nil
		},
	}
	return cmd
}
