package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/PCreations/syncview/internal/engine"
	"github.com/PCreations/syncview/internal/view"
)

// NewQueryCommand creates the query command: run a named query once and
// print the first authoritative result.
func NewQueryCommand(opts *RootOptions) *cobra.Command {
	var (
		cached  bool
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "query <queryfile> <name>",
		Short: "Evaluate a named query once and print the result",
		Long: "query subscribes to one query from a CUE query file and waits for the\n" +
			"first snapshot confirmed by the server, then prints it and exits.\n" +
			"With --cached the first snapshot is printed regardless of source.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			named, err := loadNamedQuery(args[0], args[1])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			eng, shutdown, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer shutdown()

			snaps := make(chan view.Snapshot, 16)
			sub, err := eng.Subscribe(ctx, named.Descriptor, engine.Options{
				IncludeQueryMetadataChanges: true,
			}, func(snap view.Snapshot) {
				select {
				case snaps <- snap:
				default:
				}
			})
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", named.Name, err)
			}
			defer sub.Unsubscribe()

			deadline := time.NewTimer(timeout)
			defer deadline.Stop()
			for {
				select {
				case snap := <-snaps:
					if snap.FromCache && !cached {
						continue
					}
					return writeSnapshot(cmd.OutOrStdout(), snap, opts.Format)
				case <-deadline.C:
					return fmt.Errorf("no server result for %s within %s", named.Name, timeout)
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		},
	}

	cmd.Flags().BoolVar(&cached, "cached", false, "accept a cache-only result")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for a server result")

	return cmd
}
