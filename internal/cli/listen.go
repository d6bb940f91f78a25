package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/PCreations/syncview/internal/engine"
	"github.com/PCreations/syncview/internal/queryfile"
	"github.com/PCreations/syncview/internal/view"
)

// NewListenCommand creates the listen command: subscribe to a named query
// and print every snapshot until interrupted.
func NewListenCommand(opts *RootOptions) *cobra.Command {
	var (
		docMetadata   bool
		queryMetadata bool
	)

	cmd := &cobra.Command{
		Use:   "listen <queryfile> <name>",
		Short: "Stream live snapshots of a named query",
		Long: "listen subscribes to one query from a CUE query file and prints a\n" +
			"snapshot for every delivered update. The first snapshot comes from the\n" +
			"local cache; later ones follow server batches and local writes.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			named, err := loadNamedQuery(args[0], args[1])
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			eng, shutdown, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer shutdown()

			out := cmd.OutOrStdout()
			subOpts := engine.Options{
				IncludeDocumentMetadataChanges: docMetadata,
				IncludeQueryMetadataChanges:    queryMetadata,
			}
			sub, err := eng.Subscribe(ctx, named.Descriptor, subOpts, func(snap view.Snapshot) {
				if err := writeSnapshot(out, snap, opts.Format); err != nil {
					fmt.Fprintln(cmd.ErrOrStderr(), err)
				}
			})
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", named.Name, err)
			}
			defer sub.Unsubscribe()

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().BoolVar(&docMetadata, "doc-metadata", false,
		"deliver snapshots whose only change is per-document metadata")
	cmd.Flags().BoolVar(&queryMetadata, "query-metadata", false,
		"deliver snapshots whose only change is the cache/server source flag")

	return cmd
}

// loadNamedQuery loads a query file and picks one query by name.
func loadNamedQuery(path, name string) (queryfile.NamedQuery, error) {
	queries, err := queryfile.LoadFile(path)
	if err != nil {
		return queryfile.NamedQuery{}, err
	}
	for _, q := range queries {
		if q.Name == name {
			return q, nil
		}
	}
	names := make([]string, len(queries))
	for i, q := range queries {
		names[i] = q.Name
	}
	return queryfile.NamedQuery{}, fmt.Errorf("query %q not found in %s (have %v)", name, path, names)
}
