package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PCreations/syncview/internal/model"
	"github.com/PCreations/syncview/internal/mutation"
	"github.com/PCreations/syncview/internal/value"
)

// NewWriteCommand creates the write command: apply field edits to one
// document and wait for the server to resolve the write.
func NewWriteCommand(opts *RootOptions) *cobra.Command {
	var (
		deletes []string
		timeout time.Duration
		noWait  bool
	)

	cmd := &cobra.Command{
		Use:   "write <collection/id> [field=value ...]",
		Short: "Write fields of a document",
		Long: "write applies field edits to one document. Values parse as JSON where\n" +
			"possible (numbers, booleans, null, arrays, objects) and fall back to\n" +
			"plain strings. The edit applies locally at once; by default the command\n" +
			"waits until the server accepts or rejects it.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := model.ParseKey(args[0])
			if err != nil {
				return err
			}
			edits, err := parseEdits(args[1:], deletes)
			if err != nil {
				return err
			}
			if len(edits) == 0 {
				return fmt.Errorf("nothing to write: give at least one field=value or --delete")
			}

			ctx := cmd.Context()
			eng, shutdown, err := openEngine(ctx, opts)
			if err != nil {
				return err
			}
			defer shutdown()

			pending, err := eng.Write(ctx, key, edits)
			if err != nil {
				return err
			}
			if noWait {
				fmt.Fprintf(cmd.OutOrStdout(), "queued %s (write %s)\n", key.Path(), pending.ID())
				return nil
			}

			select {
			case err := <-pending.Done():
				if err != nil {
					return fmt.Errorf("write rejected: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "committed %s\n", key.Path())
				return nil
			case <-time.After(timeout):
				return fmt.Errorf("write %s not resolved within %s (still queued locally)", pending.ID(), timeout)
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}

	cmd.Flags().StringArrayVar(&deletes, "delete", nil, "field path to delete (repeatable)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the server outcome")
	cmd.Flags().BoolVar(&noWait, "no-wait", false, "queue the write locally and exit without waiting")

	return cmd
}

// parseEdits turns field=value arguments and delete paths into field
// mutations. A value that parses as JSON keeps its JSON type; anything
// else is a string.
func parseEdits(assignments, deletes []string) ([]mutation.FieldMutation, error) {
	edits := make([]mutation.FieldMutation, 0, len(assignments)+len(deletes))
	for _, arg := range assignments {
		path, raw, ok := strings.Cut(arg, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid field edit %q: want field=value", arg)
		}
		val, err := parseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", path, err)
		}
		edits = append(edits, mutation.FieldMutation{Path: path, Value: val})
	}
	for _, path := range deletes {
		if path == "" {
			return nil, fmt.Errorf("empty --delete path")
		}
		edits = append(edits, mutation.FieldMutation{Path: path})
	}
	return edits, nil
}

func parseValue(raw string) (value.Value, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil || dec.More() {
		// Not JSON, take it verbatim. Lets users skip shell-quoting
		// plain words: title=hello instead of title='"hello"'.
		return value.String(raw), nil
	}
	return fromJSON(decoded)
}

// fromJSON converts a json-decoded tree into a Value, keeping integers
// integral. value.FromGo alone would see every JSON number as float64.
func fromJSON(v any) (value.Value, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return value.Integer(i), nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", val.String())
		}
		return value.Double(f), nil
	case []any:
		arr := make(value.Array, len(val))
		for i, elem := range val {
			converted, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			arr[i] = converted
		}
		return arr, nil
	case map[string]any:
		m := make(value.Map, len(val))
		for k, elem := range val {
			converted, err := fromJSON(elem)
			if err != nil {
				return nil, err
			}
			m[k] = converted
		}
		return m, nil
	default:
		return value.FromGo(val)
	}
}
