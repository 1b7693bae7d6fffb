package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andreyvit/tupledb"
)

var errNotFound = errors.New("not found")

func withStore(opts *rootOptions, cmd *cobra.Command, f func(store *tupledb.Store) error) error {
	store, err := opts.openStore(cmd)
	if err != nil {
		return err
	}
	err = f(store)
	if closeErr := store.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	return err
}

func newGetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "get <tuple>",
		Short:   "Print the value stored under a tuple",
		Example: `  tupledb get --db data.db '["user","alice"]'`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tup, err := parseTuple(args[0], false)
			if err != nil {
				return err
			}
			return withStore(opts, cmd, func(store *tupledb.Store) error {
				v, ok, err := store.Get(tup)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%v: %w", tup, errNotFound)
				}
				return printJSON(cmd.OutOrStdout(), v)
			})
		},
	}
}

func newExistsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "exists <tuple>",
		Short: "Print whether a tuple is stored",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tup, err := parseTuple(args[0], false)
			if err != nil {
				return err
			}
			return withStore(opts, cmd, func(store *tupledb.Store) error {
				ok, err := store.Exists(tup)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), ok)
			})
		},
	}
}

type scanOptions struct {
	Prefix, Gt, Gte, Lt, Lte string
	Limit                    int
	Reverse                  bool
}

func (so *scanOptions) args() (tupledb.ScanArgs, error) {
	var args tupledb.ScanArgs
	for _, f := range []struct {
		dst *tupledb.Tuple
		src string
	}{{&args.Prefix, so.Prefix}, {&args.Gt, so.Gt}, {&args.Gte, so.Gte}, {&args.Lt, so.Lt}, {&args.Lte, so.Lte}} {
		if f.src == "" {
			continue
		}
		tup, err := parseTuple(f.src, true)
		if err != nil {
			return args, err
		}
		*f.dst = tup
	}
	args.Limit = so.Limit
	args.Reverse = so.Reverse
	return args, nil
}

func newScanCommand(opts *rootOptions) *cobra.Command {
	so := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Print stored pairs within a range, one JSON object per line",
		Long: `Print stored pairs within a range, one JSON object per line.

With --prefix, the scan covers every tuple starting with the prefix, and
the other bounds are relative to it.`,
		Example: `  tupledb scan --db data.db --prefix '["user"]' --limit 10
  tupledb scan --db data.db --gte '["score", 10]' --lt '["score", "$max"]' --reverse`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scanArgs, err := so.args()
			if err != nil {
				return err
			}
			return withStore(opts, cmd, func(store *tupledb.Store) error {
				pairs, err := store.Scan(scanArgs)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, pair := range pairs {
					if err := printPair(out, pair); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&so.Prefix, "prefix", "", "tuple prefix")
	cmd.Flags().StringVar(&so.Gt, "gt", "", "exclusive lower bound")
	cmd.Flags().StringVar(&so.Gte, "gte", "", "inclusive lower bound")
	cmd.Flags().StringVar(&so.Lt, "lt", "", "exclusive upper bound")
	cmd.Flags().StringVar(&so.Lte, "lte", "", "inclusive upper bound")
	cmd.Flags().IntVar(&so.Limit, "limit", 0, "maximum number of pairs (0 means no limit)")
	cmd.Flags().BoolVar(&so.Reverse, "reverse", false, "scan in descending order")
	return cmd
}

func newSetCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "set <tuple> <value>",
		Short:   "Store a value under a tuple",
		Example: `  tupledb set --db data.db '["user","alice"]' '{"age": 30}'`,
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tup, err := parseTuple(args[0], false)
			if err != nil {
				return err
			}
			v, err := parseValue(args[1])
			if err != nil {
				return err
			}
			return withStore(opts, cmd, func(store *tupledb.Store) error {
				return store.Commit(tupledb.Writes{
					Set: []tupledb.TupleValuePair{{Tuple: tup, Value: v}},
				}, 0, nil)
			})
		},
	}
}

func newRemoveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <tuple>...",
		Aliases: []string{"remove"},
		Short:   "Remove tuples",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var w tupledb.Writes
			for _, arg := range args {
				tup, err := parseTuple(arg, false)
				if err != nil {
					return err
				}
				w.Remove = append(w.Remove, tup)
			}
			return withStore(opts, cmd, func(store *tupledb.Store) error {
				return store.Commit(w, 0, nil)
			})
		},
	}
}

func newDumpCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print every stored pair, one JSON object per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, cmd, func(store *tupledb.Store) error {
				return store.Dump(cmd.OutOrStdout())
			})
		},
	}
}

// parseTuple parses a JSON array. With allowSentinels, the top-level
// strings "$min" and "$max" become tupledb.Min and tupledb.Max.
func parseTuple(s string, allowSentinels bool) (tupledb.Tuple, error) {
	v, err := decodeJSON(s)
	if err != nil {
		return nil, fmt.Errorf("tuple %s: %w", s, err)
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("tuple %s: must be a JSON array", s)
	}
	tup := tupledb.Tuple(arr)
	if allowSentinels {
		for i, el := range tup {
			switch el {
			case tupledb.Min.String():
				tup[i] = tupledb.Min
			case tupledb.Max.String():
				tup[i] = tupledb.Max
			}
		}
	}
	return tupledb.NormalizeTuple(tup, allowSentinels)
}

func parseValue(s string) (tupledb.Value, error) {
	v, err := decodeJSON(s)
	if err != nil {
		return nil, fmt.Errorf("value %s: %w", s, err)
	}
	return tupledb.NormalizeValue(v)
}

func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data")
	}
	return v, nil
}

func printJSON(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", raw)
	return err
}

func printPair(w io.Writer, pair tupledb.TupleValuePair) error {
	return printJSON(w, struct {
		Tuple tupledb.Tuple `json:"tuple"`
		Value tupledb.Value `json:"value"`
	}{pair.Tuple, pair.Value})
}
