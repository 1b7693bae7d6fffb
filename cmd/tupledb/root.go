package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "tupledb",
		Short: "Inspect and edit a tuple store",
		Long: `Inspect and edit a tuple store.

Tuples and values are JSON. In bound tuples (scan flags), the strings
"$min" and "$max" stand for the smallest and largest possible values.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.resolve(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", backendBolt, "storage backend (bolt|pebble|memory)")
	cmd.PersistentFlags().StringVar(&opts.Path, "db", "", "path to the database")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "YAML config file")

	cmd.AddCommand(newGetCommand(opts))
	cmd.AddCommand(newExistsCommand(opts))
	cmd.AddCommand(newScanCommand(opts))
	cmd.AddCommand(newSetCommand(opts))
	cmd.AddCommand(newRemoveCommand(opts))
	cmd.AddCommand(newDumpCommand(opts))

	return cmd
}
