package main

import (
	"github.com/cronokirby/ginkou/pkg/lookup"
	"github.com/spf13/cobra"
)

func newGetCmd(root *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "get <word>",
		Short: "Search for all sentences containing a given word",
		Long: `Search for all sentences containing a given word.

The word must be given in dictionary form (e.g. 来る, not 来た). The shortest 200
sentences are printed, one per line.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := root.openDB()
			if err != nil {
				return err
			}
			defer conn.Close()

			limit := lookup.MaxResults
			if all {
				limit = 0
			}
			sentences, err := lookup.Lookup(conn, args[0], limit)
			if err != nil {
				return err
			}
			return lookup.Write(cmd.OutOrStdout(), sentences)
		},
	}
	cmd.Flags().BoolVarP(&all, "allwords", "a", false, "show all results instead of the shortest 200")
	return cmd
}
