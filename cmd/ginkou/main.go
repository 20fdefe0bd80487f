package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cronokirby/ginkou/pkg/db"
	"github.com/cronokirby/ginkou/pkg/ginkou"
	"github.com/spf13/cobra"
)

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		log.New(os.Stderr, "ginkou: ", 0).Print(err)
		os.Exit(1)
	}
}

type rootOptions struct {
	database string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "ginkou",
		Short:         "Japanese sentence bank",
		Long:          "ginkou stores sentences indexed by the dictionary form of every word they contain,\nand finds the shortest sentences that use a given word.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.database, "database", "d", "", "path to the sentence database (default $HOME/.ginkoudb)")

	cmd.AddCommand(newAddCmd(opts), newGetCmd(opts), newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), ginkou.Version())
		},
	}
}

// databasePath falls back to ~/.ginkoudb, or ./.ginkoudb when there is no home directory.
func (o *rootOptions) databasePath() string {
	if o.database != "" {
		return o.database
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ginkoudb"
	}
	return filepath.Join(home, ".ginkoudb")
}

func (o *rootOptions) openDB() (*sql.DB, error) {
	path := o.databasePath()
	conn, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return conn, nil
}
