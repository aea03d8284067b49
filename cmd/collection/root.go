package collection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/dMirror/cmd/util"
	"github.com/ValentinKolb/dMirror/lib/mirror"
	"github.com/ValentinKolb/dMirror/lib/record"
	"github.com/spf13/cobra"
)

var (
	storeMirror *mirror.Mirror

	// CollectionCommands represents the collection command group
	CollectionCommands = &cobra.Command{
		Use:                "col",
		Aliases:            []string{"collection"},
		Short:              "Read, write and query the collections of a store",
		Long:               `Read, write and query the collections of a store. Every command opens the store, waits until all collections are loaded and flushes pending writes before it exits. Records and values are given as JSON, values that are no valid JSON are read as plain strings.`,
		PersistentPreRunE:  openMirror,
		PersistentPostRunE: closeMirror,
	}
)

func init() {
	// Add subcommands
	CollectionCommands.AddCommand(listCmd)
	CollectionCommands.AddCommand(insertCmd)
	CollectionCommands.AddCommand(getCmd)
	CollectionCommands.AddCommand(deleteCmd)
	CollectionCommands.AddCommand(updateCmd)
	CollectionCommands.AddCommand(truncateCmd)
	CollectionCommands.AddCommand(fetchAllCmd)
	CollectionCommands.AddCommand(countCmd)
	CollectionCommands.AddCommand(matchCmd)
	CollectionCommands.AddCommand(selectCmd)
	CollectionCommands.AddCommand(joinCmd)

	key := "select"
	joinCmd.Flags().StringSlice(key, nil, util.WrapString("Fields to project the join result onto (e.g. users.name,orders.total)"))
}

// openMirror opens the configured store and waits for the initial sync
func openMirror(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	config := util.GetConfig()
	if err := util.InitLoggers(config.LogLevel); err != nil {
		return err
	}
	m, err := util.OpenMirror(cmd.Context(), config)
	if err != nil {
		return err
	}
	storeMirror = m
	return nil
}

// closeMirror flushes pending writes and closes the store
func closeMirror(cmd *cobra.Command, _ []string) error {
	if storeMirror == nil {
		return nil
	}
	defer func() { storeMirror = nil }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	flushErr := storeMirror.Flush(ctx)
	if err := storeMirror.Close(); err != nil {
		return err
	}
	return flushErr
}

// with returns the named collection of the open store
func with(name string) (*mirror.Storage, error) {
	if storeMirror == nil {
		return nil, mirror.ErrNotOpen
	}
	return storeMirror.With(name)
}

// printRecords writes one JSON document per record
func printRecords(records []record.Record) error {
	for _, r := range records {
		if err := printRecord(r); err != nil {
			return err
		}
	}
	return nil
}

func printRecord(r record.Record) error {
	out, err := json.Marshal(r)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
