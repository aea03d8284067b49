package collection

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dMirror/cmd/util"
	"github.com/ValentinKolb/dMirror/lib/mirror"
	"github.com/ValentinKolb/dMirror/lib/record"
	"github.com/spf13/cobra"
)

var (
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists the collections of the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range storeMirror.Collections() {
				cfg, _ := storeMirror.Config(name)
				s, err := storeMirror.With(name)
				if err != nil {
					return err
				}
				fmt.Printf("%-20s key=%s autoIncrement=%t unique=[%s] records=%d\n",
					name, cfg.KeyField, cfg.AutoIncrement, strings.Join(cfg.Unique, ","), s.Count())
			}
			return nil
		},
	}
	insertCmd = &cobra.Command{
		Use:   "insert [collection] [record]",
		Short: "Inserts a JSON record and prints it with its assigned key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := with(args[0])
			if err != nil {
				return err
			}
			r, err := record.ParseJSON([]byte(args[1]))
			if err != nil {
				return fmt.Errorf("record must be a JSON object: %w", err)
			}
			stored, err := s.Insert(r)
			if err != nil {
				return err
			}
			return printRecord(stored)
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [collection] [key]",
		Short: "Gets the record with the given key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := with(args[0])
			if err != nil {
				return err
			}
			key := util.ParseValue(args[1])
			r, found := s.Get(key)
			if !found {
				fmt.Printf("key=%v, found=false\n", key)
				return nil
			}
			return printRecord(r)
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [collection] [key]",
		Short: "Deletes the record with the given key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := with(args[0])
			if err != nil {
				return err
			}
			key := util.ParseValue(args[1])
			if _, found := s.Delete(key); !found {
				fmt.Printf("key=%v, found=false\n", key)
				return nil
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [collection] [key] [field=value]...",
		Short: "Updates fields of the record with the given key",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := with(args[0])
			if err != nil {
				return err
			}
			changes := make([]mirror.Change, 0, len(args)-2)
			for _, arg := range args[2:] {
				field, value, ok := strings.Cut(arg, "=")
				if !ok || field == "" {
					return fmt.Errorf("invalid change %q, expected field=value", arg)
				}
				changes = append(changes, mirror.Change{Field: field, Value: util.ParseValue(value)})
			}
			updated, err := s.Update(util.ParseValue(args[1]), changes...)
			if err != nil {
				return err
			}
			return printRecord(updated)
		},
	}
	truncateCmd = &cobra.Command{
		Use:   "truncate [collection]",
		Short: "Removes all records of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := with(args[0])
			if err != nil {
				return err
			}
			if err := s.Truncate(); err != nil {
				return err
			}
			fmt.Println("truncated successfully")
			return nil
		},
	}
	fetchAllCmd = &cobra.Command{
		Use:   "fetchall [collection]",
		Short: "Prints all records of a collection in key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := with(args[0])
			if err != nil {
				return err
			}
			return printRecords(s.FetchAll())
		},
	}
	countCmd = &cobra.Command{
		Use:   "count [collection]",
		Short: "Prints the number of records of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := with(args[0])
			if err != nil {
				return err
			}
			fmt.Println(s.Count())
			return nil
		},
	}
	matchCmd = &cobra.Command{
		Use:   "match [collection] [field] [value]",
		Short: "Prints the records whose field matches the value",
		Long:  `Prints the records whose field matches the value. A string value matches every string field containing it, other values must be equal.`,
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := with(args[0])
			if err != nil {
				return err
			}
			matches, ok := s.Match(mirror.Filter{Field: args[1], Value: util.ParseValue(args[2])})
			if !ok {
				fmt.Println("collection is empty")
				return nil
			}
			return printRecords(matches)
		},
	}
	selectCmd = &cobra.Command{
		Use:   "select [collection] [field]...",
		Short: "Projects the records of a collection onto the given fields",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := with(args[0])
			if err != nil {
				return err
			}
			return printRecords(s.Select(args[1:]...).FetchAll())
		},
	}
	joinCmd = &cobra.Command{
		Use:   "join [collection] [other] [on] [equals]",
		Short: "Inner joins two collections where collection.on equals other.equals",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := with(args[0])
			if err != nil {
				return err
			}
			joined, err := s.InnerJoin(args[1], mirror.JoinOn{On: args[2], Equals: args[3]})
			if err != nil {
				return err
			}
			fields, _ := cmd.Flags().GetStringSlice("select")
			if len(fields) > 0 {
				return printRecords(joined.Select(fields...).FetchAll())
			}
			return printRecords(joined.FetchAll())
		},
	}
)
