package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ValentinKolb/dMirror/cmd/collection"
	"github.com/ValentinKolb/dMirror/cmd/serve"
	"github.com/ValentinKolb/dMirror/cmd/util"
	"github.com/ValentinKolb/dMirror/lib/mirror"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dmirror",
		Short: "in-memory mirror of persistent record collections",
		Long: fmt.Sprintf(`dMirror (v%s)

An in-memory mirror of named record collections, backed by a
persistent store. Reads are served from memory, writes are applied
in memory first and persisted asynchronously in order.

All flags can be set as environment variables with the DMIRROR_ prefix
(e.g. DMIRROR_DATA_DIR=/var/lib/dmirror).`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dMirror",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dMirror v%s\n", Version)
		},
	}
	configCmd = &cobra.Command{
		Use:     "config",
		Short:   "Print the effective configuration",
		Args:    cobra.NoArgs,
		PreRunE: setup,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(util.GetConfig().String())
		},
	}
	statsCmd = &cobra.Command{
		Use:     "stats",
		Short:   "Load the store and print statistics about it",
		Args:    cobra.NoArgs,
		PreRunE: setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := util.OpenMirror(cmd.Context(), util.GetConfig())
			if err != nil {
				return err
			}
			defer m.Close()

			if prom, _ := cmd.Flags().GetBool("prometheus"); prom {
				mirror.WritePrometheus(os.Stdout)
				return nil
			}
			out, err := json.MarshalIndent(m.Info(), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	dropCmd = &cobra.Command{
		Use:     "drop",
		Short:   "Delete the store and all of its collections",
		Args:    cobra.NoArgs,
		PreRunE: setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return fmt.Errorf("refusing to drop store %q without --yes", util.GetConfig().Store)
			}
			m, err := util.NewMirror(util.GetConfig())
			if err != nil {
				return err
			}
			if err := m.Drop(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("dropped successfully")
			return nil
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(collection.CollectionCommands)
	RootCmd.AddCommand(statsCmd)
	RootCmd.AddCommand(dropCmd)
	RootCmd.AddCommand(configCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	util.SetupStoreFlags(RootCmd)

	key := "prometheus"
	statsCmd.Flags().Bool(key, false, util.WrapString("Print the metrics in the Prometheus text format instead of the store statistics"))

	key = "yes"
	dropCmd.Flags().Bool(key, false, util.WrapString("Confirm that the store should be deleted"))
}

// setup binds the flags of a command and initializes the loggers
func setup(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	return util.InitLoggers(util.GetConfig().LogLevel)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
