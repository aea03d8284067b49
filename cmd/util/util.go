package util

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dMirror/lib/mirror"
	"github.com/ValentinKolb/dMirror/lib/persist"
	"github.com/ValentinKolb/dMirror/lib/persist/boltstore"
	"github.com/ValentinKolb/dMirror/lib/persist/memstore"
	"github.com/ValentinKolb/dMirror/lib/record"
	"github.com/ValentinKolb/dMirror/lib/record/codec"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by the CLI
	EnvPrefix = "dmirror"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupStoreFlags adds the store configuration flags to a command
func SetupStoreFlags(cmd *cobra.Command) {
	key := "store"
	cmd.PersistentFlags().String(key, "default", WrapString("Name of the store to mirror"))

	key = "backend"
	cmd.PersistentFlags().String(key, "bolt", WrapString("Persistence backend (bolt, memory). The memory backend forgets everything when the process exits"))

	key = "data-dir"
	cmd.PersistentFlags().String(key, "./data", WrapString("Directory holding the store files of the bolt backend"))

	key = "codec"
	cmd.PersistentFlags().String(key, "binary", WrapString("Record encoding of the bolt backend (json, gob, binary). Must not change for an existing store"))

	key = "schema"
	cmd.PersistentFlags().String(key, "", WrapString("YAML file declaring the collections of the store"))

	key = "store-version"
	cmd.PersistentFlags().Uint64(key, 1, WrapString("Schema version to open the store with. Raise it to create newly declared collections. A version in the schema file takes precedence"))

	key = "lock-timeout"
	cmd.PersistentFlags().Int(key, 5, WrapString("Seconds to wait for the file lock of a store held by another process (bolt backend)"))

	key = "sync-timeout"
	cmd.PersistentFlags().Int(key, 30, WrapString("Seconds to wait for the initial sync of all collections"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig loads env files and configures viper to read environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetConfig reads the configuration from viper
func GetConfig() *Config {
	return &Config{
		Store:          viper.GetString("store"),
		Backend:        viper.GetString("backend"),
		DataDir:        viper.GetString("data-dir"),
		Codec:          viper.GetString("codec"),
		SchemaFile:     viper.GetString("schema"),
		StoreVersion:   viper.GetUint64("store-version"),
		LockTimeoutSec: viper.GetInt("lock-timeout"),
		SyncTimeoutSec: viper.GetInt("sync-timeout"),
		LogLevel:       viper.GetString("log-level"),
	}
}

// NewBackend creates the persistence backend selected by the configuration
func NewBackend(c *Config) (persist.Backend, error) {
	switch c.Backend {
	case "memory":
		return memstore.NewBackend(), nil
	case "bolt":
		cd, err := codec.ByName(c.Codec)
		if err != nil {
			return nil, err
		}
		return boltstore.NewBackend(&boltstore.Options{
			Dir:     c.DataDir,
			Codec:   cd,
			Timeout: time.Duration(c.LockTimeoutSec) * time.Second,
		})
	default:
		return nil, fmt.Errorf("invalid backend %s", c.Backend)
	}
}

// NewMirror creates a closed mirror for the configuration with the schema file loaded
func NewMirror(c *Config) (*mirror.Mirror, error) {
	backend, err := NewBackend(c)
	if err != nil {
		return nil, err
	}

	opts := mirror.DefaultOptions()
	opts.Version = c.StoreVersion
	m := mirror.New(c.Store, backend, opts)

	if c.SchemaFile != "" {
		if err := m.LoadSchemaFile(c.SchemaFile); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// OpenMirror creates a mirror for the configuration, opens it and waits for the initial sync
func OpenMirror(ctx context.Context, c *Config) (*mirror.Mirror, error) {
	m, err := NewMirror(c)
	if err != nil {
		return nil, err
	}
	if err := m.Open(ctx, nil); err != nil {
		return nil, err
	}

	syncCtx, cancel := context.WithTimeout(ctx, time.Duration(c.SyncTimeoutSec)*time.Second)
	defer cancel()
	if err := m.WaitReady(syncCtx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("initial sync failed: %w", err)
	}
	return m, nil
}

// ParseValue interprets a command line argument as JSON value, falling back to a plain string
func ParseValue(arg string) any {
	if v, err := record.ParseValue([]byte(arg)); err == nil {
		return v
	}
	return arg
}
