package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/dMirror/cmd/util"
	"github.com/ValentinKolb/dMirror/lib/mirror"
	"github.com/ValentinKolb/dMirror/rpc/http"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	log = logger.GetLogger("cli")

	serveConfig = http.DefaultConfig()
	ServeCmd    = &cobra.Command{
		Use:     "serve",
		Short:   "Serve a store over a JSON HTTP API",
		Long:    `Open the store, keep it loaded in memory and serve its collections over a JSON HTTP API. The configuration can be set via command line flags or environment variables. The format of the environment variables is DMIRROR_<flag> (e.g. DMIRROR_ENDPOINT=:9090)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "endpoint"
	ServeCmd.Flags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080)"))

	key = "shutdown-timeout"
	ServeCmd.Flags().Int(key, 5, cmdUtil.WrapString("Seconds to wait for running requests on shutdown"))
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := cmdUtil.BindCommandFlags(cmd); err != nil {
		return err
	}

	config := cmdUtil.GetConfig()
	if err := cmdUtil.InitLoggers(config.LogLevel); err != nil {
		return err
	}

	serveConfig.Endpoint = viper.GetString("endpoint")
	serveConfig.ShutdownTimeout = time.Duration(viper.GetInt("shutdown-timeout")) * time.Second
	serveConfig.LogRequests = config.LogLevel == "debug"
	return nil
}

// run opens the store and serves it until SIGINT or SIGTERM
func run(cmd *cobra.Command, _ []string) error {
	config := cmdUtil.GetConfig()
	fmt.Print(config.String())

	m, err := cmdUtil.NewMirror(config)
	if err != nil {
		return err
	}

	// the API answers 503 until the initial sync finished
	err = m.Open(cmd.Context(), func(err error) {
		if err != nil {
			log.Errorf("initial sync of store %q failed: %v", m.Name(), err)
			return
		}
		log.Infof("store %q is ready", m.Name())
	})
	if err != nil {
		return err
	}

	srv := http.NewServer(m, serveConfig)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Listen() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		log.Infof("shutting down")
		err = srv.Shutdown(context.Background())
	}

	return closeMirror(m, err)
}

// closeMirror flushes and closes the mirror, keeping the first error
func closeMirror(m *mirror.Mirror, err error) error {
	flushCtx, cancel := context.WithTimeout(context.Background(), serveConfig.ShutdownTimeout)
	defer cancel()
	if flushErr := m.Flush(flushCtx); flushErr != nil && err == nil {
		err = flushErr
	}
	if closeErr := m.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
