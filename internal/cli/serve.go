package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MozoPOS/internal/version"
	"MozoPOS/pkg/logging"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the order and payment API to the UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.SERVICE.PORT = port
			}

			logger := logging.GetLogger()
			logger.Info("Start serve")
			defer logger.Info("End serve")
			logger.Infof("Version %s", version.GetVersion().String())

			app, err := NewApp(cfg)
			if err != nil {
				return err
			}
			defer app.Close()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.SERVICE.PORT),
				Handler:           app.Handler.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errc := make(chan error, 1)
			go func() {
				logger.Infof("listening on %s", srv.Addr)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				return errors.Wrap(err, "failed http.ListenAndServe()")
			case <-ctx.Done():
			}

			// In-flight reconciliations finish on their own detached timeouts.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.CallTimeout()*2)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides [service] port)")
	return cmd
}
