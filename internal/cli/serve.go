package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"ivsurface/internal/server"
	"ivsurface/internal/surface"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve surfaces over HTTP",
		Long: `Starts a web server with an interactive page (ticker field and
strike/moneyness selector) at / and a JSON API under /api/v1:

  GET /api/v1/surface/{ticker}?mode=&resolution=&format=json|csv|html&refresh=
  GET /api/v1/quotes/{ticker}?refresh=
  GET /healthz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := surface.ParseMode(app.Config.Surface.DefaultMode)
			if err != nil {
				return err
			}

			srv := server.New(app.Collector, server.Options{
				DefaultTicker: app.Config.Surface.DefaultTicker,
				DefaultMode:   mode,
				Resolution:    app.Config.Surface.Resolution,
				Compress:      app.Config.Server.Compress,
				Now:           app.Now,
				Logger:        app.Logger,
			})

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: app.Config.Server.ReadTimeout,
				ReadTimeout:       app.Config.Server.ReadTimeout,
				WriteTimeout:      app.Config.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- httpServer.ListenAndServe()
			}()

			output := NewErrOutput(cmd)
			output.Success("✓ Serving on http://%s", addr)
			app.Logger.Info().Str("addr", addr).Msg("HTTP server started")

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			app.Logger.Info().Msg("Shutting down HTTP server")
			return httpServer.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", app.Config.Server.Addr, "listen address")
	return cmd
}
