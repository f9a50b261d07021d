package internal

import (
	"context"
	"net/http"
	"time"

	"fbdevops/internal/server"

	"github.com/go-faster/errors"
	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Serve runs srv until ctx is cancelled or the listener fails.
func Serve(ctx context.Context, srv *server.Server, log zerolog.Logger) error {
	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("🖥️  Dashboard started")
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Msg("🛑 Dashboard stopped")
		return nil
	}
}
