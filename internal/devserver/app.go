package devserver

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmitrijs2005/kappi/internal/logging"
)

// App runs a Server on a TCP address until interrupted.
type App struct {
	addr   string
	server *Server
	logger logging.Logger
}

func NewApp(addr string, cfg Config) *App {
	srv := New(cfg)
	return &App{addr: addr, server: srv, logger: srv.logger}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run serves until ctx is cancelled or a termination signal arrives.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.initSignalHandler(cancelFunc)

	hs := &http.Server{Addr: app.addr, Handler: app.server, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info(ctx, "dev server listening", "addr", app.addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	app.logger.Info(shutdownCtx, "dev server stopping")
	return hs.Shutdown(shutdownCtx)
}
