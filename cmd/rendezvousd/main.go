package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	kitlog "github.com/go-kit/kit/log"

	rdv "github.com/orbitalarena/rendezvous"
	"github.com/orbitalarena/rendezvous/server"
)

func main() {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)

	srvCfg, err := server.ConfigFromEnv()
	if err != nil {
		logger.Log("level", "critical", "msg", "invalid service configuration", "err", err)
		os.Exit(1)
	}
	cfg, err := rdv.LoadConfig("")
	if err != nil {
		logger.Log("level", "critical", "msg", "invalid engine configuration", "err", err)
		os.Exit(1)
	}

	// One kilometer in track ahead of the target unless a scenario file is provided.
	ic := rdv.NewGEOInitialConditions(-rdv.Rad2deg(1e3/rdv.GEORadius), rdv.DefaultBurnBudget)
	if srvCfg.Scenario != "" {
		if ic, err = rdv.LoadInitialConditions(srvCfg.Scenario); err != nil {
			logger.Log("level", "critical", "msg", "invalid scenario", "file", srvCfg.Scenario, "err", err)
			os.Exit(1)
		}
	}
	sess, err := rdv.NewSession(ic, cfg, logger)
	if err != nil {
		logger.Log("level", "critical", "msg", "could not create the session", "err", err)
		os.Exit(1)
	}

	srv := server.New(srvCfg.Addr, sess, srvCfg.StreamInterval, logger)

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Log("level", "notice", "msg", "starting server", "addr", srvCfg.Addr, "scenario", sess.Name)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log("level", "critical", "msg", "server listen error", "err", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Log("level", "notice", "msg", "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log("level", "critical", "msg", "server shutdown error", "err", err)
		os.Exit(1)
	}
	logger.Log("level", "notice", "msg", "server stopped")
}
