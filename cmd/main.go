// 程序入口：读取配置、准备边界库与产物、对账后启动 HTTP 服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"pmtiles-api/internal/api"
	"pmtiles-api/internal/app"
	"pmtiles-api/internal/artifact"
	"pmtiles-api/internal/cache"
	"pmtiles-api/internal/config"
	"pmtiles-api/internal/logger"
	"pmtiles-api/internal/middleware"
	"pmtiles-api/internal/reconcile"
	"pmtiles-api/internal/runner"
	"pmtiles-api/internal/tiles"
	"pmtiles-api/internal/utils"
	"syscall"
	"time"
)

func main() {
	config.LoadDotenv()
	l := logger.Setup()
	l.Debug("log_init_ok")
	c := config.Load()
	l.Debug("config_loaded", "addr", c.Addr, "assets", c.AssetsDir, "driver", c.BoundaryDriver, "targets", len(c.TargetCountries))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := runner.NewExec()
	if err := runner.EnsureTools(ctx, r, c.ExtractCmd); err != nil {
		l.Error("tools_missing", "err", err)
		os.Exit(1)
	}
	if err := app.PrepareBoundary(ctx, c); err != nil {
		l.Error("boundary_prepare_error", "err", err)
		os.Exit(1)
	}
	st, err := app.OpenStore(ctx, c)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer st.Close()

	dir := artifact.New(c.AssetsDir)
	confirm := reconcile.FromSetting(c.AutoExtract, os.Stdin, os.Stdout)
	out, err := app.NewEngine(c, st, dir, r, confirm, os.Stdout).Run(ctx)
	if err != nil {
		// 对账失败不阻止服务启动，已有产物仍可访问
		l.Error("reconcile_error", "phase", out.Phase.String(), "err", err)
	}
	if ctx.Err() != nil {
		l.Info("shutdown_before_listen")
		return
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else if err := rc.Ping(ctx).Err(); err != nil {
		l.Error("redis_ping_error", "err", err)
		rc = nil
	} else {
		l.Info("redis_ping_ok")
		defer rc.Close()
	}

	mux := api.BuildRoutes(api.Deps{
		Store:     st,
		Artifacts: dir,
		Tiles:     tiles.NewServer(dir),
		Cache:     cache.New(rc, 1024),
		CacheTTL:  c.CacheTTL,
	})
	qps := 0
	if c.RateLimitEnabled {
		qps = c.RateLimitQPS
	}
	handler := middleware.Chain(mux,
		logger.AccessMiddleware(l),
		middleware.CORS(c.CORSOrigin),
		middleware.RateLimit(qps),
	)
	s := &http.Server{Addr: c.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		l.Info("listening", "addr", c.Addr)
		errCh <- s.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			l.Error("listen_error", "err", err)
		}
	case <-ctx.Done():
		l.Info("shutting_down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil {
			l.Error("shutdown_error", "err", err)
		}
	}
}
