// 包 app：入口共用的依赖装配（边界库、产物目录、对账引擎）
package app

import (
	"context"
	"fmt"
	"io"
	"pmtiles-api/internal/artifact"
	"pmtiles-api/internal/bootstrap"
	"pmtiles-api/internal/boundary"
	"pmtiles-api/internal/config"
	"pmtiles-api/internal/extract"
	"pmtiles-api/internal/logger"
	"pmtiles-api/internal/migrate"
	"pmtiles-api/internal/reconcile"
	"pmtiles-api/internal/runner"
	"pmtiles-api/internal/utils"
	"time"
)

// PrepareBoundary：sqlite 模式下确保离线库存在，并按配置建索引
// 约束：建索引使用独立可写连接并立即关闭，服务期间只持有只读连接池
func PrepareBoundary(ctx context.Context, c config.Config) error {
	l := logger.L()
	switch c.BoundaryDriver {
	case "", "sqlite":
		f := &bootstrap.Fetcher{URL: c.BoundaryDownloadURL}
		if err := f.EnsureDatabase(ctx, c.BoundaryDBPath); err != nil {
			return fmt.Errorf("prepare boundary db: %w", err)
		}
		if !c.BoundaryEnsureIndexes {
			return nil
		}
		rw, err := utils.OpenSQLiteReadWrite(c.BoundaryDBPath)
		if err != nil {
			return err
		}
		defer rw.Close()
		return migrate.EnsureIndexes(ctx, rw)
	case "postgres":
		if !c.BoundaryEnsureIndexes {
			return nil
		}
		db, err := utils.OpenBoundaryDB(c.BoundaryDriver, "", c.BoundaryDBURL)
		if err != nil {
			return err
		}
		defer db.Close()
		return migrate.EnsureIndexes(ctx, db)
	}
	l.Error("boundary_driver_unsupported", "driver", c.BoundaryDriver)
	return fmt.Errorf("unsupported boundary driver %q", c.BoundaryDriver)
}

// OpenStore：打开只读连接池并探活
func OpenStore(ctx context.Context, c config.Config) (*boundary.Store, error) {
	db, err := utils.OpenBoundaryDB(c.BoundaryDriver, c.BoundaryDBPath, c.BoundaryDBURL)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping: %w", boundary.ErrDataLayer, err)
	}
	logger.L().Info("db_open_ok", "driver", c.BoundaryDriver)
	return boundary.AttachDB(db, c.BoundaryDriver, c.TargetCountries), nil
}

// NewEngine：按配置组装对账引擎；confirm 为 nil 时只对账不提取
func NewEngine(c config.Config, st *boundary.Store, dir *artifact.Dir, r runner.Runner, confirm reconcile.Confirmer, report io.Writer) *reconcile.Engine {
	sched := extract.New(r, dir,
		extract.WithConcurrency(c.ExtractConcurrency),
		extract.WithCommand(c.ExtractCmd),
		extract.WithTimeout(c.ExtractTimeout),
	)
	return reconcile.New(reconcile.Config{
		Store:       st,
		Artifacts:   dir,
		Extractor:   sched,
		Source:      &extract.SourceResolver{Override: c.SourceArchiveURL, BuildsURL: c.BuildsURL},
		Confirm:     confirm,
		Concurrency: c.ReconcileConcurrency,
		Report:      report,
	})
}
