// locality-check：一次性对账，打印各国家数据集数量与产物数量；存在不完整国家时退出码为 1
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"pmtiles-api/internal/app"
	"pmtiles-api/internal/artifact"
	"pmtiles-api/internal/config"
	"pmtiles-api/internal/logger"
	"pmtiles-api/internal/reconcile"
	"pmtiles-api/internal/runner"
	"syscall"
)

func main() {
	all := flag.Bool("all", false, "print every country, not only incomplete ones")
	flag.Parse()

	config.LoadDotenv()
	l := logger.Setup()
	c := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := app.OpenStore(ctx, c)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(2)
	}
	defer st.Close()

	eng := app.NewEngine(c, st, artifact.New(c.AssetsDir), runner.NewExec(), nil, nil)
	rep, err := eng.Check(ctx)
	if err != nil {
		l.Error("reconcile_error", "err", err)
		os.Exit(2)
	}
	shown := rep
	if !*all {
		shown = rep.Filter(reconcile.Incomplete, reconcile.Empty)
	}
	if err := shown.WriteTable(os.Stdout); err != nil {
		l.Error("report_write_error", "err", err)
	}
	if n := len(rep.IncompleteCountries()); n > 0 {
		l.Info("reconcile_incomplete", "countries", n)
		st.Close()
		stop()
		os.Exit(1)
	}
	l.Info("reconcile_all_complete", "countries", len(rep.Countries))
}
