// 包 reconcile：对比边界数据集与磁盘产物数量，判定各国完成度，并在确认后触发补齐提取
package reconcile

import (
	"context"
	"fmt"
	"io"
	"pmtiles-api/internal/boundary"
	"pmtiles-api/internal/extract"
	"pmtiles-api/internal/logger"
	"pmtiles-api/internal/metrics"

	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 50

// Phase：单次 Run 的状态机 Idle -> Checking -> {AllComplete, Incomplete} -> {Declined, Extracting -> Done}
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseChecking
	PhaseAllComplete
	PhaseIncomplete
	PhaseDeclined
	PhaseExtracting
	PhaseDone
)

func (p Phase) String() string {
	return [...]string{"idle", "checking", "all_complete", "incomplete", "declined", "extracting", "done"}[p]
}

type Boundary interface {
	ListTargetCountries(ctx context.Context) ([]string, error)
	CountLocalities(ctx context.Context, country string) (int, error)
	ListAllLocalitiesWithBounds(ctx context.Context) ([]boundary.LocalityBounds, error)
}

type Artifacts interface {
	CountArtifacts(country string) (int, error)
}

type Extractor interface {
	ExtractAll(ctx context.Context, localities []boundary.LocalityBounds, sourceRef string, countries []string) (extract.Summary, error)
}

type Source interface {
	Resolve(ctx context.Context) (string, error)
}

type Engine struct {
	store     Boundary
	dir       Artifacts
	extractor Extractor
	source    Source
	confirm   Confirmer
	limit     int
	out       io.Writer
}

type Config struct {
	Store     Boundary
	Artifacts Artifacts
	Extractor Extractor
	Source    Source
	Confirm   Confirmer
	// Concurrency：统计阶段按国家并发的上限，与提取并发独立
	Concurrency int
	// Report：不完整时打印对账表的目标，nil 时丢弃
	Report io.Writer
}

func New(c Config) *Engine {
	e := &Engine{
		store: c.Store, dir: c.Artifacts, extractor: c.Extractor, source: c.Source,
		confirm: c.Confirm, limit: c.Concurrency, out: c.Report,
	}
	if e.limit <= 0 {
		e.limit = DefaultConcurrency
	}
	if e.confirm == nil {
		e.confirm = Static(false)
	}
	if e.out == nil {
		e.out = io.Discard
	}
	return e
}

// Outcome：Run 的终态；Summary 仅在执行了提取时非空
type Outcome struct {
	Phase   Phase
	Report  Report
	Summary *extract.Summary
}

// Check：并发统计每个目标国家的数据集数量与产物数量，结果按目标国家顺序排列
func (e *Engine) Check(ctx context.Context) (Report, error) {
	countries, err := e.store.ListTargetCountries(ctx)
	if err != nil {
		return Report{}, err
	}
	statuses := make([]CountryStatus, len(countries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.limit)
	for i, code := range countries {
		g.Go(func() error {
			dbCount, err := e.store.CountLocalities(gctx, code)
			if err != nil {
				return err
			}
			fileCount, err := e.dir.CountArtifacts(code)
			if err != nil {
				return err
			}
			st := CountryStatus{CountryCode: code, CountryName: boundary.CountryName(code), DBCount: dbCount, FileCount: fileCount}
			st.State = classify(st)
			statuses[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	r := Report{Countries: statuses}
	for _, s := range []State{Complete, Incomplete, Empty} {
		metrics.ReconcileCountries.WithLabelValues(s.String()).Set(float64(r.Count(s)))
	}
	return r, nil
}

// Run：对账；全部完成则结束，否则打印报表并请求确认，同意后仅对不完整国家执行提取
func (e *Engine) Run(ctx context.Context) (Outcome, error) {
	l := logger.L()
	l.Info("reconcile_phase", "phase", PhaseChecking.String())
	rep, err := e.Check(ctx)
	if err != nil {
		return Outcome{Phase: PhaseChecking}, err
	}
	out := Outcome{Phase: PhaseAllComplete, Report: rep}
	if empty := rep.Count(Empty); empty > 0 {
		l.Info("reconcile_empty_countries", "count", empty)
	}
	if rep.AllComplete() {
		l.Info("reconcile_all_complete", "countries", len(rep.Countries))
		return out, nil
	}

	out.Phase = PhaseIncomplete
	incomplete := rep.IncompleteCountries()
	l.Info("reconcile_phase", "phase", out.Phase.String(), "incomplete", len(incomplete))
	if err := rep.WriteTable(e.out); err != nil {
		return out, err
	}
	ok, err := e.confirm.Confirm(ctx, fmt.Sprintf("%d countries are missing localities. Extract the missing localities?", len(incomplete)))
	if err != nil {
		return out, err
	}
	if !ok || e.extractor == nil {
		out.Phase = PhaseDeclined
		l.Info("reconcile_extraction_skipped")
		return out, nil
	}

	out.Phase = PhaseExtracting
	l.Info("reconcile_phase", "phase", out.Phase.String())
	src, err := e.source.Resolve(ctx)
	if err != nil {
		return out, err
	}
	locs, err := e.store.ListAllLocalitiesWithBounds(ctx)
	if err != nil {
		return out, err
	}
	sum, err := e.extractor.ExtractAll(ctx, locs, src, incomplete)
	out.Summary = &sum
	if err != nil {
		return out, err
	}
	out.Phase = PhaseDone
	l.Info("reconcile_phase", "phase", out.Phase.String(), "succeeded", sum.Succeeded, "skipped", sum.Skipped, "failed", sum.Failed)
	return out, nil
}
