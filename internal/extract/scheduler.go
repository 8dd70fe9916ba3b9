// 包 extract：按包围盒从 planet 归档提取 locality 产物；固定批量并发，批间严格屏障
package extract

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"pmtiles-api/internal/boundary"
	"pmtiles-api/internal/logger"
	"pmtiles-api/internal/metrics"
	"pmtiles-api/internal/runner"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 10
	DefaultCommand     = "pmtiles"
	DefaultTimeout     = 30 * time.Minute
	// PartialSuffix：工具输出的临时文件后缀；成功后改名为正式产物，目录计数不包含它
	PartialSuffix = ".part"
)

type Outcome int

const (
	Skipped Outcome = iota
	Succeeded
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Result：单个提取任务的终态；Failed 时 ExitCode 为工具退出码（无法启动或超时为 -1）
type Result struct {
	Country    string
	LocalityID string
	Path       string
	Outcome    Outcome
	ExitCode   int
	Err        error
	Duration   time.Duration
}

type Summary struct {
	Results   []Result
	Skipped   int
	Succeeded int
	Failed    int
}

func (s *Summary) add(r Result) {
	s.Results = append(s.Results, r)
	switch r.Outcome {
	case Skipped:
		s.Skipped++
	case Succeeded:
		s.Succeeded++
	case Failed:
		s.Failed++
	}
}

// Artifacts：调度器依赖的产物目录能力
type Artifacts interface {
	Exists(country, id string) (bool, error)
	Path(country, id string) string
	EnsureCountryDir(country string) (string, error)
}

type Scheduler struct {
	run     runner.Runner
	dir     Artifacts
	command string
	limit   int
	timeout time.Duration
}

type Option func(*Scheduler)

// WithConcurrency：批大小即同时在途的外部调用上限
func WithConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.limit = n
		}
	}
}

func WithCommand(cmd string) Option {
	return func(s *Scheduler) {
		if cmd != "" {
			s.command = cmd
		}
	}
}

// WithTimeout：单次外部调用的超时；<=0 表示不设超时
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

func New(r runner.Runner, dir Artifacts, opts ...Option) *Scheduler {
	s := &Scheduler{run: r, dir: dir, command: DefaultCommand, limit: DefaultConcurrency, timeout: DefaultTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Scheduler) Concurrency() int { return s.limit }

// ExtractAll：按 countries 顺序逐国处理；每国切分为 limit 大小的批次，批内并行、批间串行
// 约束：单项失败只记录不中断；ctx 取消后不再启动新批次并返回 ctx 错误
func (s *Scheduler) ExtractAll(ctx context.Context, localities []boundary.LocalityBounds, sourceRef string, countries []string) (Summary, error) {
	byCountry := make(map[string][]boundary.LocalityBounds)
	for _, l := range localities {
		byCountry[l.Country] = append(byCountry[l.Country], l)
	}
	var sum Summary
	l := logger.L()
	l.Info("extract_start", "countries", len(countries), "source", sourceRef, "concurrency", s.limit)
	for _, country := range countries {
		items := byCountry[country]
		if len(items) == 0 {
			l.Info("extract_country_empty", "country", country)
			continue
		}
		if _, err := s.dir.EnsureCountryDir(country); err != nil {
			return sum, fmt.Errorf("prepare %s: %w", country, err)
		}
		l.Info("extract_country_begin", "country", country, "localities", len(items))
		before := sum
		for start := 0; start < len(items); start += s.limit {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			end := min(start+s.limit, len(items))
			for _, r := range s.runBatch(ctx, items[start:end], sourceRef) {
				sum.add(r)
			}
		}
		l.Info("extract_country_done", "country", country,
			"succeeded", sum.Succeeded-before.Succeeded,
			"skipped", sum.Skipped-before.Skipped,
			"failed", sum.Failed-before.Failed)
	}
	l.Info("extract_done", "succeeded", sum.Succeeded, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, nil
}

// runBatch：批内全部任务并行启动，全部结束后返回（批屏障）
func (s *Scheduler) runBatch(ctx context.Context, batch []boundary.LocalityBounds, sourceRef string) []Result {
	results := make([]Result, len(batch))
	var g errgroup.Group
	for i := range batch {
		g.Go(func() error {
			results[i] = s.extractOne(ctx, batch[i], sourceRef)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Scheduler) extractOne(ctx context.Context, loc boundary.LocalityBounds, sourceRef string) Result {
	l := logger.L()
	res := Result{Country: loc.Country, LocalityID: loc.ID, Path: s.dir.Path(loc.Country, loc.ID)}

	exists, err := s.dir.Exists(loc.Country, loc.ID)
	if err != nil {
		res.Outcome, res.ExitCode, res.Err = Failed, -1, err
		l.Error("extract_stat_error", "country", loc.Country, "id", loc.ID, "err", err)
		metrics.ExtractionsTotal.WithLabelValues(res.Outcome.String()).Inc()
		return res
	}
	if exists {
		res.Outcome = Skipped
		l.Debug("extract_skip_existing", "country", loc.Country, "id", loc.ID)
		metrics.ExtractionsTotal.WithLabelValues(res.Outcome.String()).Inc()
		return res
	}

	bbox := loc.Bounds.String()
	l.Info("extract_begin", "country", loc.Country, "id", loc.ID, "bbox", bbox, "area_km2", int64(loc.Bounds.AreaKm2()))

	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	// 约束：工具被超时或取消杀死时只会留下 .part，正式路径上的文件总是完整的
	tmp := res.Path + PartialSuffix
	discard(tmp)
	metrics.ExtractionsInFlight.Inc()
	out, err := s.run.Run(runCtx, s.command, "extract", sourceRef, tmp, "--bbox="+bbox)
	metrics.ExtractionsInFlight.Dec()
	metrics.ExtractionDurationSec.Observe(out.Duration.Seconds())
	res.Duration = out.Duration

	switch {
	case err != nil:
		res.Outcome, res.ExitCode, res.Err = Failed, -1, err
		l.Error("extract_error", "country", loc.Country, "id", loc.ID, "err", err)
	case !out.Success():
		res.Outcome, res.ExitCode = Failed, out.ExitCode
		res.Err = fmt.Errorf("%s exited with code %d", s.command, out.ExitCode)
		l.Error("extract_failed", "country", loc.Country, "id", loc.ID, "code", out.ExitCode, "stderr", out.Stderr)
	default:
		if err := os.Rename(tmp, res.Path); err != nil {
			res.Outcome, res.ExitCode, res.Err = Failed, -1, fmt.Errorf("publish %s: %w", res.Path, err)
			l.Error("extract_publish_error", "country", loc.Country, "id", loc.ID, "err", err)
			break
		}
		res.Outcome = Succeeded
		l.Info("extract_ok", "country", loc.Country, "id", loc.ID, "duration_ms", out.Duration.Milliseconds())
	}
	if res.Outcome == Failed {
		discard(tmp)
	}
	metrics.ExtractionsTotal.WithLabelValues(res.Outcome.String()).Inc()
	return res
}

func discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.L().Warn("extract_cleanup_error", "path", path, "err", err)
	}
}
