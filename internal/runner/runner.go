// 包 runner：外部命令执行的统一契约（退出码、耗时、错误），便于在测试中替换
package runner

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"pmtiles-api/internal/logger"
	"sync"
	"time"
)

// Result：一次调用的结果；ExitCode 为 0 表示成功
type Result struct {
	ExitCode int
	Duration time.Duration
	// Stderr 仅保留末尾若干字节，用于失败日志
	Stderr string
}

func (r Result) Success() bool { return r.ExitCode == 0 }

// Runner：执行外部命令
// 约束：进程正常结束（含非零退出）时 error 为 nil，由 ExitCode 表达；
// 无法启动、被 ctx 取消或超时时返回 error，ExitCode 为 -1
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Result, error)
}

const stderrTail = 4096

type Exec struct {
	// WaitDelay：ctx 取消后等待子进程释放输出管道的上限
	WaitDelay time.Duration
}

func NewExec() *Exec { return &Exec{WaitDelay: 5 * time.Second} }

func (e *Exec) Run(ctx context.Context, name string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = e.WaitDelay
	tail := &tailBuffer{max: stderrTail}
	cmd.Stderr = tail
	start := time.Now()
	err := cmd.Run()
	res := Result{Duration: time.Since(start), Stderr: tail.String()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		return res, fmt.Errorf("%s: %w", name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	res.ExitCode = -1
	return res, fmt.Errorf("%s: %w", name, err)
}

// tailBuffer：只保留最后 max 字节
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}

// Available：以 `<tool> --help` 探测工具是否可用
func Available(ctx context.Context, r Runner, tool string) bool {
	res, err := r.Run(ctx, tool, "--help")
	return err == nil && res.Success()
}

// EnsureTools：并发探测全部工具，返回缺失列表对应的错误
func EnsureTools(ctx context.Context, r Runner, tools ...string) error {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		missing []string
	)
	for _, tool := range tools {
		wg.Add(1)
		go func(tool string) {
			defer wg.Done()
			if !Available(ctx, r, tool) {
				mu.Lock()
				missing = append(missing, tool)
				mu.Unlock()
			}
		}(tool)
	}
	wg.Wait()
	if len(missing) > 0 {
		logger.L().Error("tools_missing", "tools", missing)
		return fmt.Errorf("missing required tool(s): %v", missing)
	}
	return nil
}
