package reconcile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Confirmer：是否执行提取的外部确认来源（终端、配置或测试替身）
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type Static bool

func (s Static) Confirm(context.Context, string) (bool, error) { return bool(s), nil }

// Prompt：向 Out 打印提示并从 In 读取一行；仅 y / yes（不区分大小写）视为同意
// 约束：ctx 取消时若 In 实现了 io.Closer 则关闭它以结束阻塞的读取；否则读取协程会停留到 In 返回为止
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

func (p Prompt) Confirm(ctx context.Context, prompt string) (bool, error) {
	if p.Out != nil {
		if _, err := fmt.Fprintf(p.Out, "%s (y/n)\n", prompt); err != nil {
			return false, err
		}
	}
	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		ch <- answer{line, err}
	}()
	select {
	case <-ctx.Done():
		if c, ok := p.In.(io.Closer); ok {
			_ = c.Close()
		}
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, a.err
		}
		return Affirmative(a.line), nil
	}
}

func Affirmative(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes":
		return true
	}
	return false
}

// FromSetting：AUTO_EXTRACT=yes/no 时跳过交互，否则回退到终端提示
func FromSetting(setting string, in io.Reader, out io.Writer) Confirmer {
	switch strings.ToLower(strings.TrimSpace(setting)) {
	case "y", "yes", "true", "1":
		return Static(true)
	case "n", "no", "false", "0":
		return Static(false)
	}
	return Prompt{In: in, Out: out}
}
