// 包 bootstrap：首次启动时准备 WhosOnFirst 离线库（下载 .db.bz2 并解压）
package bootstrap

import (
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"pmtiles-api/internal/logger"
	"time"
)

// Fetcher：下载与解压离线库；Client 为空时使用 http.DefaultClient
type Fetcher struct {
	URL    string
	Client *http.Client
	// ProgressEvery：未知总长度时的进度日志间隔
	ProgressEvery time.Duration
}

func exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// EnsureDatabase：dbPath 已存在时直接返回；压缩包已存在时跳过下载只解压
// 约束：先写入 .part 临时文件再改名，中断不会留下半成品
func (f *Fetcher) EnsureDatabase(ctx context.Context, dbPath string) error {
	if exists(dbPath) {
		logger.L().Debug("wof_db_present", "path", dbPath)
		return nil
	}
	archive := dbPath + ".bz2"
	if exists(archive) {
		logger.L().Info("wof_archive_present", "path", archive)
	} else if err := f.download(ctx, archive); err != nil {
		return err
	}
	if err := decompress(archive, dbPath); err != nil {
		return err
	}
	return os.Remove(archive)
}

func (f *Fetcher) download(ctx context.Context, dst string) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return err
	}
	logger.L().Info("wof_download_start", "url", f.URL)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", f.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: %s", f.URL, resp.Status)
	}

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	pw := &progressWriter{total: resp.ContentLength, every: f.ProgressEvery, last: time.Now()}
	if pw.every <= 0 {
		pw.every = 5 * time.Second
	}
	n, err := io.Copy(io.MultiWriter(out, pw), resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("download %s: %w", f.URL, err)
	}
	logger.L().Info("wof_download_done", "bytes", n)
	return os.Rename(tmp, dst)
}

func decompress(src, dst string) error {
	logger.L().Info("wof_decompress_start", "src", src)
	start := time.Now()
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	n, err := io.Copy(out, bzip2.NewReader(in))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		var se bzip2.StructuralError
		if errors.As(err, &se) {
			return fmt.Errorf("decompress %s: corrupt archive: %w", src, err)
		}
		return fmt.Errorf("decompress %s: %w", src, err)
	}
	logger.L().Info("wof_decompress_done", "bytes", n, "dur_ms", time.Since(start).Milliseconds())
	return os.Rename(tmp, dst)
}

// progressWriter：已知总长度时按 10% 步进记录，否则按时间间隔记录
type progressWriter struct {
	total    int64
	received int64
	step     int64
	every    time.Duration
	last     time.Time
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.received += int64(len(b))
	if p.total > 0 {
		if s := p.received * 10 / p.total; s > p.step {
			p.step = s
			logger.L().Info("wof_download_progress", "percent", s*10, "received", p.received, "total", p.total)
		}
		return len(b), nil
	}
	if time.Since(p.last) >= p.every {
		p.last = time.Now()
		logger.L().Info("wof_download_progress", "received", p.received)
	}
	return len(b), nil
}
