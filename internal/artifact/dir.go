// 包 artifact：locality 产物文件的路径解析与存在性判断；{root}/localities/{country}/{id}.pmtiles
package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const Ext = ".pmtiles"

var ErrNotFound = errors.New("artifact not found")

// Dir：产物命名空间；仅提取调度器写入，其余组件只读
type Dir struct {
	root string
}

func New(assetsRoot string) *Dir {
	return &Dir{root: filepath.Join(assetsRoot, "localities")}
}

func (d *Dir) Root() string { return d.root }

// validSegment：国家代码与 id 必须是单段路径名，防止越出根目录
func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`) && !strings.ContainsRune(s, 0)
}

func (d *Dir) CountryDir(country string) string {
	return filepath.Join(d.root, country)
}

func (d *Dir) Path(country, id string) string {
	return filepath.Join(d.root, country, id+Ext)
}

func (d *Dir) stat(country, id string) (fs.FileInfo, error) {
	if !validSegment(country) || !validSegment(id) {
		return nil, ErrNotFound
	}
	fi, err := os.Stat(d.Path(country, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, ErrNotFound
	}
	return fi, nil
}

func (d *Dir) Exists(country, id string) (bool, error) {
	_, err := d.stat(country, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Size：文件不存在时 ok=false
func (d *Dir) Size(country, id string) (int64, bool, error) {
	fi, err := d.stat(country, id)
	if errors.Is(err, ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return fi.Size(), true, nil
}

// Open：返回可 Seek 的只读句柄及其元信息；调用方负责关闭
func (d *Dir) Open(country, id string) (*os.File, fs.FileInfo, error) {
	if _, err := d.stat(country, id); err != nil {
		return nil, nil, err
	}
	f, err := os.Open(d.Path(country, id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return f, fi, nil
}

// CountArtifacts：统计国家目录下的 .pmtiles 普通文件；目录尚未创建时返回 0
func (d *Dir) CountArtifacts(country string) (int, error) {
	if !validSegment(country) {
		return 0, nil
	}
	entries, err := os.ReadDir(d.CountryDir(country))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("count artifacts %s: %w", country, err)
	}
	n := 0
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(e.Name(), Ext) {
			n++
		}
	}
	return n, nil
}

// EnsureCountryDir：幂等创建国家目录
func (d *Dir) EnsureCountryDir(country string) (string, error) {
	if !validSegment(country) {
		return "", fmt.Errorf("invalid country code %q", country)
	}
	p := d.CountryDir(country)
	if err := os.MkdirAll(p, 0o755); err != nil {
		return "", err
	}
	return p, nil
}
