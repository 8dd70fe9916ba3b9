// 包 tiles：按 HTTP Range 语义提供 locality 产物文件（整文件 200 / 区间 206）
package tiles

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"pmtiles-api/internal/artifact"
	"regexp"
	"strconv"
	"strings"
)

// ErrNotFound：产物不存在；调用方转换为 404，不视为服务端错误
var ErrNotFound = errors.New("pmtiles file not found")

const ContentType = "application/octet-stream"

type Opener interface {
	Open(country, id string) (*os.File, fs.FileInfo, error)
}

// Response：与框架无关的响应描述；Body 由调用方关闭
type Response struct {
	Status        int
	Header        http.Header
	ContentLength int64
	Body          io.ReadCloser
}

// WriteTo：写出头部与正文并关闭 Body
func (r *Response) WriteTo(w http.ResponseWriter) (int64, error) {
	defer r.Body.Close()
	h := w.Header()
	for k, v := range r.Header {
		h[k] = v
	}
	w.WriteHeader(r.Status)
	return io.CopyN(w, r.Body, r.ContentLength)
}

type Server struct {
	dir Opener
}

func NewServer(dir Opener) *Server { return &Server{dir: dir} }

var rangeRe = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// ParseRange：解析单区间 bytes=start-end?；end 缺省为 size-1
// 约束：start<0、end>=size、start>end 或无法解析时 ok=false，由调用方回退为整文件响应
func ParseRange(header string, size int64) (start, end int64, ok bool) {
	m := rangeRe.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	end = size - 1
	if m[2] != "" {
		if end, err = strconv.ParseInt(m[2], 10, 64); err != nil {
			return 0, 0, false
		}
	}
	if start < 0 || end >= size || start > end {
		return 0, 0, false
	}
	return start, end, true
}

// Serve：解析产物并按 Range 头构造响应；文件缺失返回 ErrNotFound，其余 I/O 错误原样返回
func (s *Server) Serve(country, id, rangeHeader string) (*Response, error) {
	f, fi, err := s.dir.Open(country, id)
	if err != nil {
		if errors.Is(err, artifact.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	size := fi.Size()
	h := http.Header{}
	h.Set("Content-Type", ContentType)
	h.Set("Accept-Ranges", "bytes")

	if rangeHeader != "" {
		if start, end, ok := ParseRange(rangeHeader, size); ok {
			n := end - start + 1
			h.Set("Content-Length", strconv.FormatInt(n, 10))
			h.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
			return &Response{
				Status:        http.StatusPartialContent,
				Header:        h,
				ContentLength: n,
				Body:          sectionBody{io.NewSectionReader(f, start, n), f},
			}, nil
		}
	}

	h.Set("Content-Length", strconv.FormatInt(size, 10))
	h.Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+artifact.Ext))
	return &Response{Status: http.StatusOK, Header: h, ContentLength: size, Body: f}, nil
}

type sectionBody struct {
	io.Reader
	io.Closer
}
