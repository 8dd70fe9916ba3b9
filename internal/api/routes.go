// 包 api：集中注册 HTTP API 路由以解耦主入口，便于后续扩展与替换
package api

import (
	"context"
	"net/http"
	"pmtiles-api/internal/boundary"
	"pmtiles-api/internal/cache"
	"pmtiles-api/internal/metrics"
	"pmtiles-api/internal/tiles"
	"strconv"
	"time"
)

// PageLimit：检索接口固定每页条数
const PageLimit = 20

type Boundary interface {
	ListTargetCountries(ctx context.Context) ([]string, error)
	CountLocalities(ctx context.Context, country string) (int, error)
	SearchLocalities(ctx context.Context, country, query string, page, limit int) (boundary.Page, error)
}

type Sizer interface {
	Size(country, id string) (int64, bool, error)
}

type Deps struct {
	Store     Boundary
	Artifacts Sizer
	Tiles     *tiles.Server
	// Cache 为 nil 时不缓存
	Cache    cache.Cache
	CacheTTL time.Duration
}

// BuildRoutes：独立 ServeMux，便于在主入口挂载并叠加中间件
func BuildRoutes(d Deps) *http.ServeMux {
	h := &handlers{Deps: d}
	if h.CacheTTL <= 0 {
		h.CacheTTL = 10 * time.Minute
	}
	mux := http.NewServeMux()
	mux.Handle("GET /countries", instrument("countries", h.countries))
	mux.Handle("GET /countries/{code}/localities", instrument("localities", h.localities))
	mux.Handle("GET /countries/{code}/localities/{id}/pmtiles", instrument("pmtiles", h.pmtiles))
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

type handlers struct {
	Deps
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func instrument(route string, fn http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(sr, r)
		metrics.RequestsTotal.WithLabelValues(route, strconv.Itoa(sr.status)).Inc()
		metrics.RequestDurationMs.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}
