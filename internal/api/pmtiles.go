package api

import (
	"errors"
	"net/http"
	"pmtiles-api/internal/logger"
	"pmtiles-api/internal/metrics"
	"pmtiles-api/internal/tiles"
)

func (h *handlers) pmtiles(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Tiles.Serve(r.PathValue("code"), r.PathValue("id"), r.Header.Get("Range"))
	if errors.Is(err, tiles.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Pmtiles file not found")
		return
	}
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	kind := "full"
	if resp.Status == http.StatusPartialContent {
		kind = "partial"
	}
	n, err := resp.WriteTo(w)
	metrics.ArtifactBytesServed.WithLabelValues(kind).Add(float64(n))
	if err != nil {
		// 头部已写出，只能记录
		logger.L().Debug("pmtiles_write_error", "path", r.URL.Path, "bytes", n, "err", err)
	}
}
