package api

import (
	"errors"
	"net/http"
	"net/url"
	"pmtiles-api/internal/boundary"
	"pmtiles-api/internal/cache"
	"strconv"
)

// LocalityInfo：检索结果条目；FileSize 仅在产物已提取时出现
type LocalityInfo struct {
	boundary.Locality
	FileSize *int64 `json:"fileSize,omitempty"`
}

type localitiesResponse struct {
	Success    bool           `json:"success"`
	Data       []LocalityInfo `json:"data"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// parsePage：缺省为 1；非正整数视为客户端错误
func parsePage(s string) (int, bool) {
	if s == "" {
		return 1, true
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// searchCacheKey：各段先做转义，分隔符不会出现在段内
func searchCacheKey(code string, page int, query string) string {
	return "loc:" + url.QueryEscape(code) + ":" + strconv.Itoa(page) + ":" + url.QueryEscape(query)
}

func (h *handlers) localities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := r.PathValue("code")
	q := r.URL.Query()
	page, ok := parsePage(q.Get("page"))
	if !ok {
		writeError(w, http.StatusBadRequest, "Page must be a positive integer")
		return
	}
	query := q.Get("q")

	// 仅缓存数据集部分；文件大小随提取进度变化，每次实时读取
	key := searchCacheKey(code, page, query)
	var res boundary.Page
	if h.Cache == nil || !cache.GetJSON(ctx, h.Cache, key, &res) {
		var err error
		res, err = h.Store.SearchLocalities(ctx, code, query, page, PageLimit)
		if errors.Is(err, boundary.ErrInvalidPage) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err != nil {
			writeServerError(w, r, err)
			return
		}
		if h.Cache != nil {
			cache.SetJSON(ctx, h.Cache, key, res, h.CacheTTL)
		}
	}

	items := make([]LocalityInfo, 0, len(res.Items))
	for _, l := range res.Items {
		info := LocalityInfo{Locality: l}
		size, found, err := h.Artifacts.Size(code, l.ID)
		if err != nil {
			writeServerError(w, r, err)
			return
		}
		if found {
			info.FileSize = &size
		}
		items = append(items, info)
	}
	writeJSON(w, http.StatusOK, localitiesResponse{
		Success:    true,
		Data:       items,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
	})
}
