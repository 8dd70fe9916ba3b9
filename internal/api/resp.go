package api

import (
	"encoding/json"
	"net/http"
	"pmtiles-api/internal/logger"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// writeServerError：数据层等不可恢复错误统一 500；细节只写日志，不回显给客户端
func writeServerError(w http.ResponseWriter, r *http.Request, err error) {
	logger.L().Error("http_server_error", "path", r.URL.Path, "request_id", w.Header().Get(logger.RequestIDHeader), "err", err)
	writeError(w, http.StatusInternalServerError, msgInternal)
}

const msgInternal = "Internal server error"
