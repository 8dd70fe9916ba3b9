package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"pmtiles-api/internal/logger"
	"sort"
	"strings"
	"time"
)

const DefaultBuildBaseURL = "https://build.protomaps.com/"

// Build：Protomaps builds.json 中的一条构建记录
type Build struct {
	Key      string    `json:"key"`
	Size     int64     `json:"size"`
	MD5Sum   string    `json:"md5sum"`
	B3Sum    string    `json:"b3sum"`
	Uploaded time.Time `json:"uploaded"`
	Version  string    `json:"version"`
}

var ErrNoBuilds = errors.New("no planet builds found")

// SourceResolver：确定提取所用的 planet 归档地址；Override 非空时直接使用
type SourceResolver struct {
	Override  string
	BuildsURL string
	BaseURL   string
	Client    *http.Client
}

// Resolve：拉取构建列表并选择上传时间最新的一条
func (r *SourceResolver) Resolve(ctx context.Context) (string, error) {
	if r.Override != "" {
		return r.Override, nil
	}
	client := r.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger.L().Info("planet_resolve_begin", "builds_url", r.BuildsURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BuildsURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch builds: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch builds: %s", resp.Status)
	}
	var builds []Build
	if err := json.NewDecoder(resp.Body).Decode(&builds); err != nil {
		return "", fmt.Errorf("decode builds: %w", err)
	}
	if len(builds) == 0 {
		return "", ErrNoBuilds
	}
	sort.SliceStable(builds, func(i, j int) bool { return builds[i].Uploaded.After(builds[j].Uploaded) })
	base := r.BaseURL
	if base == "" {
		base = DefaultBuildBaseURL
	}
	url := strings.TrimSuffix(base, "/") + "/" + builds[0].Key
	logger.L().Info("planet_resolve_ok", "url", url, "uploaded", builds[0].Uploaded)
	return url, nil
}
