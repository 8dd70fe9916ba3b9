package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"pmtiles-api/internal/artifact"
	"pmtiles-api/internal/boundary"
	"pmtiles-api/internal/boundary/boundarytest"
	"pmtiles-api/internal/cache"
	"pmtiles-api/internal/tiles"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	srv    *httptest.Server
	assets string
	store  *boundary.Store
}

func newFixture(t *testing.T, c cache.Cache, rows ...boundarytest.Row) *fixture {
	t.Helper()
	store := boundary.AttachDB(boundarytest.Open(t, rows...), "sqlite", nil)
	assets := t.TempDir()
	dir := artifact.New(assets)
	mux := BuildRoutes(Deps{Store: store, Artifacts: dir, Tiles: tiles.NewServer(dir), Cache: c})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, assets: assets, store: store}
}

func (f *fixture) writeArtifact(t *testing.T, country, id string, body []byte) {
	t.Helper()
	d := filepath.Join(f.assets, "localities", country)
	require.NoError(t, os.MkdirAll(d, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(d, id+artifact.Ext), body, 0o644))
}

func get(t *testing.T, url string, hdr map[string]string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func rows() []boundarytest.Row {
	var out []boundarytest.Row
	for i := 1; i <= 25; i++ {
		out = append(out, boundarytest.Locality(int64(i), "US", "Town "+strconv.Itoa(100+i), 40, -90))
	}
	return append(out,
		boundarytest.Locality(101, "FR", "Paris", 48.8, 2.3),
		boundarytest.Locality(102, "FR", "Lyon", 45.7, 4.8),
	)
}

func TestCountries(t *testing.T) {
	f := newFixture(t, nil, rows()...)
	resp, body := get(t, f.srv.URL+"/countries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Success bool          `json:"success"`
		Data    []CountryInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, out.Success)
	assert.Equal(t, []CountryInfo{
		{CountryCode: "FR", CountryName: "France", LocalityCount: 2},
		{CountryCode: "US", CountryName: "United States", LocalityCount: 25},
	}, out.Data)
}

func TestCountriesServedFromCache(t *testing.T) {
	c := cache.NewLRU(16)
	f := newFixture(t, c, rows()...)
	resp, _ := get(t, f.srv.URL+"/countries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, c.Len())

	// 缓存命中时不再访问数据库
	require.NoError(t, f.store.Close())
	resp, body := get(t, f.srv.URL+"/countries", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"countryCode":"FR"`)
}

func TestCountriesDataLayerError(t *testing.T) {
	f := newFixture(t, nil, rows()...)
	require.NoError(t, f.store.Close())
	resp, body := get(t, f.srv.URL+"/countries", nil)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, string(body), `"success":false`)
	assert.Contains(t, string(body), msgInternal)
	assert.NotContains(t, string(body), "data layer")
}

type searchBody struct {
	Success    bool           `json:"success"`
	Data       []LocalityInfo `json:"data"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

func TestLocalitiesPagination(t *testing.T) {
	f := newFixture(t, nil, rows()...)
	resp, body := get(t, f.srv.URL+"/countries/US/localities?page=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out searchBody
	require.NoError(t, json.Unmarshal(body, &out))
	assert.True(t, out.Success)
	assert.Equal(t, 25, out.Total)
	assert.Equal(t, 2, out.Page)
	assert.Equal(t, PageLimit, out.Limit)
	assert.Equal(t, 2, out.TotalPages)
	require.Len(t, out.Data, 5)
	assert.Equal(t, "Town 121", out.Data[0].Name)
}

func TestLocalitiesPrefixAndFileSize(t *testing.T) {
	f := newFixture(t, nil, rows()...)
	f.writeArtifact(t, "FR", "101", make([]byte, 1234))

	_, body := get(t, f.srv.URL+"/countries/FR/localities?q=Pa", nil)
	var out searchBody
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Data, 1)
	assert.Equal(t, "Paris", out.Data[0].Name)
	require.NotNil(t, out.Data[0].FileSize)
	assert.Equal(t, int64(1234), *out.Data[0].FileSize)

	_, body = get(t, f.srv.URL+"/countries/FR/localities?q=Ly", nil)
	out = searchBody{}
	require.NoError(t, json.Unmarshal(body, &out))
	require.Len(t, out.Data, 1)
	assert.Nil(t, out.Data[0].FileSize)
	assert.NotContains(t, string(body), "fileSize")
}

func TestLocalitiesEmptyResultIsArray(t *testing.T) {
	f := newFixture(t, nil, rows()...)
	_, body := get(t, f.srv.URL+"/countries/DE/localities", nil)
	assert.Contains(t, string(body), `"data":[]`)
	assert.Contains(t, string(body), `"total":0`)
}

func TestLocalitiesBadPage(t *testing.T) {
	f := newFixture(t, nil, rows()...)
	for _, p := range []string{"0", "-1", "abc", "2x"} {
		resp, body := get(t, f.srv.URL+"/countries/US/localities?page="+p, nil)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, p)
		assert.Contains(t, string(body), "positive integer", p)
	}
}

func TestLocalitiesFileSizeNotCached(t *testing.T) {
	f := newFixture(t, cache.NewLRU(16), rows()...)
	_, body := get(t, f.srv.URL+"/countries/FR/localities?q=Pa", nil)
	assert.NotContains(t, string(body), "fileSize")

	f.writeArtifact(t, "FR", "101", []byte("abc"))
	_, body = get(t, f.srv.URL+"/countries/FR/localities?q=Pa", nil)
	assert.Contains(t, string(body), `"fileSize":3`)
}

func TestPmtilesFullAndRange(t *testing.T) {
	f := newFixture(t, nil, rows()...)
	payload := []byte("0123456789")
	f.writeArtifact(t, "US", "7", payload)
	url := f.srv.URL + "/countries/US/localities/7/pmtiles"

	resp, body := get(t, url, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, payload, body)
	assert.Equal(t, "10", resp.Header.Get("Content-Length"))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.Equal(t, `attachment; filename="7.pmtiles"`, resp.Header.Get("Content-Disposition"))

	resp, body = get(t, url, map[string]string{"Range": "bytes=2-5"})
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, []byte("2345"), body)
	assert.Equal(t, "bytes 2-5/10", resp.Header.Get("Content-Range"))

	resp, body = get(t, url, map[string]string{"Range": "bytes=5-"})
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, []byte("56789"), body)

	resp, body = get(t, url, map[string]string{"Range": "bytes=5-10"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, payload, body)
}

func TestPmtilesNotFound(t *testing.T) {
	f := newFixture(t, nil, rows()...)
	resp, body := get(t, f.srv.URL+"/countries/US/localities/999/pmtiles", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), "Pmtiles file not found")
}

type failingSizer struct{}

func (failingSizer) Size(string, string) (int64, bool, error) {
	return 0, false, errors.New("disk gone")
}

type fakeBoundary struct{ err error }

func (b fakeBoundary) ListTargetCountries(context.Context) ([]string, error) { return nil, b.err }
func (b fakeBoundary) CountLocalities(context.Context, string) (int, error)  { return 0, b.err }
func (b fakeBoundary) SearchLocalities(_ context.Context, c, _ string, page, limit int) (boundary.Page, error) {
	return boundary.Page{Items: []boundary.Locality{{ID: "1", Name: "A", Country: c}}, Total: 1, Page: page, Limit: limit, TotalPages: 1}, b.err
}

func TestLocalitiesArtifactErrorIs500(t *testing.T) {
	mux := BuildRoutes(Deps{Store: fakeBoundary{}, Artifacts: failingSizer{}})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/countries/US/localities", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), msgInternal)
	assert.NotContains(t, rec.Body.String(), "disk gone")
}

func TestLocalitiesInvalidPageFromStore(t *testing.T) {
	mux := BuildRoutes(Deps{Store: fakeBoundary{err: boundary.ErrInvalidPage}, Artifacts: failingSizer{}})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/countries/US/localities?page=3", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	mux := BuildRoutes(Deps{Store: fakeBoundary{}, Artifacts: failingSizer{}})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// countingBoundary echoes its arguments back as the single search result.
type countingBoundary struct {
	fakeBoundary
	searches int
}

func (b *countingBoundary) SearchLocalities(_ context.Context, c, q string, page, limit int) (boundary.Page, error) {
	b.searches++
	return boundary.Page{Items: []boundary.Locality{{ID: "1", Name: c + "|" + q, Country: c}}, Total: 1, Page: page, Limit: limit, TotalPages: 1}, nil
}

type noArtifacts struct{}

func (noArtifacts) Size(string, string) (int64, bool, error) { return 0, false, nil }

func TestLocalitiesCacheKeysDoNotCollide(t *testing.T) {
	store := &countingBoundary{}
	mux := BuildRoutes(Deps{Store: store, Artifacts: noArtifacts{}, Cache: cache.NewLRU(16)})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/countries/US:1/localities?q=x", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"US:1|x"`)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/countries/US/localities?page=1&q=1:x", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"US|1:x"`)
	assert.Equal(t, 2, store.searches)

	assert.NotEqual(t, searchCacheKey("US:1", 1, "x"), searchCacheKey("US", 1, "1:x"))
}
