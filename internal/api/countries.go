package api

import (
	"net/http"
	"pmtiles-api/internal/boundary"
	"pmtiles-api/internal/cache"

	"golang.org/x/sync/errgroup"
)

type CountryInfo struct {
	CountryCode   string `json:"countryCode"`
	CountryName   string `json:"countryName"`
	LocalityCount int    `json:"localityCount"`
}

const countriesCacheKey = "countries"

func (h *handlers) countries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var out []CountryInfo
	if h.Cache != nil && cache.GetJSON(ctx, h.Cache, countriesCacheKey, &out) {
		writeSuccess(w, out)
		return
	}
	codes, err := h.Store.ListTargetCountries(ctx)
	if err != nil {
		writeServerError(w, r, err)
		return
	}
	out = make([]CountryInfo, len(codes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for i, code := range codes {
		g.Go(func() error {
			n, err := h.Store.CountLocalities(gctx, code)
			if err != nil {
				return err
			}
			out[i] = CountryInfo{CountryCode: code, CountryName: boundary.CountryName(code), LocalityCount: n}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		writeServerError(w, r, err)
		return
	}
	if h.Cache != nil {
		cache.SetJSON(ctx, h.Cache, countriesCacheKey, out, h.CacheTTL)
	}
	writeSuccess(w, out)
}
