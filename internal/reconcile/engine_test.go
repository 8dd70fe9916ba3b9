package reconcile

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pmtiles-api/internal/boundary"
	"pmtiles-api/internal/extract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	countries []string
	counts    map[string]int
	err       error
	delay     time.Duration

	inFlight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeStore) ListTargetCountries(context.Context) ([]string, error) {
	return f.countries, nil
}

func (f *fakeStore) CountLocalities(_ context.Context, c string) (int, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)
	if f.err != nil {
		return 0, f.err
	}
	return f.counts[c], nil
}

func (f *fakeStore) ListAllLocalitiesWithBounds(context.Context) ([]boundary.LocalityBounds, error) {
	var out []boundary.LocalityBounds
	for _, c := range f.countries {
		for i := 0; i < f.counts[c]; i++ {
			out = append(out, boundary.LocalityBounds{ID: c + string(rune('a'+i)), Country: c})
		}
	}
	return out, nil
}

type fakeFiles map[string]int

func (f fakeFiles) CountArtifacts(c string) (int, error) { return f[c], nil }

type fakeExtractor struct {
	mu        sync.Mutex
	called    bool
	countries []string
	source    string
	total     int
}

func (f *fakeExtractor) ExtractAll(_ context.Context, locs []boundary.LocalityBounds, src string, countries []string) (extract.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called = true
	f.countries = countries
	f.source = src
	f.total = len(locs)
	return extract.Summary{Succeeded: 1}, nil
}

type staticSource string

func (s staticSource) Resolve(context.Context) (string, error) { return string(s), nil }

type recordingConfirmer struct {
	answer bool
	asked  bool
}

func (r *recordingConfirmer) Confirm(context.Context, string) (bool, error) {
	r.asked = true
	return r.answer, nil
}

func TestCheckClassifiesCountries(t *testing.T) {
	store := &fakeStore{
		countries: []string{"US", "FR", "DE", "AQ"},
		counts:    map[string]int{"US": 3, "FR": 2, "DE": 4},
	}
	files := fakeFiles{"US": 3, "FR": 1, "DE": 5}
	e := New(Config{Store: store, Artifacts: files})

	rep, err := e.Check(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Countries, 4)

	assert.Equal(t, []string{"US", "FR", "DE", "AQ"}, []string{
		rep.Countries[0].CountryCode, rep.Countries[1].CountryCode, rep.Countries[2].CountryCode, rep.Countries[3].CountryCode,
	})
	assert.Equal(t, Complete, rep.Countries[0].State)
	assert.Equal(t, "United States", rep.Countries[0].CountryName)
	assert.Equal(t, Incomplete, rep.Countries[1].State)
	assert.Equal(t, Incomplete, rep.Countries[2].State, "more files than rows is not complete")
	assert.Equal(t, Empty, rep.Countries[3].State)
	assert.False(t, rep.Countries[3].IsComplete())
	assert.Equal(t, []string{"FR", "DE"}, rep.IncompleteCountries())
}

func TestCheckBoundsConcurrency(t *testing.T) {
	store := &fakeStore{counts: map[string]int{}, delay: 5 * time.Millisecond}
	for i := 0; i < 40; i++ {
		store.countries = append(store.countries, string([]byte{'A' + byte(i/26), 'A' + byte(i%26)}))
	}
	e := New(Config{Store: store, Artifacts: fakeFiles{}, Concurrency: 4})

	_, err := e.Check(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, store.peak.Load(), int32(4))
}

func TestCheckPropagatesDataLayerError(t *testing.T) {
	boom := errors.New("disk image is malformed")
	store := &fakeStore{countries: []string{"US"}, err: boom}
	_, err := New(Config{Store: store, Artifacts: fakeFiles{}}).Check(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestRunAllComplete(t *testing.T) {
	store := &fakeStore{countries: []string{"US"}, counts: map[string]int{"US": 2}}
	conf := &recordingConfirmer{answer: true}
	ex := &fakeExtractor{}
	var out bytes.Buffer

	res, err := New(Config{Store: store, Artifacts: fakeFiles{"US": 2}, Extractor: ex, Confirm: conf, Report: &out}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseAllComplete, res.Phase)
	assert.False(t, conf.asked)
	assert.False(t, ex.called)
	assert.Empty(t, out.String())
}

func TestRunEmptyAllowListedCountryDoesNotBlock(t *testing.T) {
	store := &fakeStore{countries: []string{"US", "AQ"}, counts: map[string]int{"US": 2}}
	conf := &recordingConfirmer{answer: true}

	res, err := New(Config{Store: store, Artifacts: fakeFiles{"US": 2}, Confirm: conf}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseAllComplete, res.Phase)
	assert.False(t, conf.asked)
}

func TestRunDeclined(t *testing.T) {
	store := &fakeStore{countries: []string{"US"}, counts: map[string]int{"US": 2}}
	ex := &fakeExtractor{}
	var out bytes.Buffer

	res, err := New(Config{Store: store, Artifacts: fakeFiles{}, Extractor: ex, Confirm: Static(false), Report: &out}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseDeclined, res.Phase)
	assert.False(t, ex.called)
	assert.Contains(t, out.String(), "Country Code")
	assert.Contains(t, out.String(), "✗ Incomplete")
}

func TestRunExtractsOnlyIncompleteCountries(t *testing.T) {
	store := &fakeStore{
		countries: []string{"US", "FR", "DE"},
		counts:    map[string]int{"US": 2, "FR": 3, "DE": 1},
	}
	ex := &fakeExtractor{}

	res, err := New(Config{
		Store:     store,
		Artifacts: fakeFiles{"US": 2, "FR": 0, "DE": 0},
		Extractor: ex,
		Source:    staticSource("planet.pmtiles"),
		Confirm:   Static(true),
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, res.Phase)
	require.NotNil(t, res.Summary)
	assert.Equal(t, []string{"FR", "DE"}, ex.countries)
	assert.Equal(t, "planet.pmtiles", ex.source)
	assert.Equal(t, 6, ex.total)
}

func TestReportTable(t *testing.T) {
	rep := Report{Countries: []CountryStatus{
		{CountryCode: "US", CountryName: "United States", DBCount: 10, FileCount: 10, State: Complete},
		{CountryCode: "FR", CountryName: "France", DBCount: 5, FileCount: 1, State: Incomplete},
	}}
	var b strings.Builder
	require.NoError(t, rep.WriteTable(&b))
	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[2], "US           | United States"))
	assert.Contains(t, lines[3], "| 5        | 1          | ✗ Incomplete")
}

func TestReportFilterKeepsOrder(t *testing.T) {
	rep := Report{Countries: []CountryStatus{
		{CountryCode: "US", State: Incomplete},
		{CountryCode: "DE", State: Complete},
		{CountryCode: "AQ", State: Empty},
		{CountryCode: "FR", State: Incomplete},
	}}
	got := rep.Filter(Incomplete, Empty)
	require.Len(t, got.Countries, 3)
	assert.Equal(t, "US", got.Countries[0].CountryCode)
	assert.Equal(t, "AQ", got.Countries[1].CountryCode)
	assert.Equal(t, "FR", got.Countries[2].CountryCode)
	assert.Empty(t, rep.Filter().Countries)
}
