// Package boundarytest builds throwaway WhosOnFirst-shaped SQLite databases for tests.
package boundarytest

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Row mirrors the subset of the spr table the service reads. Nil pointers are stored as NULL.
type Row struct {
	ID           int64
	Name         string
	Country      string
	Placetype    string
	IsCurrent    int
	IsDeprecated int
	Lat, Lon     *float64
	MinLon       *float64
	MinLat       *float64
	MaxLon       *float64
	MaxLat       *float64
}

func F(v float64) *float64 { return &v }

// Locality returns an eligible locality row with a small box around (lat, lon).
func Locality(id int64, country, name string, lat, lon float64) Row {
	return Row{
		ID: id, Name: name, Country: country, Placetype: "locality", IsCurrent: 1,
		Lat: F(lat), Lon: F(lon),
		MinLon: F(lon - 0.1), MinLat: F(lat - 0.1), MaxLon: F(lon + 0.1), MaxLat: F(lat + 0.1),
	}
}

const schema = `CREATE TABLE spr (
	id INTEGER PRIMARY KEY,
	parent_id INTEGER,
	name TEXT,
	placetype TEXT,
	country TEXT,
	latitude NUMERIC,
	longitude NUMERIC,
	min_latitude NUMERIC,
	min_longitude NUMERIC,
	max_latitude NUMERIC,
	max_longitude NUMERIC,
	is_current INTEGER,
	is_deprecated INTEGER
)`

// Path writes rows into a new database file under t.TempDir and returns its path.
func Path(t testing.TB, rows ...Row) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wof.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer db.Close()
	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("create spr: %v", err)
	}
	stmt, err := db.Prepare(`INSERT INTO spr(id, parent_id, name, placetype, country, latitude, longitude,
		min_latitude, min_longitude, max_latitude, max_longitude, is_current, is_deprecated)
		VALUES(?, -1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		t.Fatalf("prepare insert: %v", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.ID, nullString(r.Name), r.Placetype, nullString(r.Country),
			r.Lat, r.Lon, r.MinLat, r.MinLon, r.MaxLat, r.MaxLon, r.IsCurrent, r.IsDeprecated); err != nil {
			t.Fatalf("insert %d: %v", r.ID, err)
		}
	}
	return path
}

// Open returns a handle on a fresh fixture database, closed with the test.
func Open(t testing.TB, rows ...Row) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", Path(t, rows...))
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
