// Package catalog keeps a local index of scene files in a sqlite database and turns it into
// image collections whose loader reads the GeoTIFF files on demand.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	_ "modernc.org/sqlite"

	"github.com/example/go-sarslide/collection"
)

// ErrNotFound is returned when a scene ID is not in the catalog.
var ErrNotFound = errors.New("catalog: scene not found")

// Units describes how pixel values of a scene are stored on disk.
type Units string

const (
	// UnitsDB marks scenes already in decibels.
	UnitsDB Units = "db"
	// UnitsLinear marks backscatter in linear power, converted to dB on load.
	UnitsLinear Units = "linear"
	// UnitsRaw marks scenes loaded as-is (DEM, optical reflectance, QA).
	UnitsRaw Units = "raw"
)

// ParseUnits validates a units name.
func ParseUnits(s string) (Units, error) {
	switch u := Units(strings.ToLower(s)); u {
	case UnitsDB, UnitsLinear, UnitsRaw:
		return u, nil
	case "":
		return UnitsRaw, nil
	}
	return "", fmt.Errorf("catalog: unknown units %q", s)
}

// Entry is one indexed scene.
type Entry struct {
	collection.Image
	Units Units
	// Bands names the bands of the file in order. Empty means the file's own descriptions.
	Bands []string
}

const schema = `
CREATE TABLE IF NOT EXISTS scenes (
	dataset       TEXT NOT NULL,
	id            TEXT NOT NULL,
	path          TEXT NOT NULL,
	acquired_ns   INTEGER NOT NULL,
	orbit         TEXT NOT NULL DEFAULT '',
	polarizations TEXT NOT NULL DEFAULT '',
	mode          TEXT NOT NULL DEFAULT '',
	cloud_percent REAL NOT NULL DEFAULT 0,
	min_lon       REAL NOT NULL DEFAULT 0,
	min_lat       REAL NOT NULL DEFAULT 0,
	max_lon       REAL NOT NULL DEFAULT 0,
	max_lat       REAL NOT NULL DEFAULT 0,
	units         TEXT NOT NULL DEFAULT 'raw',
	bands         TEXT NOT NULL DEFAULT '',
	properties    TEXT NOT NULL DEFAULT '{}',
	outline       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (dataset, id)
);
CREATE INDEX IF NOT EXISTS scenes_dataset_acquired ON scenes (dataset, acquired_ns);
`

// sceneColumns are the columns shared by every schema version, used to copy rows forward.
const sceneColumns = `dataset, id, path, acquired_ns, orbit, polarizations, mode, cloud_percent,
	min_lon, min_lat, max_lon, max_lat, units, bands, properties`

// migrate creates the schema. A scenes table from before outlines were stored, keyed by id
// alone, is rebuilt in place.
func migrate(ctx context.Context, db *sqlx.DB) error {
	var exists, current int
	if err := db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'scenes'`); err != nil {
		return err
	}
	if err := db.GetContext(ctx, &current, `SELECT COUNT(*) FROM pragma_table_info('scenes') WHERE name = 'outline'`); err != nil {
		return err
	}
	if exists == 0 || current > 0 {
		_, err := db.ExecContext(ctx, schema)
		return err
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmts := []string{
		`DROP INDEX IF EXISTS scenes_dataset_acquired`,
		`ALTER TABLE scenes RENAME TO scenes_v1`,
		schema,
		`INSERT INTO scenes (` + sceneColumns + `) SELECT ` + sceneColumns + ` FROM scenes_v1`,
		`DROP TABLE scenes_v1`,
	}
	for _, q := range stmts {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type row struct {
	ID            string  `db:"id"`
	Dataset       string  `db:"dataset"`
	Path          string  `db:"path"`
	AcquiredNS    int64   `db:"acquired_ns"`
	Orbit         string  `db:"orbit"`
	Polarizations string  `db:"polarizations"`
	Mode          string  `db:"mode"`
	CloudPercent  float64 `db:"cloud_percent"`
	MinLon        float64 `db:"min_lon"`
	MinLat        float64 `db:"min_lat"`
	MaxLon        float64 `db:"max_lon"`
	MaxLat        float64 `db:"max_lat"`
	Units         string  `db:"units"`
	Bands         string  `db:"bands"`
	Properties    string  `db:"properties"`
	Outline       string  `db:"outline"`
}

func toRow(e Entry) (row, error) {
	props := "{}"
	if len(e.Properties) > 0 {
		b, err := json.Marshal(e.Properties)
		if err != nil {
			return row{}, err
		}
		props = string(b)
	}
	units := e.Units
	if units == "" {
		units = UnitsRaw
	}
	var outline string
	if len(e.Outline) > 0 {
		outline = wkt.MarshalString(e.Outline)
	}
	return row{
		ID:            e.ID,
		Dataset:       e.Dataset,
		Path:          e.Path,
		AcquiredNS:    e.Acquired.UTC().UnixNano(),
		Orbit:         string(e.Orbit),
		Polarizations: strings.Join(e.Polarizations, ","),
		Mode:          e.Mode,
		CloudPercent:  e.CloudPercent,
		MinLon:        e.Footprint.Min[0],
		MinLat:        e.Footprint.Min[1],
		MaxLon:        e.Footprint.Max[0],
		MaxLat:        e.Footprint.Max[1],
		Units:         string(units),
		Bands:         strings.Join(e.Bands, ","),
		Properties:    props,
		Outline:       outline,
	}, nil
}

func (r row) entry() (Entry, error) {
	e := Entry{
		Image: collection.Image{
			ID:           r.ID,
			Dataset:      r.Dataset,
			Path:         r.Path,
			Acquired:     time.Unix(0, r.AcquiredNS).UTC(),
			Orbit:        collection.OrbitPass(r.Orbit),
			Mode:         r.Mode,
			CloudPercent: r.CloudPercent,
			Footprint:    orb.Bound{Min: orb.Point{r.MinLon, r.MinLat}, Max: orb.Point{r.MaxLon, r.MaxLat}},
		},
		Units: Units(r.Units),
	}
	if r.Polarizations != "" {
		e.Polarizations = strings.Split(r.Polarizations, ",")
	}
	if r.Bands != "" {
		e.Bands = strings.Split(r.Bands, ",")
	}
	if r.Outline != "" {
		g, err := wkt.Unmarshal(r.Outline)
		if err != nil {
			return Entry{}, fmt.Errorf("catalog: scene %s outline: %w", r.ID, err)
		}
		switch g := g.(type) {
		case orb.MultiPolygon:
			e.Outline = g
		case orb.Polygon:
			e.Outline = orb.MultiPolygon{g}
		}
	}
	if r.Properties != "" && r.Properties != "{}" {
		if err := json.Unmarshal([]byte(r.Properties), &e.Properties); err != nil {
			return Entry{}, fmt.Errorf("catalog: scene %s properties: %w", r.ID, err)
		}
	}
	return e, nil
}

// Catalog is a sqlite-backed scene index. It is safe for concurrent use.
type Catalog struct {
	db *sqlx.DB
}

// Open opens (creating if needed) the catalog database at path.
func Open(ctx context.Context, path string) (*Catalog, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("catalog: create %s: %w", dir, err)
		}
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Close releases the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// Put inserts or replaces a scene.
func (c *Catalog) Put(ctx context.Context, e Entry) error {
	if e.ID == "" || e.Dataset == "" || e.Path == "" {
		return errors.New("catalog: scene needs id, dataset and path")
	}
	if strings.Contains(strings.Join(e.Polarizations, ""), ",") || strings.Contains(strings.Join(e.Bands, ""), ",") {
		return errors.New("catalog: polarization and band names cannot contain commas")
	}
	r, err := toRow(e)
	if err != nil {
		return fmt.Errorf("catalog: put %s: %w", e.ID, err)
	}
	const q = `
		INSERT INTO scenes (dataset, id, path, acquired_ns, orbit, polarizations, mode, cloud_percent,
			min_lon, min_lat, max_lon, max_lat, units, bands, properties, outline)
		VALUES (:dataset, :id, :path, :acquired_ns, :orbit, :polarizations, :mode, :cloud_percent,
			:min_lon, :min_lat, :max_lon, :max_lat, :units, :bands, :properties, :outline)
		ON CONFLICT (dataset, id) DO UPDATE SET
			path = excluded.path, acquired_ns = excluded.acquired_ns,
			orbit = excluded.orbit, polarizations = excluded.polarizations, mode = excluded.mode,
			cloud_percent = excluded.cloud_percent, min_lon = excluded.min_lon, min_lat = excluded.min_lat,
			max_lon = excluded.max_lon, max_lat = excluded.max_lat, units = excluded.units,
			bands = excluded.bands, properties = excluded.properties, outline = excluded.outline`
	if _, err := c.db.NamedExecContext(ctx, q, r); err != nil {
		return fmt.Errorf("catalog: put %s: %w", e.ID, err)
	}
	return nil
}

// Get returns scene id of dataset.
func (c *Catalog) Get(ctx context.Context, dataset, id string) (Entry, error) {
	var r row
	err := c.db.GetContext(ctx, &r, `SELECT * FROM scenes WHERE dataset = ? AND id = ?`, dataset, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s/%s", ErrNotFound, dataset, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("catalog: get %s/%s: %w", dataset, id, err)
	}
	return r.entry()
}

// Delete removes scene id of dataset. Deleting an unknown scene is not an error.
func (c *Catalog) Delete(ctx context.Context, dataset, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM scenes WHERE dataset = ? AND id = ?`, dataset, id); err != nil {
		return fmt.Errorf("catalog: delete %s/%s: %w", dataset, id, err)
	}
	return nil
}

// Query narrows List. Zero fields do not filter.
type Query struct {
	Dataset string
	Window  collection.TimeWindow
	Bounds  orb.Bound
}

// List returns the scenes matching q ordered by acquisition time.
func (c *Catalog) List(ctx context.Context, q Query) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if q.Dataset != "" {
		where = append(where, "dataset = ?")
		args = append(args, q.Dataset)
	}
	if !q.Window.Start.IsZero() {
		where = append(where, "acquired_ns >= ?")
		args = append(args, q.Window.Start.UnixNano())
	}
	if !q.Window.End.IsZero() {
		where = append(where, "acquired_ns < ?")
		args = append(args, q.Window.End.UnixNano())
	}
	if !q.Bounds.IsZero() {
		where = append(where, "min_lon <= ? AND max_lon >= ? AND min_lat <= ? AND max_lat >= ?")
		args = append(args, q.Bounds.Max[0], q.Bounds.Min[0], q.Bounds.Max[1], q.Bounds.Min[1])
	}
	query := `SELECT * FROM scenes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY acquired_ns, id"

	var rows []row
	if err := c.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Datasets lists the distinct dataset names with their scene counts.
func (c *Catalog) Datasets(ctx context.Context) (map[string]int, error) {
	var rows []struct {
		Dataset string `db:"dataset"`
		N       int    `db:"n"`
	}
	if err := c.db.SelectContext(ctx, &rows, `SELECT dataset, COUNT(*) AS n FROM scenes GROUP BY dataset`); err != nil {
		return nil, fmt.Errorf("catalog: datasets: %w", err)
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Dataset] = r.N
	}
	return out, nil
}

// Collection returns every scene of dataset as a collection backed by the GeoTIFF loader.
func (c *Catalog) Collection(ctx context.Context, dataset string) (*collection.Collection, error) {
	entries, err := c.List(ctx, Query{Dataset: dataset})
	if err != nil {
		return nil, err
	}
	images := make([]collection.Image, len(entries))
	byID := make(map[string]Entry, len(entries))
	for i, e := range entries {
		images[i] = e.Image
		byID[e.ID] = e
	}
	return collection.New(&fileLoader{entries: byID}, images...), nil
}
