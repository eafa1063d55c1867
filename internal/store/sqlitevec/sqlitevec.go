package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"engagelens/internal/blob"
	"engagelens/internal/features"
)

// DB wraps a SQLite database holding the training matrix, the prediction
// log and, optionally, the fitted artifacts.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases coherent and serializes writers.
	d.SetMaxOpenConns(1)
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS training_rows (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  split TEXT NOT NULL,
	  vector BLOB NOT NULL,
	  label REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tr_split ON training_rows(split);
	CREATE TABLE IF NOT EXISTS predictions (
	  id TEXT PRIMARY KEY,
	  ts INTEGER NOT NULL,
	  vector BLOB NOT NULL,
	  rate REAL NOT NULL,
	  payload TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_pred_ts ON predictions(ts);
	CREATE TABLE IF NOT EXISTS artifacts (
	  name TEXT PRIMARY KEY,
	  data BLOB NOT NULL,
	  updated INTEGER NOT NULL
	);
	`)
	return err
}

// ReplaceTrainingRows swaps the stored rows of split for m in one transaction.
func (d *DB) ReplaceTrainingRows(ctx context.Context, split string, m features.Matrix) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM training_rows WHERE split=?`, split); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO training_rows(split, vector, label) VALUES(?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, r := range m.Rows {
		if _, err := stmt.ExecContext(ctx, split, encodeF64(r.X), m.Targets[i]); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadTrainingRows returns the rows of split in insertion order. An empty
// split loads every row.
func (d *DB) LoadTrainingRows(ctx context.Context, split string) (features.Matrix, error) {
	var rows *sql.Rows
	var err error
	if split == "" {
		rows, err = d.sql.QueryContext(ctx, `SELECT vector, label FROM training_rows ORDER BY id`)
	} else {
		rows, err = d.sql.QueryContext(ctx, `SELECT vector, label FROM training_rows WHERE split=? ORDER BY id`, split)
	}
	if err != nil {
		return features.Matrix{}, err
	}
	defer rows.Close()
	var m features.Matrix
	for rows.Next() {
		var vb []byte
		var lbl float64
		if err := rows.Scan(&vb, &lbl); err != nil {
			return features.Matrix{}, err
		}
		m.Rows = append(m.Rows, features.FeatureVector{X: decodeF64(vb)})
		m.Targets = append(m.Targets, lbl)
	}
	return m, rows.Err()
}

// Prediction is one logged inference.
type Prediction struct {
	ID      string
	TS      time.Time
	Vector  []float64
	Rate    float64
	Payload string
}

// PutPrediction logs a served prediction. payload is stored as JSON.
func (d *DB) PutPrediction(ctx context.Context, id string, ts time.Time, vec []float64, rate float64, payload any) error {
	var pstr *string
	if payload != nil {
		pb, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		ps := string(pb)
		pstr = &ps
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO predictions(id, ts, vector, rate, payload) VALUES(?,?,?,?,?)`,
		id, ts.UnixMilli(), encodeF64(vec), rate, pstr)
	return err
}

// LoadPredictionsRange returns predictions in [start, end).
func (d *DB) LoadPredictionsRange(ctx context.Context, start, end time.Time) ([]Prediction, error) {
	rows, err := d.sql.QueryContext(ctx, `SELECT id, ts, vector, rate, payload FROM predictions WHERE ts>=? AND ts<? ORDER BY ts`,
		start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Prediction
	for rows.Next() {
		var p Prediction
		var ts int64
		var vb []byte
		var payload sql.NullString
		if err := rows.Scan(&p.ID, &ts, &vb, &p.Rate, &payload); err != nil {
			return nil, err
		}
		p.TS = time.UnixMilli(ts).UTC()
		p.Vector = decodeF64(vb)
		p.Payload = payload.String
		out = append(out, p)
	}
	return out, rows.Err()
}

// CountPredictionsWithin counts predictions in [start, end).
func (d *DB) CountPredictionsWithin(ctx context.Context, start, end time.Time) (int, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT COUNT(1) FROM predictions WHERE ts>=? AND ts<?`, start.UnixMilli(), end.UnixMilli())
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Get implements blob.Store over the artifacts table.
func (d *DB) Get(ctx context.Context, key string) ([]byte, error) {
	row := d.sql.QueryRowContext(ctx, `SELECT data FROM artifacts WHERE name=?`, key)
	var b []byte
	if err := row.Scan(&b); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
		}
		return nil, err
	}
	return b, nil
}

// Put implements blob.Store over the artifacts table.
func (d *DB) Put(ctx context.Context, key string, data []byte) error {
	_, err := d.sql.ExecContext(ctx, `INSERT INTO artifacts(name, data, updated) VALUES(?,?,?) ON CONFLICT(name) DO UPDATE SET data=excluded.data, updated=excluded.updated`,
		key, data, time.Now().Unix())
	return err
}

func encodeF64(v []float64) []byte {
	b := make([]byte, 8*len(v))
	for i := range v {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v[i]))
	}
	return b
}

func decodeF64(b []byte) []float64 {
	n := len(b) / 8
	v := make([]float64, n)
	for i := 0; i < n; i++ {
		v[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}
	return v
}
