package features

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"engagelens/internal/blob"
)

// Blob keys for persisted artifacts.
const (
	EncodersKey = "encoders.json"
	ScalerKey   = "scaler.json"
)

const artifactVersion = 1

// Artifacts is the fitted state shared by every encode call. It is never
// mutated after Fit or LoadArtifacts returns.
type Artifacts struct {
	Encoders *Registry
	Scaler   *Scaler
}

type encodersFile struct {
	Version  int       `json:"version"`
	Columns  []string  `json:"columns"`
	Encoders *Registry `json:"encoders"`
}

type scalerFile struct {
	Version int     `json:"version"`
	Scaler  *Scaler `json:"scaler"`
}

// Classes returns the fitted classes of every encoded column.
func (a *Artifacts) Classes() map[string][]string {
	out := make(map[string][]string)
	for _, col := range a.Encoders.Columns() {
		e, _ := a.Encoders.Encoder(col)
		out[col] = e.Classes()
	}
	return out
}

// Save writes both artifacts to store.
func (a *Artifacts) Save(ctx context.Context, store blob.Store) error {
	enc, err := json.Marshal(encodersFile{Version: artifactVersion, Columns: ColumnNames(), Encoders: a.Encoders})
	if err != nil {
		return fmt.Errorf("marshal encoders: %w", err)
	}
	sc, err := json.Marshal(scalerFile{Version: artifactVersion, Scaler: a.Scaler})
	if err != nil {
		return fmt.Errorf("marshal scaler: %w", err)
	}
	if err := store.Put(ctx, EncodersKey, enc); err != nil {
		return fmt.Errorf("put %s: %w", EncodersKey, err)
	}
	if err := store.Put(ctx, ScalerKey, sc); err != nil {
		return fmt.Errorf("put %s: %w", ScalerKey, err)
	}
	return nil
}

// LoadArtifacts reads and checks both artifacts. A missing blob yields
// ErrArtifactsMissing; a blob that does not decode or was fitted for another
// layout yields
// ErrLayoutMismatch.
func LoadArtifacts(ctx context.Context, store blob.Store) (*Artifacts, error) {
	encRaw, err := get(ctx, store, EncodersKey)
	if err != nil {
		return nil, err
	}
	scRaw, err := get(ctx, store, ScalerKey)
	if err != nil {
		return nil, err
	}

	var ef encodersFile
	if err := json.Unmarshal(encRaw, &ef); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrLayoutMismatch, EncodersKey, err)
	}
	var sf scalerFile
	if err := json.Unmarshal(scRaw, &sf); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrLayoutMismatch, ScalerKey, err)
	}
	if ef.Version != artifactVersion || sf.Version != artifactVersion {
		return nil, fmt.Errorf("%w: version %d/%d, want %d", ErrLayoutMismatch, ef.Version, sf.Version, artifactVersion)
	}
	if len(ef.Columns) != NumColumns {
		return nil, fmt.Errorf("%w: %d columns", ErrLayoutMismatch, len(ef.Columns))
	}
	for i, c := range ef.Columns {
		if c != Columns[i] {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrLayoutMismatch, i, c, Columns[i])
		}
	}
	if ef.Encoders == nil || sf.Scaler == nil {
		return nil, fmt.Errorf("%w: empty artifact", ErrArtifactsMissing)
	}

	a := &Artifacts{Encoders: ef.Encoders, Scaler: sf.Scaler}
	if err := a.check(); err != nil {
		return nil, err
	}
	return a, nil
}

func get(ctx context.Context, store blob.Store, key string) ([]byte, error) {
	b, err := store.Get(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactsMissing, key)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return b, nil
}

// check verifies every column the pipeline touches has a fitted entry.
func (a *Artifacts) check() error {
	for _, cols := range [][]string{CategoricalColumns, BucketColumns} {
		for _, c := range cols {
			if _, err := a.Encoders.Encoder(c); err != nil {
				return fmt.Errorf("%w: %v", ErrLayoutMismatch, err)
			}
		}
	}
	for _, c := range NumericColumns {
		if _, _, ok := a.Scaler.Params(c); !ok {
			return fmt.Errorf("%w: scaler has no %q", ErrLayoutMismatch, c)
		}
	}
	return nil
}
