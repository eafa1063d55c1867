package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"engagelens/internal/blob"
	"engagelens/internal/dataset"
	"engagelens/internal/features"
	"engagelens/internal/logging"
	"engagelens/internal/metrics"
	"engagelens/internal/store/sqlitevec"
)

// CleanedDataFile is the matrix export written to the output dir.
const CleanedDataFile = "cleaned_data.csv"

// Split names in the training_rows table.
const (
	SplitTrain = "train"
	SplitTest  = "test"
)

type PreprocessOptions struct {
	OutputDir    string
	TestFraction float64
	Seed         int64
}

type PreprocessResult struct {
	Clean     dataset.CleanReport
	Rows      int
	Train     int
	Test      int
	Artifacts *features.Artifacts
}

// RunPreprocess reads the raw CSV from src, cleans it, fits the encoders and
// scaler on every cleaned row, and persists the artifacts to store. When db
// is set the matrix is stored split into train/test rows; when OutputDir is
// set a CSV copy is written there.
func RunPreprocess(ctx context.Context, src dataset.Source, store blob.Store, db *sqlitevec.DB, opts PreprocessOptions) (PreprocessResult, error) {
	var res PreprocessResult
	rc, err := src.Open(ctx)
	if err != nil {
		return res, fmt.Errorf("open source: %w", err)
	}
	recs, err := dataset.ReadCSV(rc)
	_ = rc.Close()
	if err != nil {
		return res, err
	}
	samples, rep, err := dataset.Clean(recs)
	res.Clean = rep
	if err != nil {
		return res, err
	}
	logging.Info("preprocess_clean", map[string]any{"read": rep.Read, "dropped": rep.Dropped, "filled": rep.Filled})

	arts, m, err := features.Fit(samples)
	if err != nil {
		return res, err
	}
	res.Artifacts = arts
	res.Rows = m.Len()
	if err := arts.Save(ctx, store); err != nil {
		return res, fmt.Errorf("save artifacts: %w", err)
	}

	trainIdx, testIdx := dataset.StratifiedIndices(m.Targets, opts.TestFraction, opts.Seed)
	res.Train, res.Test = len(trainIdx), len(testIdx)
	if db != nil {
		if err := db.ReplaceTrainingRows(ctx, SplitTrain, subset(m, trainIdx)); err != nil {
			return res, fmt.Errorf("store train rows: %w", err)
		}
		if err := db.ReplaceTrainingRows(ctx, SplitTest, subset(m, testIdx)); err != nil {
			return res, fmt.Errorf("store test rows: %w", err)
		}
	}
	if opts.OutputDir != "" {
		if err := writeMatrix(filepath.Join(opts.OutputDir, CleanedDataFile), m); err != nil {
			return res, err
		}
	}
	metrics.PreprocessRows.Set(float64(m.Len()))
	logging.Info("preprocess_done", map[string]any{"rows": res.Rows, "train": res.Train, "test": res.Test})
	return res, nil
}

func subset(m features.Matrix, idx []int) features.Matrix {
	out := features.Matrix{Rows: make([]features.FeatureVector, len(idx)), Targets: make([]float64, len(idx))}
	for k, i := range idx {
		out.Rows[k] = m.Rows[i]
		out.Targets[k] = m.Targets[i]
	}
	return out
}

func writeMatrix(path string, m features.Matrix) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := dataset.WriteMatrixCSV(f, m); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
