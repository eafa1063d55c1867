package jobs

import (
	"context"
	"fmt"

	"engagelens/internal/analytics"
	"engagelens/internal/features"
	"engagelens/internal/logging"
	"engagelens/internal/predictor"
	"engagelens/internal/store/sqlitevec"
)

// Trainer fits a model on an encoded matrix and can then score rows.
type Trainer interface {
	predictor.Predictor
	Train(ctx context.Context, m features.Matrix) error
}

// TrainFromDB trains on the stored train split and, when a test split
// exists, scores it with the freshly trained model. Metrics are zero when
// there is no test split.
func TrainFromDB(ctx context.Context, db *sqlitevec.DB, t Trainer) (analytics.Metrics, error) {
	train, err := db.LoadTrainingRows(ctx, SplitTrain)
	if err != nil {
		return analytics.Metrics{}, err
	}
	if train.Len() == 0 {
		return analytics.Metrics{}, fmt.Errorf("no training rows: %w", features.ErrNoSamples)
	}
	if err := t.Train(ctx, train); err != nil {
		return analytics.Metrics{}, err
	}
	logging.Info("train_done", map[string]any{"rows": train.Len()})

	test, err := db.LoadTrainingRows(ctx, SplitTest)
	if err != nil {
		return analytics.Metrics{}, err
	}
	if test.Len() == 0 {
		return analytics.Metrics{}, nil
	}
	rep, err := ScoreMatrix(ctx, t, test)
	if err != nil {
		return analytics.Metrics{}, fmt.Errorf("evaluate test split: %w", err)
	}
	return rep.Metrics, nil
}
