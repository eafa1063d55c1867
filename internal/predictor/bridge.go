package predictor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/goccy/go-json"

	"engagelens/internal/features"
	"engagelens/internal/metrics"
)

// Bridge runs an external model binary. Rows go in on stdin as JSONL; the
// binary supports "train" and "infer" subcommands.
type Bridge struct {
	Bin       string
	ModelPath string
	// Args are appended to every train invocation, e.g. hyperparameters.
	Args []string
}

type trainRecord struct {
	X []float64 `json:"x"`
	Y float64   `json:"y"`
}

// Train fits the model on m and writes it to ModelPath.
func (b *Bridge) Train(ctx context.Context, m features.Matrix) error {
	if m.Len() == 0 {
		return features.ErrNoSamples
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i, r := range m.Rows {
		if err := enc.Encode(trainRecord{X: r.X, Y: m.Targets[i]}); err != nil {
			return err
		}
	}
	args := append([]string{"train", "--out", b.ModelPath}, b.Args...)
	cmd := exec.CommandContext(ctx, b.Bin, args...)
	cmd.Stdin = &buf
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("train error: %w: %s", err, bytes.TrimSpace(out))
	}
	return nil
}

// Predict runs "infer". Each stdout line is either a number or a JSON array
// whose first element is the prediction.
func (b *Bridge) Predict(ctx context.Context, rows []features.FeatureVector) ([]float64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	defer metrics.ObservePredictDuration(time.Now())

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	cmd := exec.CommandContext(ctx, b.Bin, "infer", "--model", b.ModelPath)
	cmd.Stdin = &buf
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("infer error: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	preds, err := parsePredictions(out)
	if err != nil {
		return nil, err
	}
	if len(preds) != len(rows) {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrShapeMismatch, len(preds), len(rows))
	}
	return preds, nil
}

func parsePredictions(out []byte) ([]float64, error) {
	var preds []float64
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if line[0] == '[' {
			var arr []float64
			if err := json.Unmarshal(line, &arr); err != nil {
				return nil, fmt.Errorf("parse prediction %q: %w", line, err)
			}
			if len(arr) == 0 {
				return nil, fmt.Errorf("empty prediction line")
			}
			preds = append(preds, arr[0])
			continue
		}
		var v float64
		if err := json.Unmarshal(line, &v); err != nil {
			return nil, fmt.Errorf("parse prediction %q: %w", line, err)
		}
		preds = append(preds, v)
	}
	return preds, sc.Err()
}
