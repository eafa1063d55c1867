package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"engagelens/internal/features"
)

// Fields are the pre-posting columns plus the target, in CSV selection order.
var Fields = [NumFields]string{
	features.ColDayOfWeek,
	features.ColPlatform,
	features.ColTopicCategory,
	features.ColSentimentScore,
	features.ColEmotionType,
	features.ColToxicityScore,
	features.ColUserPastSentimentAvg,
	features.ColUserEngagementGrowth,
	features.ColLocation,
	features.ColLanguage,
	features.ColEngagementRate,
}

const NumFields = 11

// Field indexes into Record.
const (
	fDay = iota
	fPlatform
	fTopic
	fSentiment
	fEmotion
	fToxicity
	fPastPerf
	fGrowth
	fLocation
	fLanguage
	fRate
)

// ErrMissingColumn is returned when the CSV header lacks a required field.
var ErrMissingColumn = errors.New("missing required column")

// Record is one raw CSV row reduced to Fields. Empty cells stay empty.
type Record [NumFields]string

// ReadCSV parses a header-driven CSV and keeps only Fields. Extra columns are
// ignored; a missing required column is an error.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	var idx [NumFields]int
	for i, f := range Fields {
		p, ok := pos[f]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, f)
		}
		idx[i] = p
	}

	var out []Record
	line := 1
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var rec Record
		for i, p := range idx {
			if p < len(row) {
				rec[i] = strings.TrimSpace(row[p])
			}
		}
		out = append(out, rec)
	}
	return out, nil
}

// WriteMatrixCSV writes m with a Columns + engagement_rate header.
func WriteMatrixCSV(w io.Writer, m features.Matrix) error {
	cw := csv.NewWriter(w)
	header := append(features.ColumnNames(), features.ColEngagementRate)
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(header))
	for i, r := range m.Rows {
		if len(r.X) != features.NumColumns {
			return fmt.Errorf("row %d: %d values, want %d", i, len(r.X), features.NumColumns)
		}
		for j, v := range r.X {
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		row[features.NumColumns] = strconv.FormatFloat(m.Targets[i], 'g', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
