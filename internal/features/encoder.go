package features

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/goccy/go-json"

	"engagelens/internal/metrics"
)

// LabelEncoder is a fitted bijection between string classes and dense codes
// 0..k-1. Codes follow the sorted class order fixed at fit time.
type LabelEncoder struct {
	classes []string
	index   map[string]int
}

// FitLabelEncoder collects the distinct values and sorts them byte-wise.
func FitLabelEncoder(values []string) *LabelEncoder {
	seen := make(map[string]struct{}, len(values))
	classes := make([]string, 0)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		classes = append(classes, v)
	}
	sort.Strings(classes)
	return newLabelEncoder(classes)
}

// newLabelEncoder trusts classes to be the persisted order; it does not re-sort.
func newLabelEncoder(classes []string) *LabelEncoder {
	idx := make(map[string]int, len(classes))
	for i, c := range classes {
		idx[c] = i
	}
	return &LabelEncoder{classes: classes, index: idx}
}

// Classes returns a copy of the fitted classes in code order.
func (e *LabelEncoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

func (e *LabelEncoder) Len() int { return len(e.classes) }

func (e *LabelEncoder) Has(v string) bool {
	_, ok := e.index[v]
	return ok
}

// EncodeStrict returns the code for v, or ErrUnseenCategory.
func (e *LabelEncoder) EncodeStrict(v string) (int, error) {
	if code, ok := e.index[v]; ok {
		return code, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnseenCategory, v)
}

// EncodeWithNearestFallback encodes an ordinal integer. An exact match on its
// decimal form wins; otherwise the integer-like class at the smallest absolute
// distance is used, ties going to the earliest class in fitted order.
// Classes that do not parse as integers are skipped.
func (e *LabelEncoder) EncodeWithNearestFallback(v int) (int, error) {
	if code, ok := e.index[strconv.Itoa(v)]; ok {
		return code, nil
	}
	best, bestDist := -1, 0
	for code, c := range e.classes {
		n, err := strconv.Atoi(c)
		if err != nil {
			continue
		}
		d := n - v
		if d < 0 {
			d = -d
		}
		if best < 0 || d < bestDist {
			best, bestDist = code, d
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: value %d", ErrNoNumericClasses, v)
	}
	return best, nil
}

func (e *LabelEncoder) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.classes)
}

func (e *LabelEncoder) UnmarshalJSON(b []byte) error {
	var classes []string
	if err := json.Unmarshal(b, &classes); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		if _, dup := seen[c]; dup {
			return fmt.Errorf("duplicate class %q", c)
		}
		seen[c] = struct{}{}
	}
	*e = *newLabelEncoder(classes)
	return nil
}

// Registry maps a column name to its fitted encoder. It is never refit after
// construction and is safe for concurrent readers.
type Registry struct {
	encoders map[string]*LabelEncoder
}

func NewRegistry(encoders map[string]*LabelEncoder) *Registry {
	m := make(map[string]*LabelEncoder, len(encoders))
	for k, v := range encoders {
		m[k] = v
	}
	return &Registry{encoders: m}
}

// Encoder returns the encoder for column.
func (r *Registry) Encoder(column string) (*LabelEncoder, error) {
	e, ok := r.encoders[column]
	if !ok || e == nil {
		return nil, fmt.Errorf("%w: encoder %q", ErrUnknownColumn, column)
	}
	return e, nil
}

// Columns lists the registered columns, sorted.
func (r *Registry) Columns() []string {
	out := make([]string, 0, len(r.encoders))
	for k := range r.encoders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Strict encodes a free-text categorical. Unseen values fail.
func (r *Registry) Strict(column, value string) (int, error) {
	e, err := r.Encoder(column)
	if err != nil {
		return 0, err
	}
	code, err := e.EncodeStrict(value)
	if err != nil {
		metrics.IncUnseenCategory(column)
		return 0, fmt.Errorf("%s: %w", column, err)
	}
	return code, nil
}

// Nearest encodes a bucket index, snapping unseen buckets to the closest
// fitted one. Only bucket columns go through here.
func (r *Registry) Nearest(column string, bucket int) (int, error) {
	e, err := r.Encoder(column)
	if err != nil {
		return 0, err
	}
	if !e.Has(strconv.Itoa(bucket)) {
		metrics.IncBucketFallback(column)
	}
	code, err := e.EncodeWithNearestFallback(bucket)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", column, err)
	}
	return code, nil
}

func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.encoders)
}

func (r *Registry) UnmarshalJSON(b []byte) error {
	var m map[string]*LabelEncoder
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	for col, e := range m {
		if e == nil {
			return fmt.Errorf("encoder %q is null", col)
		}
	}
	*r = *NewRegistry(m)
	return nil
}
