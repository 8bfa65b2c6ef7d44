package store

import (
	"context"
	"fmt"
	"math"
	"slices"
	"strconv"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/TrevorS/rebalance"
)

// Query describes the rows to load.
type Query struct {
	Table string

	// Fields are the feature columns. The target is dropped from them if
	// present.
	Fields []string
	Target string

	// Where is an optional raw SQL condition.
	Where string

	Kind rebalance.ModelKind
}

// Loader reads a labeled dataset from a table.
type Loader struct {
	DB     *gorm.DB
	Logger *zap.Logger
}

// Load selects the query's fields and target, coerces features to float64
// (NULL becomes 0) and the target according to the model kind, then checks
// the labels: binary needs exactly two values, multiclass labels must be
// consecutive from 0 and regression labels must be finite.
func (l *Loader) Load(ctx context.Context, q Query) (*rebalance.Dataset, error) {
	logger := l.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if q.Table == "" || q.Target == "" {
		return nil, fmt.Errorf("store: %w: table and target are required", rebalance.ErrConfiguration)
	}
	features := rebalance.FilterTarget(q.Fields, q.Target)
	if len(features) == 0 {
		return nil, fmt.Errorf("store: %w: no feature fields to load", rebalance.ErrConfiguration)
	}

	tx := l.DB.WithContext(ctx).Table(q.Table).Select(append(slices.Clone(features), q.Target))
	if q.Where != "" {
		tx = tx.Where(q.Where)
	}
	rows, err := tx.Rows()
	if err != nil {
		return nil, fmt.Errorf("store: query %s: %w", q.Table, err)
	}
	defer rows.Close()

	ds := rebalance.NewDataset(features, 0)
	raw := make([]any, len(features)+1)
	ptrs := make([]any, len(raw))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	values := make([]float64, len(features))
	line := 0
	for rows.Next() {
		line++
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("store: scan row %d: %w", line, err)
		}
		for j := range features {
			v, err := toFloat(raw[j])
			if err != nil {
				return nil, fmt.Errorf("store: row %d column %q: %w", line, features[j], err)
			}
			values[j] = v
		}
		label, err := toLabel(raw[len(features)], q.Kind)
		if err != nil {
			return nil, fmt.Errorf("store: row %d target %q: %w", line, q.Target, err)
		}
		if err := ds.Append(values, label); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: read %s: %w", q.Table, err)
	}

	if err := validateLabels(ds, q.Kind); err != nil {
		return nil, err
	}
	logger.Info("data loaded",
		zap.String("table", q.Table),
		zap.Int("rows", ds.Len()),
		zap.Int("features", len(features)))
	return ds, nil
}

// toFloat converts a scanned column value. NULL becomes 0.
func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case []byte:
		return strconv.ParseFloat(string(x), 64)
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, fmt.Errorf("unsupported column type %T", v)
	}
}

func toLabel(v any, kind rebalance.ModelKind) (rebalance.Label, error) {
	switch kind {
	case rebalance.ModelBinary:
		if v == nil {
			return rebalance.Label{}, fmt.Errorf("%w: NULL target", ErrInvalidData)
		}
		f, err := toFloat(v)
		if err != nil {
			return rebalance.Label{}, err
		}
		return rebalance.BoolLabel(f != 0), nil
	case rebalance.ModelMulticlass:
		if v == nil {
			return rebalance.Label{}, fmt.Errorf("%w: NULL target", ErrInvalidData)
		}
		f, err := toFloat(v)
		if err != nil {
			return rebalance.Label{}, err
		}
		if f < 0 || f != math.Trunc(f) || f > math.MaxUint32 {
			return rebalance.Label{}, fmt.Errorf("%w: class %v is not a non-negative integer", ErrInvalidData, f)
		}
		return rebalance.UintLabel(uint32(f)), nil
	case rebalance.ModelRegression:
		f, err := toFloat(v)
		if err != nil {
			return rebalance.Label{}, err
		}
		return rebalance.FloatLabel(f), nil
	default:
		return rebalance.Label{}, fmt.Errorf("%w: unsupported model kind %q", rebalance.ErrConfiguration, kind)
	}
}

func validateLabels(ds *rebalance.Dataset, kind rebalance.ModelKind) error {
	if ds.Len() == 0 {
		return fmt.Errorf("%w: no rows were loaded", ErrInvalidData)
	}
	switch kind {
	case rebalance.ModelBinary:
		seen := map[bool]bool{}
		for _, r := range ds.Rows {
			seen[r.Label.Bool()] = true
		}
		if len(seen) != 2 {
			return fmt.Errorf("%w: binary classification requires exactly two distinct label values, found %d", ErrInvalidData, len(seen))
		}
	case rebalance.ModelMulticlass:
		seen := map[uint32]bool{}
		for _, r := range ds.Rows {
			seen[r.Label.Uint()] = true
		}
		for c := range uint32(len(seen)) {
			if !seen[c] {
				classes := make([]uint32, 0, len(seen))
				for k := range seen {
					classes = append(classes, k)
				}
				slices.Sort(classes)
				return fmt.Errorf("%w: multiclass labels must be consecutive integers starting from 0, found %v", ErrInvalidData, classes)
			}
		}
	case rebalance.ModelRegression:
		for i, r := range ds.Rows {
			if f := r.Label.Float(); math.IsNaN(f) || math.IsInf(f, 0) {
				return fmt.Errorf("%w: regression label on row %d is %v", ErrInvalidData, i+1, f)
			}
		}
	}
	return nil
}
