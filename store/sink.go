package store

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/TrevorS/rebalance"
)

// ProcessedAtColumn holds the insertion timestamp of every saved row.
const ProcessedAtColumn = "processed_at"

// Sink writes processed datasets to a table, replacing any previous
// contents.
type Sink struct {
	DB     *gorm.DB
	Logger *zap.Logger

	// BatchSize is the number of rows per INSERT. Default: DefaultBatchSize.
	BatchSize int
}

var _ rebalance.Sink = (*Sink)(nil)

// Save drops and recreates destination with one DOUBLE PRECISION column per
// feature, the target typed by model kind and a processed_at timestamp, then
// inserts every row in batches. It all runs in one transaction.
func (s *Sink) Save(ctx context.Context, destination string, ds *rebalance.Dataset, featureNames []string, target string, kind rebalance.ModelKind) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := s.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	targetType, err := targetColumnType(kind)
	if err != nil {
		return err
	}
	features := rebalance.FilterTarget(featureNames, target)
	matrix, err := ds.Matrix(features)
	if err != nil {
		return err
	}

	records := make([]map[string]any, len(matrix))
	for i, row := range matrix {
		rec := make(map[string]any, len(features)+1)
		for j, f := range features {
			rec[f] = row[j]
		}
		rec[target] = labelValue(ds.Rows[i].Label, kind)
		records[i] = rec
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DROP TABLE IF EXISTS ?", clause.Table{Name: destination}).Error; err != nil {
			return fmt.Errorf("drop %s: %w", destination, err)
		}

		cols := make([]string, 0, len(features)+2)
		args := []any{clause.Table{Name: destination}}
		for _, f := range features {
			cols = append(cols, "? DOUBLE PRECISION")
			args = append(args, clause.Column{Name: f})
		}
		cols = append(cols, "? "+targetType, "? TIMESTAMP DEFAULT CURRENT_TIMESTAMP")
		args = append(args, clause.Column{Name: target}, clause.Column{Name: ProcessedAtColumn})
		create := "CREATE TABLE ? (" + strings.Join(cols, ", ") + ")"
		if err := tx.Exec(create, args...).Error; err != nil {
			return fmt.Errorf("create %s: %w", destination, err)
		}
		logger.Info("table recreated", zap.String("table", destination))

		if len(records) == 0 {
			return nil
		}
		if err := tx.Table(destination).CreateInBatches(records, batch).Error; err != nil {
			return fmt.Errorf("insert into %s: %w", destination, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	logger.Info("rows inserted", zap.String("table", destination), zap.Int("rows", len(records)))
	return nil
}

func targetColumnType(kind rebalance.ModelKind) (string, error) {
	switch kind {
	case rebalance.ModelBinary:
		return "BOOLEAN", nil
	case rebalance.ModelMulticlass:
		return "INTEGER", nil
	case rebalance.ModelRegression:
		return "DOUBLE PRECISION", nil
	default:
		return "", fmt.Errorf("store: %w: unsupported model kind %q", rebalance.ErrConfiguration, kind)
	}
}

func labelValue(l rebalance.Label, kind rebalance.ModelKind) any {
	switch kind {
	case rebalance.ModelBinary:
		return l.Bool()
	case rebalance.ModelMulticlass:
		return int64(l.Uint())
	default:
		return l.Float()
	}
}
