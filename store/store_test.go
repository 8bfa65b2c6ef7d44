package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/TrevorS/rebalance"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedCustomers(t *testing.T, db *gorm.DB) {
	t.Helper()
	require.NoError(t, db.Exec(`CREATE TABLE customers (tenure REAL, spend REAL, region TEXT, churned INTEGER, tier INTEGER, value REAL)`).Error)
	rows := []struct {
		tenure  float64
		spend   any
		churned int
		tier    int
		value   float64
	}{
		{1, 10.5, 1, 0, 1.5},
		{2, nil, 0, 1, 2.5},
		{3, 30, 0, 2, 3.5},
		{4, 40, 1, 1, 4.5},
		{5, 50, 0, 0, 5.5},
	}
	for _, r := range rows {
		require.NoError(t, db.Exec(`INSERT INTO customers (tenure, spend, region, churned, tier, value) VALUES (?, ?, 'eu', ?, ?, ?)`,
			r.tenure, r.spend, r.churned, r.tier, r.value).Error)
	}
}

func TestGormLogger_FormatsAndFiltersByLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newGormLogger(zap.New(core))

	l.Info(context.Background(), "opened %s", "rows")
	l.Warn(context.Background(), "retry %d of %d", 1, 3)
	l.LogMode(gormlogger.Silent).Error(context.Background(), "dropped %v", "conn")

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, "retry 1 of 3", entries[0].Message)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "dsn", nil)
	assert.Error(t, err)
}

func TestLoader_Binary(t *testing.T) {
	db := openTestDB(t)
	seedCustomers(t, db)

	ds, err := (&Loader{DB: db}).Load(context.Background(), Query{
		Table:  "customers",
		Fields: []string{"tenure", "spend", "churned"},
		Target: "churned",
		Kind:   rebalance.ModelBinary,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"tenure", "spend"}, ds.Fields)
	require.Equal(t, 5, ds.Len())
	assert.Equal(t, []float64{1, 10.5}, ds.Rows[0].Values)
	assert.Equal(t, []float64{2, 0}, ds.Rows[1].Values, "NULL loads as 0")
	assert.True(t, ds.Rows[0].Label.Bool())
	assert.False(t, ds.Rows[1].Label.Bool())
	assert.Equal(t, rebalance.LabelBool, ds.Rows[0].Label.Kind())
}

func TestLoader_Where(t *testing.T) {
	db := openTestDB(t)
	seedCustomers(t, db)

	ds, err := (&Loader{DB: db}).Load(context.Background(), Query{
		Table:  "customers",
		Fields: []string{"tenure"},
		Target: "value",
		Where:  "tenure >= 3",
		Kind:   rebalance.ModelRegression,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	assert.InDelta(t, 3.5, ds.Rows[0].Label.Float(), 1e-12)
}

func TestLoader_Multiclass(t *testing.T) {
	db := openTestDB(t)
	seedCustomers(t, db)

	ds, err := (&Loader{DB: db}).Load(context.Background(), Query{
		Table:  "customers",
		Fields: []string{"tenure", "spend"},
		Target: "tier",
		Kind:   rebalance.ModelMulticlass,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(2), ds.Rows[2].Label.Uint())
	assert.Equal(t, rebalance.LabelUint, ds.Rows[2].Label.Kind())
}

func TestLoader_InvalidLabels(t *testing.T) {
	tests := []struct {
		name  string
		query Query
	}{
		{"binary single class", Query{Fields: []string{"tenure"}, Target: "churned", Where: "churned = 1", Kind: rebalance.ModelBinary}},
		{"multiclass gap", Query{Fields: []string{"tenure"}, Target: "tier", Where: "tier <> 1", Kind: rebalance.ModelMulticlass}},
		{"no rows", Query{Fields: []string{"tenure"}, Target: "value", Where: "tenure > 100", Kind: rebalance.ModelRegression}},
	}
	db := openTestDB(t)
	seedCustomers(t, db)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.query.Table = "customers"
			_, err := (&Loader{DB: db}).Load(context.Background(), tt.query)
			assert.ErrorIs(t, err, ErrInvalidData)
		})
	}
}

func TestLoader_NonNumericColumn(t *testing.T) {
	db := openTestDB(t)
	seedCustomers(t, db)
	_, err := (&Loader{DB: db}).Load(context.Background(), Query{
		Table: "customers", Fields: []string{"region"}, Target: "value", Kind: rebalance.ModelRegression,
	})
	assert.Error(t, err)
}

func TestLoader_RequiresFeatures(t *testing.T) {
	db := openTestDB(t)
	_, err := (&Loader{DB: db}).Load(context.Background(), Query{
		Table: "customers", Fields: []string{"churned"}, Target: "churned", Kind: rebalance.ModelBinary,
	})
	assert.ErrorIs(t, err, rebalance.ErrConfiguration)
}

func TestSink_SaveAndReload(t *testing.T) {
	db := openTestDB(t)
	ds := rebalance.NewDataset([]string{"PC1", "PC2"}, 5)
	for i := 0; i < 5; i++ {
		require.NoError(t, ds.Append([]float64{float64(i), float64(-i)}, rebalance.BoolLabel(i%2 == 0)))
	}

	sink := &Sink{DB: db, BatchSize: 2}
	require.NoError(t, sink.Save(context.Background(), "prepared", ds, []string{"PC1", "PC2"}, "churned", rebalance.ModelBinary))

	var stamped int64
	require.NoError(t, db.Table("prepared").Where(ProcessedAtColumn+" IS NOT NULL").Count(&stamped).Error)
	assert.Equal(t, int64(5), stamped)

	back, err := (&Loader{DB: db}).Load(context.Background(), Query{
		Table: "prepared", Fields: []string{"PC1", "PC2"}, Target: "churned", Kind: rebalance.ModelBinary,
	})
	require.NoError(t, err)
	require.Equal(t, 5, back.Len())
	for i := range ds.Rows {
		assert.Equal(t, ds.Rows[i].Label.Bool(), back.Rows[i].Label.Bool())
	}
	var sum float64
	for _, r := range back.Rows {
		sum += r.Values[0]
	}
	assert.InDelta(t, 10, sum, 1e-12)
}

func TestSink_ReplacesExistingTable(t *testing.T) {
	db := openTestDB(t)
	sink := &Sink{DB: db}

	first := rebalance.NewDataset([]string{"a", "b"}, 3)
	for i := 0; i < 3; i++ {
		_ = first.Append([]float64{1, 2}, rebalance.FloatLabel(float64(i)))
	}
	require.NoError(t, sink.Save(context.Background(), "out", first, first.Fields, "y", rebalance.ModelRegression))

	second := rebalance.NewDataset([]string{"c"}, 1)
	_ = second.Append([]float64{9}, rebalance.UintLabel(4))
	require.NoError(t, sink.Save(context.Background(), "out", second, second.Fields, "y", rebalance.ModelMulticlass))

	var count int64
	require.NoError(t, db.Table("out").Count(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.False(t, db.Migrator().HasColumn("out", "a"))
	assert.True(t, db.Migrator().HasColumn("out", "c"))
}

func TestSink_EmptyDatasetCreatesTable(t *testing.T) {
	db := openTestDB(t)
	ds := rebalance.NewDataset([]string{"a"}, 0)
	require.NoError(t, (&Sink{DB: db}).Save(context.Background(), "empty", ds, ds.Fields, "y", rebalance.ModelRegression))
	assert.True(t, db.Migrator().HasTable("empty"))
}

func TestSink_UnknownFeature(t *testing.T) {
	db := openTestDB(t)
	ds := rebalance.NewDataset([]string{"a"}, 0)
	err := (&Sink{DB: db}).Save(context.Background(), "out", ds, []string{"missing"}, "y", rebalance.ModelRegression)
	assert.ErrorIs(t, err, rebalance.ErrConfiguration)
}

func TestSink_AsProcessorSink(t *testing.T) {
	db := openTestDB(t)
	ds := rebalance.NewDataset([]string{"x1", "x2"}, 30)
	for i := 0; i < 30; i++ {
		v := float64(i)
		_ = ds.Append([]float64{v, v * v / 10}, rebalance.BoolLabel(i%6 == 0))
	}
	cfg := rebalance.Config{
		ModelKind:   rebalance.ModelBinary,
		TargetField: "label",
		Balancing: rebalance.BalancingConfig{
			Method: rebalance.BalanceSMOTE, ExecutionOrder: 1, KNeighbors: 3,
			UndersamplingRatio: 1, MinorityToMajorityRatio: 1,
		},
		Selection:   rebalance.SelectionConfig{Method: rebalance.SelectNone, ExecutionOrder: 2},
		OutputTable: "balanced",
	}
	out, err := rebalance.NewProcessor(rebalance.WithSink(&Sink{DB: db})).Process(context.Background(), ds, []string{"x1", "x2", "label"}, cfg)
	require.NoError(t, err)
	require.NoError(t, out.PersistenceError)

	var count int64
	require.NoError(t, db.Table("balanced").Count(&count).Error)
	assert.Equal(t, int64(out.BalancedSampleCount), count)
	assert.Equal(t, 50, out.BalancedSampleCount)
}
