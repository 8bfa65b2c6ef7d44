package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrevorS/rebalance"
)

const validYAML = `
modelConfig:
  author: data team
  modelType: binary
  targetField: churned
  inputFields:
    - {name: tenure, isEnabled: true}
    - {name: spend, isEnabled: true}
    - {name: region, isEnabled: false}
    - {name: churned, isEnabled: true}
  database:
    driver: sqlite
    dsn: data.db
    tableName: customers
    outputTableName: customers_prepared
  dataBalancing:
    method: smote
    undersamplingRatio: 0.5
  featureEngineering:
    method: pca
    numberOfComponents: 2
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, "config.yaml", validYAML), nil)
	require.NoError(t, err)

	assert.Equal(t, "binary", cfg.ModelType)
	assert.Equal(t, uint64(42), cfg.Seed)
	assert.Equal(t, 5, cfg.DataBalancing.KNeighbors)
	assert.Equal(t, 1, cfg.DataBalancing.ExecutionOrder)
	assert.Equal(t, 2, cfg.FeatureEngineering.ExecutionOrder)
	assert.InDelta(t, 1.0, cfg.DataBalancing.MinorityToMajorityRatio, 1e-12)
	assert.InDelta(t, 0.5, cfg.DataBalancing.UndersamplingRatio, 1e-12)
	assert.Equal(t, 1000, cfg.Database.BatchSize)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, []string{"tenure", "spend", "churned"}, cfg.EnabledFields())
}

func TestLoad_JSON(t *testing.T) {
	body := `{"modelConfig": {
		"modelType": "regression",
		"targetField": "price",
		"inputFields": [{"name": "area", "isEnabled": true}],
		"database": {"driver": "postgres", "dsn": "host=db", "tableName": "houses"},
		"featureEngineering": {"method": "forward", "maxFeatures": 3, "minImprovement": 0.001}
	}}`
	cfg, err := Load(writeFile(t, "config.json", body), nil)
	require.NoError(t, err)
	assert.Equal(t, "forward", cfg.FeatureEngineering.Method)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("REBALANCE_MODELCONFIG_DATABASE_DSN", "override.db")
	cfg, err := Load(writeFile(t, "config.yaml", validYAML), nil)
	require.NoError(t, err)
	assert.Equal(t, "override.db", cfg.Database.DSN)
}

func TestLoad_FlagOverride(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--seed=7", "--output-table=other"}))

	cfg, err := Load(writeFile(t, "config.yaml", validYAML), fs)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), cfg.Seed)
	assert.Equal(t, "other", cfg.Database.OutputTableName)
	// Unset flags leave file values alone.
	assert.Equal(t, "data.db", cfg.Database.DSN)
}

func TestLoad_MissingRoot(t *testing.T) {
	_, err := Load(writeFile(t, "config.yaml", "other: {}\n"), nil)
	assert.ErrorIs(t, err, rebalance.ErrConfiguration)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func validConfig() ModelConfig {
	return ModelConfig{
		ModelType:   "binary",
		TargetField: "y",
		InputFields: []InputField{{Name: "a", IsEnabled: true}},
		Database:    DatabaseConfig{Driver: "sqlite", DSN: "x.db", TableName: "t", BatchSize: 1000},
		DataBalancing: DataBalancingConfig{
			Method: "none", KNeighbors: 5, UndersamplingRatio: 1, MinorityToMajorityRatio: 1,
		},
		FeatureEngineering: FeatureEngineeringConfig{Method: "none"},
		Logging:            LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ModelConfig)
		wantErr bool
	}{
		{"valid", func(*ModelConfig) {}, false},
		{"unknown model type", func(c *ModelConfig) { c.ModelType = "ranking" }, true},
		{"missing target", func(c *ModelConfig) { c.TargetField = "" }, true},
		{"no input fields", func(c *ModelConfig) { c.InputFields = nil }, true},
		{"none enabled", func(c *ModelConfig) { c.InputFields[0].IsEnabled = false }, true},
		{"unnamed field", func(c *ModelConfig) { c.InputFields[0].Name = "" }, true},
		{"bad driver", func(c *ModelConfig) { c.Database.Driver = "mysql" }, true},
		{"missing table", func(c *ModelConfig) { c.Database.TableName = "" }, true},
		{"ratio above one", func(c *ModelConfig) { c.DataBalancing.UndersamplingRatio = 1.2 }, true},
		{"zero neighbors", func(c *ModelConfig) { c.DataBalancing.KNeighbors = 0 }, true},
		{"smote on regression", func(c *ModelConfig) {
			c.ModelType = "regression"
			c.DataBalancing.Method = "smote"
		}, true},
		{"pca without components", func(c *ModelConfig) { c.FeatureEngineering.Method = "pca" }, true},
		{"pca with components", func(c *ModelConfig) {
			c.FeatureEngineering.Method = "pca"
			c.FeatureEngineering.NumberOfComponents = 2
		}, false},
		{"forward without improvement", func(c *ModelConfig) {
			c.FeatureEngineering.Method = "forward"
			c.FeatureEngineering.MaxFeatures = 3
		}, true},
		{"correlation threshold one", func(c *ModelConfig) {
			c.FeatureEngineering.Method = "correlation"
			c.FeatureEngineering.MulticollinearityThreshold = 1
		}, true},
		{"bad pushgateway url", func(c *ModelConfig) { c.Metrics.PushgatewayURL = "not a url" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := Validate(&cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, rebalance.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPipeline(t *testing.T) {
	cfg := validConfig()
	cfg.Workers = 3
	cfg.DataBalancing.Method = "adasyn"
	cfg.FeatureEngineering = FeatureEngineeringConfig{Method: "correlation", ExecutionOrder: 0, MulticollinearityThreshold: 0.8}
	cfg.Database.OutputTableName = "out"

	p := cfg.Pipeline()
	assert.Equal(t, rebalance.ModelBinary, p.ModelKind)
	assert.Equal(t, rebalance.BalanceADASYN, p.Balancing.Method)
	assert.Equal(t, rebalance.SelectCorrelation, p.Selection.Method)
	assert.Equal(t, 3, p.Balancing.Workers)
	assert.Equal(t, 3, p.Selection.Workers)
	assert.Equal(t, "out", p.OutputTable)
	assert.InDelta(t, 0.8, p.Selection.MulticollinearityThreshold, 1e-12)
}
