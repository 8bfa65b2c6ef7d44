// Package config loads and validates the pipeline configuration file.
//
// The file holds a single "modelConfig" object:
//
//	modelConfig:
//	  modelType: binary
//	  targetField: churned
//	  inputFields:
//	    - {name: tenure, isEnabled: true}
//	    - {name: spend, isEnabled: true}
//	  database:
//	    driver: sqlite
//	    dsn: data.db
//	    tableName: customers
//	    outputTableName: customers_prepared
//	  dataBalancing: {method: smote, executionOrder: 1, kNeighbors: 5}
//	  featureEngineering: {method: pca, executionOrder: 2, numberOfComponents: 3}
//
// Any key may be overridden from the environment with the REBALANCE_ prefix,
// e.g. REBALANCE_MODELCONFIG_DATABASE_DSN.
package config

import (
	"github.com/TrevorS/rebalance"
)

// ModelConfig is the root of the configuration file.
type ModelConfig struct {
	Author      string `mapstructure:"author"`
	Description string `mapstructure:"description"`

	ModelType   string       `mapstructure:"modelType" validate:"required,oneof=binary multiclass regression"`
	TargetField string       `mapstructure:"targetField" validate:"required"`
	InputFields []InputField `mapstructure:"inputFields" validate:"required,min=1,dive"`

	Database           DatabaseConfig           `mapstructure:"database"`
	DataBalancing      DataBalancingConfig      `mapstructure:"dataBalancing"`
	FeatureEngineering FeatureEngineeringConfig `mapstructure:"featureEngineering"`

	// Seed drives every randomized stage.
	Seed uint64 `mapstructure:"seed"`

	// Workers bounds parallelism in balancing and forward selection. 0 means
	// one per CPU.
	Workers int `mapstructure:"workers" validate:"gte=0"`

	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// InputField is one column of the source table.
type InputField struct {
	Name      string `mapstructure:"name" validate:"required"`
	IsEnabled bool   `mapstructure:"isEnabled"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver" validate:"required,oneof=sqlite postgres"`
	DSN             string `mapstructure:"dsn" validate:"required"`
	TableName       string `mapstructure:"tableName" validate:"required"`
	OutputTableName string `mapstructure:"outputTableName"`
	WhereClause     string `mapstructure:"whereClause"`
	BatchSize       int    `mapstructure:"batchSize" validate:"gte=1"`
}

type DataBalancingConfig struct {
	Method                  string  `mapstructure:"method" validate:"oneof=none smote adasyn"`
	ExecutionOrder          int     `mapstructure:"executionOrder"`
	KNeighbors              int     `mapstructure:"kNeighbors" validate:"gte=1"`
	UndersamplingRatio      float64 `mapstructure:"undersamplingRatio" validate:"gt=0,lte=1"`
	MinorityToMajorityRatio float64 `mapstructure:"minorityToMajorityRatio" validate:"gt=0,lte=1"`
}

// FeatureEngineeringConfig parameters are only checked for the method that
// uses them.
type FeatureEngineeringConfig struct {
	Method                     string  `mapstructure:"method" validate:"oneof=none correlation forward pca"`
	ExecutionOrder             int     `mapstructure:"executionOrder"`
	NumberOfComponents         int     `mapstructure:"numberOfComponents"`
	MaxFeatures                int     `mapstructure:"maxFeatures"`
	MinImprovement             float64 `mapstructure:"minImprovement"`
	MulticollinearityThreshold float64 `mapstructure:"multicollinearityThreshold"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type MetricsConfig struct {
	// PushgatewayURL enables pushing run metrics when set.
	PushgatewayURL string `mapstructure:"pushgatewayURL" validate:"omitempty,url"`
	Job            string `mapstructure:"job"`
}

// EnabledFields returns the names of the enabled input fields in file order.
func (c *ModelConfig) EnabledFields() []string {
	out := make([]string, 0, len(c.InputFields))
	for _, f := range c.InputFields {
		if f.IsEnabled {
			out = append(out, f.Name)
		}
	}
	return out
}

// Pipeline converts the file settings into a pipeline run configuration.
func (c *ModelConfig) Pipeline() rebalance.Config {
	return rebalance.Config{
		ModelKind:   rebalance.ModelKind(c.ModelType),
		TargetField: c.TargetField,
		Balancing: rebalance.BalancingConfig{
			Method:                  rebalance.BalanceMethod(c.DataBalancing.Method),
			ExecutionOrder:          c.DataBalancing.ExecutionOrder,
			KNeighbors:              c.DataBalancing.KNeighbors,
			UndersamplingRatio:      c.DataBalancing.UndersamplingRatio,
			MinorityToMajorityRatio: c.DataBalancing.MinorityToMajorityRatio,
			Workers:                 c.Workers,
		},
		Selection: rebalance.SelectionConfig{
			Method:                     rebalance.SelectionMethod(c.FeatureEngineering.Method),
			ExecutionOrder:             c.FeatureEngineering.ExecutionOrder,
			NumberOfComponents:         c.FeatureEngineering.NumberOfComponents,
			MaxFeatures:                c.FeatureEngineering.MaxFeatures,
			MinImprovement:             c.FeatureEngineering.MinImprovement,
			MulticollinearityThreshold: c.FeatureEngineering.MulticollinearityThreshold,
			Workers:                    c.Workers,
		},
		OutputTable: c.Database.OutputTableName,
	}
}
