package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/TrevorS/rebalance"
)

const (
	rootKey   = "modelConfig"
	envPrefix = "REBALANCE"
)

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"seed":         rootKey + ".seed",
	"workers":      rootKey + ".workers",
	"log-level":    rootKey + ".logging.level",
	"log-format":   rootKey + ".logging.format",
	"output-table": rootKey + ".database.outputTableName",
	"dsn":          rootKey + ".database.dsn",
	"pushgateway":  rootKey + ".metrics.pushgatewayURL",
}

// RegisterFlags adds the overridable settings to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Uint64("seed", 42, "base seed for randomized stages")
	fs.Int("workers", 0, "worker goroutines, 0 for one per CPU")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "json", "log format: json, console")
	fs.String("output-table", "", "destination table for the processed data")
	fs.String("dsn", "", "database connection string")
	fs.String("pushgateway", "", "Prometheus Pushgateway URL")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(rootKey+".seed", 42)
	v.SetDefault(rootKey+".workers", 0)
	v.SetDefault(rootKey+".database.driver", "sqlite")
	v.SetDefault(rootKey+".database.batchSize", 1000)
	v.SetDefault(rootKey+".dataBalancing.method", "none")
	v.SetDefault(rootKey+".dataBalancing.executionOrder", 1)
	v.SetDefault(rootKey+".dataBalancing.kNeighbors", 5)
	v.SetDefault(rootKey+".dataBalancing.undersamplingRatio", 1.0)
	v.SetDefault(rootKey+".dataBalancing.minorityToMajorityRatio", 1.0)
	v.SetDefault(rootKey+".featureEngineering.method", "none")
	v.SetDefault(rootKey+".featureEngineering.executionOrder", 2)
	v.SetDefault(rootKey+".logging.level", "info")
	v.SetDefault(rootKey+".logging.format", "json")
	v.SetDefault(rootKey+".metrics.job", "rebalance")
}

// Load reads the configuration file at path, applies environment overrides
// and any flags in fs that were set explicitly, and validates the result.
// fs may be nil. Validation failures wrap rebalance.ErrConfiguration.
func Load(path string, fs *pflag.FlagSet) (*ModelConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("config: bind flag %s: %w", name, err)
				}
			}
		}
	}

	if !v.InConfig(rootKey) {
		return nil, fmt.Errorf("config: %w: %s has no %q section", rebalance.ErrConfiguration, path, rootKey)
	}

	// Unmarshal walks every leaf key, so environment and flag overrides of
	// nested settings are applied.
	var f file
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := Validate(&f.ModelConfig); err != nil {
		return nil, err
	}
	return &f.ModelConfig, nil
}

type file struct {
	ModelConfig ModelConfig `mapstructure:"modelConfig"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(featureEngineeringRules, FeatureEngineeringConfig{})
	v.RegisterStructValidation(modelRules, ModelConfig{})
	return v
}

// featureEngineeringRules checks the parameters of the selected method.
func featureEngineeringRules(sl validator.StructLevel) {
	fe := sl.Current().Interface().(FeatureEngineeringConfig)
	switch fe.Method {
	case "pca":
		if fe.NumberOfComponents <= 0 {
			sl.ReportError(fe.NumberOfComponents, "NumberOfComponents", "numberOfComponents", "gt_for_pca", "")
		}
	case "forward":
		if fe.MaxFeatures <= 0 {
			sl.ReportError(fe.MaxFeatures, "MaxFeatures", "maxFeatures", "gt_for_forward", "")
		}
		if fe.MinImprovement <= 0 {
			sl.ReportError(fe.MinImprovement, "MinImprovement", "minImprovement", "gt_for_forward", "")
		}
	case "correlation":
		if fe.MulticollinearityThreshold <= 0 || fe.MulticollinearityThreshold >= 1 {
			sl.ReportError(fe.MulticollinearityThreshold, "MulticollinearityThreshold", "multicollinearityThreshold", "range_for_correlation", "")
		}
	}
}

// modelRules checks constraints that span sections.
func modelRules(sl validator.StructLevel) {
	c := sl.Current().Interface().(ModelConfig)
	if c.DataBalancing.Method != "none" && c.ModelType != "binary" {
		sl.ReportError(c.DataBalancing.Method, "DataBalancing.Method", "method", "binary_only", c.ModelType)
	}
	if len(c.InputFields) > 0 && len(c.EnabledFields()) == 0 {
		sl.ReportError(c.InputFields, "InputFields", "inputFields", "some_enabled", "")
	}
}

// Validate checks cfg and returns an error wrapping
// rebalance.ErrConfiguration that lists every failed rule.
func Validate(cfg *ModelConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w: %w", rebalance.ErrConfiguration, err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
	}
	return fmt.Errorf("config: %w: %s", rebalance.ErrConfiguration, strings.Join(msgs, "; "))
}
