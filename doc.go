// Package rebalance prepares tabular training data for a model fitter. It
// rebalances a binary class distribution with synthetic minority samples and
// selects or transforms the feature set before the data is handed to training.
//
// Two families of transforms are provided. Balancers (None, SMOTE, ADASYN)
// undersample the majority class and interpolate new minority rows between
// nearest neighbors. Selectors (None, Correlation, ForwardSelection, PCA)
// narrow or project the candidate feature columns and produce a human-readable
// report.
//
// Basic usage:
//
//	p := rebalance.NewProcessor(rebalance.WithLogger(logger), rebalance.WithSeed(42))
//	cfg := rebalance.Config{
//		ModelKind:   rebalance.ModelBinary,
//		TargetField: "Label",
//		Balancing:   rebalance.DefaultBalancingConfig(),
//		Selection:   rebalance.SelectionConfig{Method: rebalance.SelectCorrelation, ExecutionOrder: 2, MaxFeatures: 10, MulticollinearityThreshold: 0.9},
//	}
//	cfg.Balancing.Method = rebalance.BalanceSMOTE
//	out, err := p.Process(ctx, raw, fields, cfg)
//	// out.Data holds the final rows, out.FeatureNames the final columns.
//
// # Stage order
//
// The Processor runs balancing first when Balancing.ExecutionOrder is less
// than or equal to Selection.ExecutionOrder, and selection first otherwise.
// When selection runs first, balancing operates on the selected (or projected)
// columns. Both stages are always visited, even when their method is None.
//
// # Randomness
//
// All randomized work takes an explicit *rand.Rand. Parallel workers derive
// independent PCG streams from a base seed drawn from it, so results do not
// depend on the number of workers.
package rebalance
