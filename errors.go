package rebalance

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports an invalid ratio, a missing method parameter or
	// a label column that does not hold exactly two classes. It is always
	// returned before any computation starts.
	ErrConfiguration = errors.New("rebalance: invalid configuration")

	// ErrComputation reports a failure while transforming data, such as a
	// zero-variance column during PCA standardization.
	ErrComputation = errors.New("rebalance: computation failed")
)

func configErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

func computeErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrComputation}, args...)...)
}
