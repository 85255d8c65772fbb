package health

import "errors"

// Causes recorded in Result.Error by the aggregator and the built-in
// checkers.
var (
	ErrCheckFailed     = errors.New("health: check failed")
	ErrCheckTimeout    = errors.New("health: check exceeded its deadline")
	ErrCheckPanicked   = errors.New("health: check panicked")
	ErrCheckerNotFound = errors.New("health: no checker registered under that name")
)
