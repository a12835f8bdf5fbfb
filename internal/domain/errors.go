package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrUnsupportedToken = errors.New("unsupported token symbol")
	ErrZeroPrice        = errors.New("zero or negative price")
	ErrNoPool           = errors.New("pool not found")
	ErrStalePrice       = errors.New("price observation is stale")
	ErrSimulationFailed = errors.New("simulation failed")
	ErrContextDone      = errors.New("context cancelled")
)
