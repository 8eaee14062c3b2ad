package rag

import (
	"errors"
	"fmt"
)

const (
	DefaultTopK             = 5
	DefaultSupportThreshold = 0.62
	DefaultMaxAttempts      = 1
	DefaultRecursionLimit   = 10
)

// ErrInvalidConfig wraps every configuration rejection so callers can match
// the whole class with errors.Is.
var ErrInvalidConfig = errors.New("invalid correction config")

type Config struct {
	TopK             int
	SupportThreshold float64
	MaxAttempts      int
	RecursionLimit   int
	// NoAnswerOnExhaust forces the explicit insufficient-evidence answer on
	// exhaustion even when a best-effort answer exists.
	NoAnswerOnExhaust bool
}

func DefaultConfig() Config {
	return Config{
		TopK:             DefaultTopK,
		SupportThreshold: DefaultSupportThreshold,
		MaxAttempts:      DefaultMaxAttempts,
		RecursionLimit:   DefaultRecursionLimit,
	}
}

func (c Config) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidConfig, c.TopK)
	}
	if c.SupportThreshold < 0 || c.SupportThreshold > 1 {
		return fmt.Errorf("%w: support_threshold must be within [0,1], got %g", ErrInvalidConfig, c.SupportThreshold)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("%w: max_attempts must be >= 0, got %d", ErrInvalidConfig, c.MaxAttempts)
	}
	if c.RecursionLimit < 1 {
		return fmt.Errorf("%w: recursion_limit must be >= 1, got %d", ErrInvalidConfig, c.RecursionLimit)
	}
	return nil
}
