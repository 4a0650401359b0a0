package tdk

import (
	"strings"

	"github.com/pkg/errors"
)

// Mode says what a load does to an existing destination.
type Mode string

const (
	// Replace drops any existing rows before loading.
	Replace Mode = "replace"
	// Append adds rows to the destination, creating it if needed.
	Append Mode = "append"
)

// ParseMode parses "replace" or "append".
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Replace, Append:
		return m, nil
	}
	return "", &ConfigurationError{Key: "mode", Err: errors.Errorf("%q is not replace or append", s)}
}

// Default chunk sizes for loads.
const (
	DefaultRelationalChunkSize = 100000
	DefaultWarehouseChunkSize  = 500000
)
