package traffic

import "fmt"

// ConfigError reports an invalid construction parameter. It is never
// recovered from: constructors return it and callers abort.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Field, e.Reason)
}

func positive(field string, v float64) error {
	if !(v > 0) {
		return &ConfigError{Field: field, Reason: fmt.Sprintf("must be positive, got %v", v)}
	}
	return nil
}
