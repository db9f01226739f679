package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/progrium/tabtalk-go/logging"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "bus.ack_wait")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidTransportKinds returns the accepted values of transport.kind
func ValidTransportKinds() []string {
	return []string{"tcp", "unix", "ws", "quic", "redis"}
}

// ValidCodecs returns the accepted values of transport.codec
func ValidCodecs() []string {
	return []string{"json", "cbor"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.Bus.AckWait <= 0 {
		errors = append(errors, ValidationError{"bus.ack_wait", c.Bus.AckWait, "must be positive"})
	}
	if c.Bus.AckWaitExtra <= 0 {
		errors = append(errors, ValidationError{"bus.ack_wait_extra", c.Bus.AckWaitExtra, "must be positive"})
	}
	if c.Bus.FrameDelay <= 0 {
		errors = append(errors, ValidationError{"bus.frame_delay", c.Bus.FrameDelay, "must be positive"})
	}

	if !slices.Contains(ValidTransportKinds(), c.Transport.Kind) {
		errors = append(errors, ValidationError{
			Field:   "transport.kind",
			Value:   c.Transport.Kind,
			Message: "must be one of " + strings.Join(ValidTransportKinds(), ", "),
		})
	}
	if !slices.Contains(ValidCodecs(), c.Transport.Codec) {
		errors = append(errors, ValidationError{
			Field:   "transport.codec",
			Value:   c.Transport.Codec,
			Message: "must be one of " + strings.Join(ValidCodecs(), ", "),
		})
	}
	if c.Transport.Kind != "redis" && c.Transport.Addr == "" {
		errors = append(errors, ValidationError{"transport.addr", c.Transport.Addr, "is required"})
	}

	if c.Transport.Kind == "redis" && c.Redis.Addr == "" {
		errors = append(errors, ValidationError{"redis.addr", c.Redis.Addr, "is required"})
	}
	if c.Redis.DB < 0 {
		errors = append(errors, ValidationError{"redis.db", c.Redis.DB, "must not be negative"})
	}

	if !logging.ValidLevel(c.Logging.Level) {
		errors = append(errors, ValidationError{"logging.level", c.Logging.Level, "must be one of DEBUG, INFO, WARN, ERROR"})
	}
	switch strings.ToLower(c.Logging.Format) {
	case logging.FormatText, logging.FormatJSON:
	default:
		errors = append(errors, ValidationError{"logging.format", c.Logging.Format, "must be text or json"})
	}

	return errors
}
