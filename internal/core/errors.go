package core

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports remote credentials that are malformed. It is
// raised before any network attempt.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ConnectivityError reports an unreachable remote or a failed request.
type ConnectivityError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *ConnectivityError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connectivity error: %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("connectivity error: %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// SchemaError reports required remote tables that do not exist.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing tables: %s; create them on the remote project before connecting",
		strings.Join(e.Missing, ", "))
}

// ParseError reports a malformed persisted or imported document.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s line %d: %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("parse error: %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsConnectivity(err error) bool {
	var target *ConnectivityError
	return errors.As(err, &target)
}

func IsSchema(err error) bool {
	var target *SchemaError
	return errors.As(err, &target)
}

func IsParse(err error) bool {
	var target *ParseError
	return errors.As(err, &target)
}
