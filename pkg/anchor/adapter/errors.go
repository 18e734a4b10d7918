package adapter

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/redbco/redb-federation/pkg/dbcapabilities"
)

var (
	ErrOperationNotSupported = errors.New("operation not supported by this database")
	ErrConnectionClosed      = errors.New("connection is closed")
	ErrConnectionFailed      = errors.New("connection failed")
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrAdapterNotFound       = errors.New("adapter not found")
	ErrSessionNotFound       = errors.New("session not found")

	// ErrInvalidQuery marks native query text a driver cannot parse, such as
	// a malformed find document or SCAN line.
	ErrInvalidQuery = errors.New("invalid query")
)

// DatabaseError is a driver failure annotated with the backend and the
// operation that failed. Details carries identifiers such as the schema or
// collection involved.
type DatabaseError struct {
	DatabaseType dbcapabilities.DatabaseType
	Operation    string
	Details      map[string]string
	Cause        error
}

func (e *DatabaseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.DatabaseType, e.Operation)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, e.Details[k])
		}
	}
	fmt.Fprintf(&b, ": %v", e.Cause)
	return b.String()
}

func (e *DatabaseError) Unwrap() error {
	return e.Cause
}

// NewDatabaseError creates a DatabaseError.
func NewDatabaseError(dbType dbcapabilities.DatabaseType, operation string, cause error) *DatabaseError {
	return &DatabaseError{
		DatabaseType: dbType,
		Operation:    operation,
		Cause:        cause,
	}
}

// With records one detail and returns e for chaining.
func (e *DatabaseError) With(key, value string) *DatabaseError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// UnsupportedOperationError reports a native operation the backend cannot
// serve through the federation read path.
type UnsupportedOperationError struct {
	DatabaseType dbcapabilities.DatabaseType
	Operation    string
	Reason       string
}

func (e *UnsupportedOperationError) Error() string {
	msg := fmt.Sprintf("%s does not support %s", e.DatabaseType, e.Operation)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnsupportedOperationError) Is(target error) bool {
	return target == ErrOperationNotSupported
}

// NewUnsupportedOperationError creates an UnsupportedOperationError.
func NewUnsupportedOperationError(dbType dbcapabilities.DatabaseType, operation, reason string) *UnsupportedOperationError {
	return &UnsupportedOperationError{DatabaseType: dbType, Operation: operation, Reason: reason}
}

// ConnectionError reports a failed dial or handshake.
type ConnectionError struct {
	DatabaseType dbcapabilities.DatabaseType
	Host         string
	Port         int
	Cause        error
}

// Address renders host:port, or just the host when no port is known.
func (e *ConnectionError) Address() string {
	if e.Port == 0 {
		return e.Host
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to %s at %s: %v", e.DatabaseType, e.Address(), e.Cause)
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrConnectionFailed
}

// NewConnectionError creates a ConnectionError.
func NewConnectionError(dbType dbcapabilities.DatabaseType, host string, port int, cause error) *ConnectionError {
	return &ConnectionError{DatabaseType: dbType, Host: host, Port: port, Cause: cause}
}

// ConfigurationError reports a ConnectionConfig field that cannot be used.
type ConfigurationError struct {
	DatabaseType dbcapabilities.DatabaseType
	Field        string
	Reason       string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid configuration for %s: %s", e.DatabaseType, e.Reason)
	}
	return fmt.Sprintf("invalid configuration for %s: field '%s': %s", e.DatabaseType, e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// NewConfigurationError creates a ConfigurationError.
func NewConfigurationError(dbType dbcapabilities.DatabaseType, field, reason string) *ConfigurationError {
	return &ConfigurationError{DatabaseType: dbType, Field: field, Reason: reason}
}

// WrapError attaches backend and operation to err. Errors that already carry
// them pass through unchanged.
func WrapError(dbType dbcapabilities.DatabaseType, operation string, err error) error {
	if err == nil {
		return nil
	}
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return err
	}
	return NewDatabaseError(dbType, operation, err)
}

// IsConnectionError reports whether err is a failed dial or handshake.
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionFailed)
}

// IsConfigurationError reports whether err is a rejected ConnectionConfig.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration)
}
