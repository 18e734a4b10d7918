package database

import (
	"fmt"

	"github.com/redbco/redb-federation/pkg/logger"
)

// DatabaseLogContext provides structured context for database logging
type DatabaseLogContext struct {
	DatabaseType string
	SessionID    string
	QueryID      string
	Host         string
	Port         int
	Operation    string
	Namespace    string
}

// DatabaseLogger provides unified logging for session and query operations
type DatabaseLogger struct {
	logger *logger.Logger
}

// NewDatabaseLogger creates a new database logger
func NewDatabaseLogger(logger *logger.Logger) *DatabaseLogger {
	return &DatabaseLogger{
		logger: logger,
	}
}

// LogConnectionAttempt logs when a connection attempt is starting
func (dl *DatabaseLogger) LogConnectionAttempt(ctx DatabaseLogContext) {
	if dl.logger == nil {
		return
	}
	dl.logger.Info("%s", dl.formatConnectionMessage("Attempting connection", ctx))
}

// LogConnectionSuccess logs successful database connections
func (dl *DatabaseLogger) LogConnectionSuccess(ctx DatabaseLogContext) {
	if dl.logger == nil {
		return
	}
	dl.logger.Info("%s", dl.formatConnectionMessage("Connection established", ctx))
}

// LogConnectionFailure logs connection failures. Source databases are never
// fatal to the service, so these are warnings.
func (dl *DatabaseLogger) LogConnectionFailure(ctx DatabaseLogContext, err error) {
	if dl.logger == nil {
		return
	}
	dl.logger.Warn("%s: %v", dl.formatConnectionMessage("Connection failed", ctx), err)
}

// LogDisconnection logs a closed session
func (dl *DatabaseLogger) LogDisconnection(ctx DatabaseLogContext, err error) {
	if dl.logger == nil {
		return
	}
	if err != nil {
		dl.logger.Warn("%s: %v", dl.formatConnectionMessage("Disconnection failed", ctx), err)
		return
	}
	dl.logger.Info("%s", dl.formatConnectionMessage("Disconnection completed", ctx))
}

// LogOperationAttempt logs when a query is dispatched to a session
func (dl *DatabaseLogger) LogOperationAttempt(ctx DatabaseLogContext) {
	if dl.logger == nil {
		return
	}
	dl.logger.Debug("%s", dl.formatOperationMessage("Operation started", ctx))
}

// LogOperationSuccess logs successful database operations
func (dl *DatabaseLogger) LogOperationSuccess(ctx DatabaseLogContext, rows int) {
	if dl.logger == nil {
		return
	}
	dl.logger.Debug("%s rows=%d", dl.formatOperationMessage("Operation completed", ctx), rows)
}

// LogOperationFailure logs operation failures
func (dl *DatabaseLogger) LogOperationFailure(ctx DatabaseLogContext, err error) {
	if dl.logger == nil {
		return
	}
	dl.logger.Warn("%s: %v", dl.formatOperationMessage("Operation failed", ctx), err)
}

// LogCancellation logs a query cancelled before completion
func (dl *DatabaseLogger) LogCancellation(ctx DatabaseLogContext) {
	if dl.logger == nil {
		return
	}
	dl.logger.Info("%s", dl.formatOperationMessage("Operation cancelled", ctx))
}

func (dl *DatabaseLogger) formatConnectionMessage(action string, ctx DatabaseLogContext) string {
	base := fmt.Sprintf("[session:%s] %s", ctx.DatabaseType, action)

	if ctx.SessionID != "" {
		base = fmt.Sprintf("%s session_id=%s", base, ctx.SessionID)
	}
	if ctx.Host != "" {
		if ctx.Port > 0 {
			base = fmt.Sprintf("%s host=%s:%d", base, ctx.Host, ctx.Port)
		} else {
			base = fmt.Sprintf("%s host=%s", base, ctx.Host)
		}
	}

	return base
}

func (dl *DatabaseLogger) formatOperationMessage(action string, ctx DatabaseLogContext) string {
	base := fmt.Sprintf("[session:%s] %s", ctx.DatabaseType, action)

	if ctx.Operation != "" {
		base = fmt.Sprintf("%s operation=%s", base, ctx.Operation)
	}
	if ctx.SessionID != "" {
		base = fmt.Sprintf("%s session_id=%s", base, ctx.SessionID)
	}
	if ctx.QueryID != "" {
		base = fmt.Sprintf("%s query_id=%s", base, ctx.QueryID)
	}
	if ctx.Namespace != "" {
		base = fmt.Sprintf("%s namespace=%s", base, ctx.Namespace)
	}

	return base
}
