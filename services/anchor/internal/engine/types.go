package engine

import (
	"time"

	"github.com/redbco/redb-federation/pkg/health"
	"github.com/redbco/redb-federation/services/anchor/internal/database"
	"github.com/redbco/redb-federation/services/anchor/internal/federation"
)

// QueryRequest is the body of /federation/query, /federation/stream and
// /federation/plan. Without aliases every open session is addressable by its id.
type QueryRequest struct {
	Query   string                `json:"query"`
	Aliases federation.AliasTable `json:"aliases,omitempty"`
	Options federation.Options    `json:"options"`
}

// QueryResponse is the batch result of a federated query.
type QueryResponse struct {
	Columns  []string             `json:"columns"`
	Rows     [][]interface{}      `json:"rows"`
	Metadata *federation.Metadata `json:"metadata"`
}

// PlanResponse is the dry-run result of /federation/plan.
type PlanResponse struct {
	Plan *federation.Plan `json:"plan"`
}

// SessionsResponse lists the open sessions.
type SessionsResponse struct {
	Sessions []database.SessionInfo `json:"sessions"`
}

// HealthResponse reports service and per-session health.
type HealthResponse struct {
	Status      health.Status    `json:"status"`
	LastHealthy time.Time        `json:"last_healthy"`
	Checks      []*health.Check  `json:"checks"`
	Metrics     map[string]int64 `json:"metrics"`
}

// ErrorBody is the error object returned by every endpoint.
type ErrorBody struct {
	Kind             federation.ErrorKind `json:"kind"`
	Message          string               `json:"message"`
	AvailableAliases []string             `json:"available_aliases,omitempty"`
}

// ErrorResponse wraps ErrorBody.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// streamLine is one NDJSON line that is not a federation.Event: the trailing
// metadata or a failure after the stream started.
type streamLine struct {
	Type     string               `json:"type"`
	Metadata *federation.Metadata `json:"metadata,omitempty"`
	Error    *ErrorBody           `json:"error,omitempty"`
}
