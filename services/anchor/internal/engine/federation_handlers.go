package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/redbco/redb-federation/services/anchor/internal/federation"
)

// statusClientClosedRequest is the non-standard status used when the caller
// went away before the result was ready.
const statusClientClosedRequest = 499

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	plan, err := s.engine.manager.Plan(req.Query, s.engine.ResolveAliases(req.Aliases), req.Options)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, PlanResponse{Plan: plan})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	if req.Options.Stream {
		s.stream(w, r, req)
		return
	}

	s.engine.TrackOperation()
	defer s.engine.UntrackOperation()

	result, md, err := s.engine.manager.Execute(r.Context(), req.Query, s.engine.ResolveAliases(req.Aliases), req.Options)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	rows := result.Rows
	if rows == nil {
		rows = [][]interface{}{}
	}
	s.writeJSONResponse(w, http.StatusOK, QueryResponse{
		Columns:  result.Columns,
		Rows:     rows,
		Metadata: md,
	})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}
	s.stream(w, r, req)
}

type streamOutcome struct {
	md  *federation.Metadata
	err error
}

// stream writes the result as newline-delimited JSON. A client disconnect
// closes the sink, which stops the query and its backend fetches.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, req QueryRequest) {
	s.engine.TrackOperation()
	defer s.engine.UntrackOperation()

	sink := federation.NewChannelSink(s.engine.manager.StreamBuffer())
	defer sink.Close()

	aliases := s.engine.ResolveAliases(req.Aliases)
	done := make(chan streamOutcome, 1)
	go func() {
		md, err := s.engine.manager.ExecuteStream(context.WithoutCancel(r.Context()), req.Query, aliases, req.Options, sink)
		done <- streamOutcome{md: md, err: err}
	}()

	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	started := false
	write := func(v interface{}) {
		if !started {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			started = true
		}
		if err := enc.Encode(v); err != nil {
			sink.Close()
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	clientGone := r.Context().Done()
	for {
		select {
		case ev := <-sink.Events():
			write(ev)
		case <-clientGone:
			sink.Close()
			clientGone = nil
		case out := <-done:
			for drained := false; !drained; {
				select {
				case ev := <-sink.Events():
					write(ev)
				default:
					drained = true
				}
			}
			s.finishStream(w, r, out, started, write)
			return
		}
	}
}

func (s *Server) finishStream(w http.ResponseWriter, r *http.Request, out streamOutcome, started bool, write func(interface{})) {
	if r.Context().Err() != nil {
		return
	}
	if out.err != nil {
		if !started {
			s.writeErrorResponse(w, out.err)
			return
		}
		atomic.AddInt64(&s.engine.metrics.errors, 1)
		body := errorBody(out.err)
		write(streamLine{Type: "error", Error: &body})
		return
	}
	write(streamLine{Type: "metadata", Metadata: out.md})
}

func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, &federation.ValidationError{Message: "invalid request body: " + err.Error()})
		return req, false
	}
	return req, true
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, err error) {
	atomic.AddInt64(&s.engine.metrics.errors, 1)
	body := errorBody(err)
	if s.engine.logger != nil && body.Kind != federation.KindValidation {
		s.engine.logger.Warnf("Federated request failed (%s): %v", body.Kind, err)
	}
	s.writeJSONResponse(w, statusForKind(body.Kind), ErrorResponse{Error: body})
}

func errorBody(err error) ErrorBody {
	body := ErrorBody{Kind: federation.KindOf(err), Message: err.Error()}
	var verr *federation.ValidationError
	if errors.As(err, &verr) {
		body.AvailableAliases = verr.AvailableAliases
	}
	return body
}

func statusForKind(kind federation.ErrorKind) int {
	switch kind {
	case federation.KindValidation:
		return http.StatusBadRequest
	case federation.KindExecution:
		return http.StatusBadGateway
	case federation.KindTimeout:
		return http.StatusGatewayTimeout
	case federation.KindCancelled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
