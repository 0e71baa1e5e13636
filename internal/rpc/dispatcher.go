package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tordrt/schemadiag/internal/check"
	"github.com/tordrt/schemadiag/internal/recovery"
	"github.com/tordrt/schemadiag/internal/schema"
	"github.com/tordrt/schemadiag/internal/session"
	"github.com/tordrt/schemadiag/internal/timeline"
)

// Dispatcher routes requests to session commands
type Dispatcher struct {
	session *session.Session
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher driving s
func NewDispatcher(s *session.Session, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{session: s, logger: logger}
}

// Session returns the session the dispatcher drives
func (d *Dispatcher) Session() *session.Session {
	return d.session
}

// StatusResult acknowledges commands without a richer payload
type StatusResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SchemaResult is the result of introspectSchema
type SchemaResult struct {
	DatabaseName   string                        `json:"database_name"`
	Tables         []schema.Table                `json:"tables"`
	Constraints    []schema.Constraint           `json:"constraints"`
	FunctionalDeps []schema.FunctionalDependency `json:"functional_deps"`
}

// DiagnoseResult is the result of runDiagnostics
type DiagnoseResult struct {
	TotalConstraints int            `json:"total_constraints"`
	Satisfied        int            `json:"satisfied"`
	Violations       int            `json:"violations"`
	Degraded         int            `json:"degraded"`
	Results          []check.Result `json:"results"`
}

// RecoveryResult is the result of generateRecoveryPlan; Plan is nil when nothing is violated
type RecoveryResult struct {
	Plan   *recovery.Plan `json:"plan"`
	Status string         `json:"status"`
}

// ProofResult is the result of verifyProofs
type ProofResult struct {
	ProofStatus string `json:"proof_status"`
	Status      string `json:"status"`
}

type connectParams struct {
	URL string `json:"url"`
}

type keyParams struct {
	Key string `json:"key"`
}

// Dispatch runs one request. quit is true for the quit method, after which
// the session has been disconnected.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (resp Response, quit bool) {
	d.logger.Debug("rpc request", zap.String("method", req.Method))

	switch req.Method {
	case "connect":
		url, ok := connectURL(req.Params)
		if !ok {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params: connection string required"), false
		}
		st, err := d.session.Connect(ctx, url)
		if err != nil {
			return d.fail(req.ID, err), false
		}
		return resultResponse(req.ID, StatusResult{Status: "connected", Message: st.Status}), false

	case "introspectSchema", "schema":
		st, err := d.session.IntrospectSchema(ctx)
		if err != nil {
			return d.fail(req.ID, err), false
		}
		return resultResponse(req.ID, SchemaResult{
			DatabaseName:   st.Schema.DatabaseName,
			Tables:         st.Schema.Tables,
			Constraints:    st.Schema.Constraints,
			FunctionalDeps: st.FDs,
		}), false

	case "runDiagnostics", "diagnose":
		st, err := d.session.RunDiagnostics(ctx)
		if err != nil {
			return d.fail(req.ID, err), false
		}
		return resultResponse(req.ID, summarize(st.Results)), false

	case "generateRecoveryPlan", "recover":
		st, err := d.session.GenerateRecoveryPlan(ctx)
		if err != nil {
			return d.fail(req.ID, err), false
		}
		return resultResponse(req.ID, RecoveryResult{Plan: st.Plan, Status: st.Status}), false

	case "disconnect":
		d.session.Disconnect()
		return resultResponse(req.ID, StatusResult{Status: "disconnected"}), false

	case "state":
		return resultResponse(req.ID, d.session.State()), false

	case "timeline":
		st, err := d.session.LoadTimeline(ctx)
		if err != nil {
			return d.fail(req.ID, err), false
		}
		events := st.Timeline
		if events == nil {
			events = []timeline.Event{}
		}
		return resultResponse(req.ID, events), false

	case "verifyProofs":
		st, err := d.session.VerifyProofs(ctx)
		if err != nil {
			return d.fail(req.ID, err), false
		}
		return resultResponse(req.ID, ProofResult{ProofStatus: st.ProofStatus, Status: st.Status}), false

	case "key":
		var p keyParams
		if err := json.Unmarshal(req.Params, &p); err != nil || utf8.RuneCountInString(p.Key) != 1 {
			return errorResponse(req.ID, CodeInvalidParams, "Invalid params: key must be a single character"), false
		}
		r, _ := utf8.DecodeRuneInString(p.Key)
		st, err := d.session.HandleKey(ctx, r)
		if err != nil {
			return d.fail(req.ID, err), false
		}
		return resultResponse(req.ID, st), false

	case "ping":
		return resultResponse(req.ID, "pong"), false

	case "quit":
		d.session.Disconnect()
		return resultResponse(req.ID, StatusResult{Status: "bye"}), true

	default:
		return errorResponse(req.ID, CodeMethodNotFound, "Method not found: %s", req.Method), false
	}
}

// Handle decodes and dispatches one raw request
func (d *Dispatcher) Handle(ctx context.Context, data []byte) (Response, bool) {
	req, bad := decodeRequest(data)
	if bad != nil {
		return *bad, false
	}
	return d.Dispatch(ctx, req)
}

func (d *Dispatcher) fail(id json.RawMessage, err error) Response {
	d.logger.Debug("rpc command failed", zap.Error(err))
	if errors.Is(err, session.ErrNotConnected) {
		return errorResponse(id, CodeNotConnected, "Not connected")
	}
	return errorResponse(id, CodeOperationFailed, "%s", err.Error())
}

// connectURL accepts either a bare JSON string or {"url": "..."}
func connectURL(params json.RawMessage) (string, bool) {
	var url string
	if err := json.Unmarshal(params, &url); err != nil {
		var p connectParams
		if err := json.Unmarshal(params, &p); err != nil {
			return "", false
		}
		url = p.URL
	}
	url = strings.TrimSpace(url)
	return url, url != ""
}

func summarize(results []check.Result) DiagnoseResult {
	out := DiagnoseResult{TotalConstraints: len(results), Results: results}
	if out.Results == nil {
		out.Results = []check.Result{}
	}
	for _, r := range results {
		if r.Satisfied {
			out.Satisfied++
		} else {
			out.Violations++
		}
		if r.Degraded {
			out.Degraded++
		}
	}
	return out
}
