// Package session sequences introspection, constraint checking and recovery
// planning for one database connection.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tordrt/schemadiag/internal/check"
	"github.com/tordrt/schemadiag/internal/db"
	"github.com/tordrt/schemadiag/internal/fd"
	"github.com/tordrt/schemadiag/internal/proof"
	"github.com/tordrt/schemadiag/internal/recovery"
	"github.com/tordrt/schemadiag/internal/schema"
	"github.com/tordrt/schemadiag/internal/timeline"
)

var (
	// ErrConnection means the store could not be reached or authenticated to
	ErrConnection = errors.New("connection failed")
	// ErrIntrospection means the schema could not be enumerated; the previous model is kept
	ErrIntrospection = errors.New("schema introspection failed")
	// ErrNotConnected is returned by commands that need a live connection
	ErrNotConnected = errors.New("not connected")
	// ErrNoSchema is returned when diagnostics are requested before a schema is loaded
	ErrNoSchema = errors.New("no schema loaded")
	// ErrNoDiagnostics is returned when a plan is requested before diagnostics ran
	ErrNoDiagnostics = errors.New("diagnostics have not been run")
)

// Opener creates an unconnected executor for a connection string
type Opener func(url string) (db.Executor, error)

// Options configures a Session
type Options struct {
	Logger      *zap.Logger
	Open        Opener
	Extract     db.ExtractOptions
	Concurrency int
	SampleLimit int
	// NotNull adds one NOT NULL check per non-nullable column to each diagnostics run
	NotNull bool

	Verifier      *proof.Verifier
	ProofCorePath string
}

// Session is a diagnostic session over at most one connection.
// Commands are serialized; State may be read at any time.
type Session struct {
	opts   Options
	logger *zap.Logger

	cmdMu sync.Mutex
	exec  db.Executor

	stateMu sync.RWMutex
	state   State
}

// New creates a disconnected session on the Home view
func New(opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Open == nil {
		opts.Open = db.Open
	}
	id := uuid.NewString()
	return &Session{
		opts:   opts,
		logger: opts.Logger.With(zap.String("session", id)),
		state:  initialState(id),
	}
}

// State returns the current snapshot
func (s *Session) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// update publishes a modified copy of the current state and returns it
func (s *Session) update(fn func(st *State)) State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	next := s.state
	fn(&next)
	s.state = next
	return next
}

func (s *Session) setStatus(status string) State {
	return s.update(func(st *State) { st.Status = status })
}

// Connect opens a connection and loads its schema. An existing connection is closed first.
// A schema failure keeps the connection open so the schema can be refreshed.
func (s *Session) Connect(ctx context.Context, url string) (State, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.exec != nil {
		s.disconnectLocked()
	}

	s.update(func(st *State) {
		st.Running = true
		st.Status = "Connecting..."
	})

	exec, err := s.opts.Open(url)
	if err == nil {
		err = exec.Connect(ctx)
	}
	if err != nil {
		s.logger.Warn("connection failed", zap.Error(err))
		st := s.update(func(st *State) {
			st.Running = false
			st.Status = fmt.Sprintf("Connection failed: %v", err)
		})
		return st, fmt.Errorf("%w: %w", ErrConnection, err)
	}
	s.exec = exec
	s.logger.Info("connected", zap.String("dialect", string(exec.Dialect())), zap.String("database", exec.DatabaseName()))

	s.update(func(st *State) {
		st.Connected = true
		st.Dialect = string(exec.Dialect())
		st.Database = exec.DatabaseName()
	})

	model, err := s.extract(ctx)
	if err != nil {
		st := s.update(func(st *State) {
			st.Running = false
			st.Status = fmt.Sprintf("Schema error: %v", err)
		})
		return st, fmt.Errorf("%w: %w", ErrIntrospection, err)
	}
	fds := fd.InferModel(model)

	status := fmt.Sprintf("Connected: %d tables, %d constraints. Press 'd' then Enter to run diagnostics.",
		len(model.Tables), len(model.Constraints))

	events, err := timeline.Recent(ctx, exec)
	if err != nil {
		s.logger.Warn("timeline unavailable", zap.Error(err))
		status += fmt.Sprintf(" (timeline error: %v)", err)
	}

	return s.update(func(st *State) {
		st.Schema = model
		st.FDs = fds
		st.Constraints = uncheckedNodes(model.Constraints)
		st.Results = nil
		st.Plan = nil
		st.Timeline = events
		st.Selection = Selection{Kind: TablesHeader}
		st.View = SchemaView
		st.Running = false
		st.Status = status
	}), nil
}

// IntrospectSchema reloads the schema. On failure the previous model is kept.
// A new model discards the previous diagnostics and plan.
func (s *Session) IntrospectSchema(ctx context.Context) (State, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.introspectLocked(ctx)
}

func (s *Session) introspectLocked(ctx context.Context) (State, error) {
	if s.exec == nil {
		return s.setStatus("Connect to a database first"), ErrNotConnected
	}

	s.update(func(st *State) {
		st.Running = true
		st.Status = "Loading schema..."
	})

	model, err := s.extract(ctx)
	if err != nil {
		st := s.update(func(st *State) {
			st.Running = false
			st.Status = fmt.Sprintf("Schema error: %v", err)
		})
		return st, fmt.Errorf("%w: %w", ErrIntrospection, err)
	}
	fds := fd.InferModel(model)

	return s.update(func(st *State) {
		st.Schema = model
		st.FDs = fds
		st.Constraints = uncheckedNodes(model.Constraints)
		st.Results = nil
		st.Plan = nil
		st.Selection = clampSelection(st.Selection, len(model.Tables), len(model.Constraints))
		st.Running = false
		st.Status = fmt.Sprintf("Schema loaded: %d tables, %d constraints", len(model.Tables), len(model.Constraints))
	}), nil
}

func (s *Session) extract(ctx context.Context) (*schema.Model, error) {
	extractor, err := db.NewExtractor(s.exec, s.opts.Extract)
	if err != nil {
		return nil, err
	}
	model, err := extractor.ExtractSchema(ctx)
	if err != nil {
		s.logger.Warn("schema introspection failed", zap.Error(err))
		return nil, err
	}
	return model, nil
}

// RunDiagnostics checks every constraint of the loaded schema and switches to the Diagnose view.
// The previous plan is discarded.
func (s *Session) RunDiagnostics(ctx context.Context) (State, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	cur := s.State()
	if s.exec == nil {
		return s.setStatus("Connect to a database first"), ErrNotConnected
	}
	if cur.Schema == nil {
		return s.setStatus("No schema loaded"), ErrNoSchema
	}

	s.update(func(st *State) {
		st.Running = true
		st.Status = "Running constraint diagnostics..."
	})

	constraints := cur.Schema.Constraints
	if s.opts.NotNull {
		constraints = append(append([]schema.Constraint(nil), constraints...), cur.Schema.NotNullConstraints()...)
	}

	checker := check.New(s.exec,
		check.WithLogger(s.logger),
		check.WithConcurrency(s.opts.Concurrency),
		check.WithSampleLimit(s.opts.SampleLimit))
	results := checker.CheckAll(ctx, constraints)

	violations, degraded := 0, 0
	for _, r := range results {
		if !r.Satisfied {
			violations++
		}
		if r.Degraded {
			degraded++
		}
	}

	status := fmt.Sprintf("Diagnostics complete: %s checked, %s found",
		plural(len(results), "constraint"), plural(violations, "violation"))
	if degraded > 0 {
		status += fmt.Sprintf(", %d degraded to satisfied", degraded)
	}

	return s.update(func(st *State) {
		st.Results = results
		st.Constraints = resultNodes(results)
		st.Plan = nil
		st.View = DiagnoseView
		if st.Selection.Kind != ConstraintItem {
			st.Selection = Selection{Kind: ConstraintsHeader}
		}
		st.Selection = clampSelection(st.Selection, tableCount(*st), len(results))
		st.Running = false
		st.Status = status
	}), nil
}

// GenerateRecoveryPlan synthesizes a plan from the latest diagnostics and switches to the Recover view.
// With no violations the plan stays absent and the view is unchanged.
func (s *Session) GenerateRecoveryPlan(ctx context.Context) (State, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	cur := s.State()
	if cur.Results == nil {
		return s.setStatus("Run diagnostics first"), ErrNoDiagnostics
	}

	dialect := db.Dialect(cur.Dialect)
	plan, ok := recovery.Synthesize(cur.Results, dialect)
	if !ok {
		return s.update(func(st *State) {
			st.Plan = nil
			st.Status = "No violations to recover from"
		}), nil
	}

	s.logger.Info("recovery plan generated",
		zap.Int("steps", len(plan.Steps)),
		zap.Int("proofs", plan.Coverage.UniqueProofs),
		zap.Bool("all_verified", plan.AllVerified))

	return s.update(func(st *State) {
		st.Plan = plan
		st.View = RecoverView
		st.Status = fmt.Sprintf("Recovery plan: %d steps, %d proofs, properties: %s",
			len(plan.Steps), plan.Coverage.UniqueProofs, strings.Join(plan.Coverage.ProvenProperties, ", "))
	}), nil
}

// LoadTimeline refreshes the activity timeline
func (s *Session) LoadTimeline(ctx context.Context) (State, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()
	return s.loadTimelineLocked(ctx)
}

func (s *Session) loadTimelineLocked(ctx context.Context) (State, error) {
	if s.exec == nil {
		return s.setStatus("Connect to a database first"), ErrNotConnected
	}
	events, err := timeline.Recent(ctx, s.exec)
	if err != nil {
		s.logger.Warn("timeline unavailable", zap.Error(err))
		return s.setStatus(fmt.Sprintf("Timeline error: %v", err)), err
	}
	return s.update(func(st *State) {
		st.Timeline = events
		st.Status = fmt.Sprintf("Timeline loaded: %d events", len(events))
	}), nil
}

// Refresh reloads the timeline on the Timeline view and the schema everywhere else
func (s *Session) Refresh(ctx context.Context) (State, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.State().View == TimelineView {
		return s.loadTimelineLocked(ctx)
	}
	return s.introspectLocked(ctx)
}

// VerifyProofs rebuilds the proof library. A tool that cannot run marks the
// proofs unverified; it never fails the session or touches the plan.
func (s *Session) VerifyProofs(ctx context.Context) (State, error) {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	v := s.opts.Verifier
	if v == nil {
		v = proof.NewVerifier("", 0, s.logger)
	}

	s.setStatus("Verifying proofs...")
	ok, err := v.Verify(ctx, s.opts.ProofCorePath)

	var proofStatus, status string
	switch {
	case err != nil:
		proofStatus = "unverified"
		status = fmt.Sprintf("Proofs unverified: %v", err)
	case ok:
		proofStatus = "verified"
		status = "Proofs verified"
	default:
		proofStatus = "failed"
		status = "Proof build failed"
	}
	return s.update(func(st *State) {
		st.ProofStatus = proofStatus
		st.Status = status
	}), nil
}

// Disconnect closes the connection and clears everything derived from it.
// Disconnecting a disconnected session does nothing.
func (s *Session) Disconnect() State {
	s.cmdMu.Lock()
	defer s.cmdMu.Unlock()

	if s.exec == nil {
		return s.State()
	}
	return s.disconnectLocked()
}

func (s *Session) disconnectLocked() State {
	if err := s.exec.Close(); err != nil {
		s.logger.Warn("close failed", zap.Error(err))
	}
	s.exec = nil
	s.logger.Info("disconnected")

	return s.update(func(st *State) {
		next := initialState(st.ID)
		next.ProofStatus = st.ProofStatus
		next.Status = "Disconnected"
		*st = next
	})
}

// Close releases the connection, if any
func (s *Session) Close() error {
	s.Disconnect()
	return nil
}
