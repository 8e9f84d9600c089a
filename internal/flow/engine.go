package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"log/slog"

	"github.com/stablepay/paybot/core/logger"
	"github.com/stablepay/paybot/internal/session"
)

// Context carries the conversation identity, its session, and the current
// payload into step handlers. Handlers treat Payload as immutable and return
// a replacement through the Transition.
type Context struct {
	ConversationID int64
	Session        session.Session
	Payload        any
}

// Transition is a step handler's verdict: move to Next with Payload, or
// finish the flow (Done). Reply is sent to the user either way. A nil
// Payload keeps the previous one.
type Transition struct {
	Next    Step
	Payload any
	Done    bool
	Reply   *Reply
}

// Handler processes one input at one step.
type Handler func(ctx context.Context, fc *Context, in Input) (Transition, error)

// StartFunc installs the flow's first step. It may call collaborators (e.g.
// fetch the payee list) before the first prompt.
type StartFunc func(ctx context.Context, fc *Context) (Transition, error)

// Config declares one operation's step table.
type Config struct {
	Kind     Kind
	Start    StartFunc
	Steps    map[Step]Handler
	Sessions session.Store
	States   *StateStore
	// AllowUnauthenticated skips the session requirement (login flow only).
	AllowUnauthenticated bool
}

// Engine is a generic driver for one operation kind. All state access is
// serialized per conversation through the StateStore lock; the only blocking
// work inside that lock is a terminal step's collaborator call.
type Engine struct {
	cfg Config
}

// NewEngine validates the step table and builds the engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Kind == KindNone {
		return nil, fmt.Errorf("flow: engine kind is required")
	}
	if cfg.Start == nil {
		return nil, fmt.Errorf("flow %s: start function is required", cfg.Kind)
	}
	if len(cfg.Steps) == 0 {
		return nil, fmt.Errorf("flow %s: step table is empty", cfg.Kind)
	}
	if cfg.Sessions == nil || cfg.States == nil {
		return nil, fmt.Errorf("flow %s: session and state stores are required", cfg.Kind)
	}
	return &Engine{cfg: cfg}, nil
}

// Kind returns the operation this engine drives.
func (e *Engine) Kind() Kind { return e.cfg.Kind }

// Start begins the flow, replacing any flow previously active for the
// conversation. It fails with ErrUnauthenticated when no session exists.
func (e *Engine) Start(ctx context.Context, conversationID int64) (*Reply, error) {
	unlock := e.cfg.States.Lock(conversationID)
	defer unlock()

	fc, err := e.authContext(ctx, conversationID)
	if err != nil {
		e.cfg.States.Clear(conversationID)
		return nil, err
	}

	tr, err := e.cfg.Start(ctx, fc)
	if err != nil {
		return e.translate(ctx, conversationID, err)
	}
	if !tr.Done && tr.Next == "" {
		return nil, fmt.Errorf("flow %s: start transition has no step", e.cfg.Kind)
	}

	if tr.Done {
		e.cfg.States.Clear(conversationID)
	} else {
		e.cfg.States.Set(conversationID, State{
			Kind:      e.cfg.Kind,
			Step:      tr.Next,
			Payload:   tr.Payload,
			StartedAt: time.Now(),
		})
	}

	logger.Debug(ctx, "flow", "start",
		slog.String("operation", string(e.cfg.Kind)),
		slog.String("step", string(tr.Next)),
		slog.Int64("chat_id", conversationID),
	)
	return tr.Reply, nil
}

// Advance feeds one input to the current step. Authentication is re-checked
// on every call since a session can expire mid-flow; a missing session
// clears the flow as a side effect of reporting ErrUnauthenticated.
func (e *Engine) Advance(ctx context.Context, conversationID int64, in Input) (*Reply, error) {
	unlock := e.cfg.States.Lock(conversationID)
	defer unlock()

	st, ok := e.cfg.States.Get(conversationID)
	if !ok || st.Kind != e.cfg.Kind {
		return nil, ErrStaleOperation
	}

	fc, err := e.authContext(ctx, conversationID)
	if err != nil {
		e.cfg.States.Clear(conversationID)
		return nil, err
	}
	fc.Payload = st.Payload

	handler, ok := e.cfg.Steps[st.Step]
	if !ok {
		e.cfg.States.Clear(conversationID)
		return nil, fmt.Errorf("flow %s: no handler for step %q", e.cfg.Kind, st.Step)
	}

	tr, err := handler(ctx, fc, in)
	if err != nil {
		return e.translate(ctx, conversationID, err)
	}

	if tr.Done {
		e.cfg.States.Clear(conversationID)
	} else {
		next := tr.Next
		if next == "" {
			next = st.Step
		}
		payload := tr.Payload
		if payload == nil {
			payload = st.Payload
		}
		e.cfg.States.Set(conversationID, State{
			Kind:      e.cfg.Kind,
			Step:      next,
			Payload:   payload,
			StartedAt: st.StartedAt,
		})
	}

	_ = e.cfg.Sessions.Touch(ctx, conversationID)

	logger.Debug(ctx, "flow", "advance",
		slog.String("operation", string(e.cfg.Kind)),
		slog.String("step", string(st.Step)),
		slog.String("next", string(tr.Next)),
		slog.Bool("done", tr.Done),
		slog.Int64("chat_id", conversationID),
	)
	return tr.Reply, nil
}

// Cancel clears the flow unconditionally. Idempotent; clearing a
// conversation with no active flow is a no-op.
func (e *Engine) Cancel(ctx context.Context, conversationID int64) {
	unlock := e.cfg.States.Lock(conversationID)
	defer unlock()
	e.cfg.States.Clear(conversationID)
	logger.Debug(ctx, "flow", "cancel",
		slog.String("operation", string(e.cfg.Kind)),
		slog.Int64("chat_id", conversationID),
	)
}

func (e *Engine) authContext(ctx context.Context, conversationID int64) (*Context, error) {
	fc := &Context{ConversationID: conversationID}
	if e.cfg.AllowUnauthenticated {
		if s, ok := e.cfg.Sessions.Get(ctx, conversationID); ok {
			fc.Session = s
		}
		return fc, nil
	}
	s, ok := e.cfg.Sessions.Get(ctx, conversationID)
	if !ok {
		return nil, ErrUnauthenticated
	}
	fc.Session = s
	return fc, nil
}

// translate maps handler errors to the engine's failure semantics: invalid
// input re-prompts with state untouched, collaborator failures terminate the
// flow with the backend's message, everything else clears and escapes.
func (e *Engine) translate(ctx context.Context, conversationID int64, err error) (*Reply, error) {
	var invalid *InvalidInputError
	if errors.As(err, &invalid) {
		return TextReply(invalid.Reason), nil
	}

	var collab *CollaboratorError
	if errors.As(err, &collab) {
		e.cfg.States.Clear(conversationID)
		logger.Warn(ctx, "flow", "collaborator.fail",
			slog.String("operation", string(e.cfg.Kind)),
			slog.Int64("chat_id", conversationID),
			slog.String("err", collab.Error()),
		)
		return TextReply(collab.UserMessage()), nil
	}

	if errors.Is(err, ErrUnauthenticated) {
		e.cfg.States.Clear(conversationID)
		return nil, ErrUnauthenticated
	}

	e.cfg.States.Clear(conversationID)
	return nil, err
}
