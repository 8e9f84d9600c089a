package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablepay/paybot/core/telegram/callbacks"
	"github.com/stablepay/paybot/internal/session"
)

const (
	testKind  Kind = "testflow"
	stepFirst Step = "first"
	stepLast  Step = "last"
)

type testPayload struct {
	First string
	Last  string
}

type testFixture struct {
	sessions *session.MemoryStore
	states   *StateStore
	engine   *Engine
	executed []testPayload
	execErr  error
}

func newFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		sessions: session.NewMemoryStore(session.Options{}),
		states:   NewStateStore(),
	}

	eng, err := NewEngine(Config{
		Kind:     testKind,
		Sessions: f.sessions,
		States:   f.states,
		Start: func(ctx context.Context, fc *Context) (Transition, error) {
			return Transition{
				Next:    stepFirst,
				Payload: testPayload{},
				Reply:   TextReply("enter first"),
			}, nil
		},
		Steps: map[Step]Handler{
			stepFirst: func(ctx context.Context, fc *Context, in Input) (Transition, error) {
				if in.Text == "" && !in.IsButton() {
					return Transition{}, Invalidf("first value required")
				}
				p := fc.Payload.(testPayload)
				if in.IsButton() {
					p.First = "preset:" + in.Action()
				} else {
					p.First = in.Text
				}
				return Transition{Next: stepLast, Payload: p, Reply: TextReply("enter last")}, nil
			},
			stepLast: func(ctx context.Context, fc *Context, in Input) (Transition, error) {
				p := fc.Payload.(testPayload)
				if in.Text == "" {
					return Transition{}, Invalidf("last value required")
				}
				p.Last = in.Text
				if f.execErr != nil {
					return Transition{}, f.execErr
				}
				f.executed = append(f.executed, p)
				return Transition{Done: true, Reply: TextReply("done")}, nil
			},
		},
	})
	require.NoError(t, err)
	f.engine = eng
	return f
}

func (f *testFixture) login(t *testing.T, id int64) {
	t.Helper()
	require.NoError(t, f.sessions.Put(context.Background(), session.Session{
		ConversationID: id,
		Token:          "tok",
		ExpiresAt:      time.Now().Add(time.Hour),
	}))
}

func TestStartRequiresSession(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Start(context.Background(), 1)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestFullRunCollectsPayloadInOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 1)

	reply, err := f.engine.Start(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "enter first", reply.Text)

	reply, err = f.engine.Advance(ctx, 1, TextInput("alpha"))
	require.NoError(t, err)
	assert.Equal(t, "enter last", reply.Text)

	reply, err = f.engine.Advance(ctx, 1, TextInput("omega"))
	require.NoError(t, err)
	assert.Equal(t, "done", reply.Text)

	require.Len(t, f.executed, 1)
	assert.Equal(t, testPayload{First: "alpha", Last: "omega"}, f.executed[0])

	_, active := f.states.ActiveKind(1)
	assert.False(t, active, "terminal step must clear the slot")
}

func TestInvalidInputNeverAdvances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 1)

	_, err := f.engine.Start(ctx, 1)
	require.NoError(t, err)

	reply, err := f.engine.Advance(ctx, 1, TextInput(""))
	require.NoError(t, err, "validation errors never escape the engine")
	assert.Equal(t, "first value required", reply.Text)

	st, ok := f.states.Get(1)
	require.True(t, ok)
	assert.Equal(t, stepFirst, st.Step, "step unchanged after invalid input")

	// Same step accepts valid input afterwards.
	reply, err = f.engine.Advance(ctx, 1, TextInput("alpha"))
	require.NoError(t, err)
	assert.Equal(t, "enter last", reply.Text)
}

func TestButtonTakesPrecedenceOverText(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 1)

	_, err := f.engine.Start(ctx, 1)
	require.NoError(t, err)

	in := ButtonInput(callbacks.Data{Namespace: string(testKind), Action: "opt1"})
	in.Text = "typed at the same time"
	_, err = f.engine.Advance(ctx, 1, in)
	require.NoError(t, err)

	_, err = f.engine.Advance(ctx, 1, TextInput("omega"))
	require.NoError(t, err)
	require.Len(t, f.executed, 1)
	assert.Equal(t, "preset:opt1", f.executed[0].First)
}

func TestAdvanceWithoutFlowIsStale(t *testing.T) {
	f := newFixture(t)
	f.login(t, 1)
	_, err := f.engine.Advance(context.Background(), 1, TextInput("x"))
	assert.ErrorIs(t, err, ErrStaleOperation)
}

func TestAdvanceAgainstOtherKindIsStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 1)

	// A different operation owns the slot.
	f.states.Set(1, State{Kind: "otherflow", Step: "whatever"})

	_, err := f.engine.Advance(ctx, 1, TextInput("x"))
	assert.ErrorIs(t, err, ErrStaleOperation)

	st, ok := f.states.Get(1)
	require.True(t, ok)
	assert.Equal(t, Kind("otherflow"), st.Kind, "live flow untouched by stale input")
}

func TestSessionLossMidFlowClearsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 1)

	_, err := f.engine.Start(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, f.sessions.Delete(ctx, 1))

	_, err = f.engine.Advance(ctx, 1, TextInput("alpha"))
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, active := f.states.ActiveKind(1)
	assert.False(t, active, "missing session clears the flow")
}

func TestCollaboratorFailureClearsFlowAndReportsMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 1)
	f.execErr = &CollaboratorError{Message: "Minimum transfer is 1.00"}

	_, err := f.engine.Start(ctx, 1)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, 1, TextInput("alpha"))
	require.NoError(t, err)

	reply, err := f.engine.Advance(ctx, 1, TextInput("omega"))
	require.NoError(t, err, "collaborator errors terminate cleanly, not via error return")
	assert.Equal(t, "Minimum transfer is 1.00", reply.Text)

	_, active := f.states.ActiveKind(1)
	assert.False(t, active)
	assert.Empty(t, f.executed, "no retry after collaborator failure")
}

func TestCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 1)

	// Cancel with no active flow is a no-op.
	f.engine.Cancel(ctx, 1)

	_, err := f.engine.Start(ctx, 1)
	require.NoError(t, err)

	f.engine.Cancel(ctx, 1)
	f.engine.Cancel(ctx, 1)

	_, active := f.states.ActiveKind(1)
	assert.False(t, active)
}

func TestStartReplacesPreviousFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 1)

	_, err := f.engine.Start(ctx, 1)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, 1, TextInput("alpha"))
	require.NoError(t, err)

	// Restart goes back to the first step with a fresh payload.
	_, err = f.engine.Start(ctx, 1)
	require.NoError(t, err)

	st, ok := f.states.Get(1)
	require.True(t, ok)
	assert.Equal(t, stepFirst, st.Step)
	assert.Equal(t, testPayload{}, st.Payload.(testPayload))
}

func TestUnexpectedErrorClearsFlowAndEscapes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.login(t, 1)
	f.execErr = errors.New("boom")

	_, err := f.engine.Start(ctx, 1)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, 1, TextInput("alpha"))
	require.NoError(t, err)

	_, err = f.engine.Advance(ctx, 1, TextInput("omega"))
	require.Error(t, err)

	_, active := f.states.ActiveKind(1)
	assert.False(t, active)
}
