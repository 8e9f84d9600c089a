package flows

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stablepay/paybot/internal/flow"
	"github.com/stablepay/paybot/internal/payapi"
)

func twoPayees() []payapi.Payee {
	return []payapi.Payee{
		{ID: "p-a", Email: "a@example.com", Nickname: "Alice"},
		{ID: "p-b", Email: "b@example.com", Nickname: "Bob"},
	}
}

// startBatch drives the flow up to the purpose step with the given
// selection and amounts.
func startBatch(t *testing.T, env *testEnv, selection string, amounts ...string) {
	t.Helper()
	ctx := context.Background()
	eng := env.set.BatchTransfer

	_, err := eng.Start(ctx, 1)
	require.NoError(t, err)
	_, err = eng.Advance(ctx, 1, flow.TextInput(selection))
	require.NoError(t, err)
	for _, a := range amounts {
		_, err = eng.Advance(ctx, 1, flow.TextInput(a))
		require.NoError(t, err)
	}
}

func TestBatchPartialFailureReportedAsData(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.login(t, 1)
	env.api.listPayees = func(string) ([]payapi.Payee, error) { return twoPayees(), nil }

	var got payapi.BatchRequest
	env.api.sendBatch = func(_ string, req payapi.BatchRequest) (payapi.BatchResult, error) {
		got = req
		return payapi.BatchResult{
			BatchID: "b-1",
			Items: []payapi.BatchItemResult{
				{PayeeID: "p-a", TransferID: "t-a", Success: true},
				{PayeeID: "p-b", Success: false, Error: "insufficient balance"},
			},
		}, nil
	}

	startBatch(t, env, "1,2", "10", "20")
	_, err := env.set.BatchTransfer.Advance(ctx, 1, flow.TextInput("salary"))
	require.NoError(t, err)

	reply, err := env.set.BatchTransfer.Advance(ctx, 1, button(flow.KindBatchTransfer, "confirm"))
	require.NoError(t, err)

	// Partial failure terminates normally and names the failed recipient.
	assert.Contains(t, reply.Text, "1 of 2 transfers succeeded")
	assert.Contains(t, reply.Text, "Bob")
	assert.Contains(t, reply.Text, "insufficient balance")
	assert.NotContains(t, reply.Text, "Alice:")

	require.Len(t, got.Items, 2)
	assert.Equal(t, "1000000000", got.Items[0].Amount)
	assert.Equal(t, "2000000000", got.Items[1].Amount)
	assert.Equal(t, "salary", got.PurposeCode)

	env.assertNoFlow(t, 1)
}

func TestBatchConfirmationShowsRecomputedTotal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.login(t, 1)
	env.api.listPayees = func(string) ([]payapi.Payee, error) { return twoPayees(), nil }

	startBatch(t, env, "1,2", "10.50", "20.25")
	reply, err := env.set.BatchTransfer.Advance(ctx, 1, flow.TextInput("services"))
	require.NoError(t, err)

	assert.Contains(t, reply.Text, "Alice")
	assert.Contains(t, reply.Text, "Bob")
	assert.Contains(t, reply.Text, "30.75", "total is the exact decimal sum")
}

func TestBatchDuplicateSelectionWarnsAndKeepsBothLines(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.login(t, 1)
	env.api.listPayees = func(string) ([]payapi.Payee, error) { return twoPayees(), nil }

	eng := env.set.BatchTransfer
	_, err := eng.Start(ctx, 1)
	require.NoError(t, err)

	reply, err := eng.Advance(ctx, 1, flow.TextInput("1,1"))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "more than once")
	assert.Contains(t, reply.Text, "1 of 2")

	st, ok := env.states.Get(1)
	require.True(t, ok)
	assert.Len(t, st.Payload.(batchPayload).Recipients, 2)
}

func TestBatchRejectsOutOfRangeSelection(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.login(t, 1)
	env.api.listPayees = func(string) ([]payapi.Payee, error) { return twoPayees(), nil }

	eng := env.set.BatchTransfer
	_, err := eng.Start(ctx, 1)
	require.NoError(t, err)

	reply, err := eng.Advance(ctx, 1, flow.TextInput("1,5"))
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "out of range")

	st, ok := env.states.Get(1)
	require.True(t, ok)
	assert.Equal(t, batchStepSelect, st.Step)
}

func TestBatchWithoutPayeesPointsAtAddPayee(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.login(t, 1)

	reply, err := env.set.BatchTransfer.Start(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "/addpayee")
	env.assertNoFlow(t, 1)
}

func TestParseIndices(t *testing.T) {
	got, err := parseIndices("1, 3,2", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 2}, got)

	_, err = parseIndices("0", 3)
	var invalid *flow.InvalidInputError
	require.ErrorAs(t, err, &invalid)

	_, err = parseIndices("abc", 3)
	require.ErrorAs(t, err, &invalid)

	_, err = parseIndices("", 3)
	require.ErrorAs(t, err, &invalid)
}
