package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/stablepay/paybot/core/config"
	"github.com/stablepay/paybot/internal/flow"
	"github.com/stablepay/paybot/internal/flows"
	"github.com/stablepay/paybot/internal/payapi"
	"github.com/stablepay/paybot/internal/session"
)

// fakeAPI is a zero-behaviour payment backend; individual tests override
// the fields they exercise.
type fakeAPI struct {
	profile     payapi.Profile
	payees      []payapi.Payee
	deleted     []string
	deleteErr   error
	balancesErr error
}

func (f *fakeAPI) RequestLoginCode(context.Context, string) error { return nil }

func (f *fakeAPI) Authenticate(context.Context, string, string) (payapi.AuthResult, error) {
	return payapi.AuthResult{Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeAPI) RefreshToken(context.Context, string) (payapi.AuthResult, error) {
	return payapi.AuthResult{}, nil
}

func (f *fakeAPI) GetProfile(context.Context, string) (payapi.Profile, error) {
	return f.profile, nil
}

func (f *fakeAPI) GetKycStatus(context.Context, string) (payapi.KycStatus, error) {
	return payapi.KycStatus{Status: "approved"}, nil
}

func (f *fakeAPI) ListWallets(context.Context, string) ([]payapi.Wallet, error) {
	return nil, nil
}

func (f *fakeAPI) GetBalances(context.Context, string) ([]payapi.Balance, error) {
	if f.balancesErr != nil {
		return nil, f.balancesErr
	}
	return nil, nil
}

func (f *fakeAPI) SetDefaultWallet(context.Context, string, string) error { return nil }

func (f *fakeAPI) SendToEmail(context.Context, string, payapi.EmailTransferRequest) (payapi.TransferResult, error) {
	return payapi.TransferResult{TransferID: "t-1"}, nil
}

func (f *fakeAPI) SendToWalletAddress(context.Context, string, payapi.WalletTransferRequest) (payapi.TransferResult, error) {
	return payapi.TransferResult{}, nil
}

func (f *fakeAPI) WithdrawToBank(context.Context, string, payapi.WithdrawRequest) (payapi.TransferResult, error) {
	return payapi.TransferResult{}, nil
}

func (f *fakeAPI) SendBatch(context.Context, string, payapi.BatchRequest) (payapi.BatchResult, error) {
	return payapi.BatchResult{}, nil
}

func (f *fakeAPI) ListPayees(context.Context, string) ([]payapi.Payee, error) {
	return f.payees, nil
}

func (f *fakeAPI) CreatePayee(_ context.Context, _, email, nickname string) (payapi.Payee, error) {
	return payapi.Payee{ID: "p-1", Email: email, Nickname: nickname}, nil
}

func (f *fakeAPI) DeletePayee(_ context.Context, _, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeAPI) ListTransferHistory(context.Context, string, int) (payapi.HistoryPage, error) {
	return payapi.HistoryPage{Page: 1, TotalPages: 1}, nil
}

func (f *fakeAPI) InitiateDeposit(context.Context, string, string) (payapi.DepositIntent, error) {
	return payapi.DepositIntent{}, nil
}

// fakeTeleCtx implements the slice of tele.Context the handlers touch.
// Unimplemented methods panic via the embedded nil interface, which is the
// point: a test reaching them is using a surface the handler shouldn't need.
type fakeTeleCtx struct {
	tele.Context
	text string
	args []string
	chat *tele.Chat
	cb   *tele.Callback
	kv   map[string]any
	sent []string
}

func newFakeCtx(chatID int64) *fakeTeleCtx {
	return &fakeTeleCtx{
		chat: &tele.Chat{ID: chatID},
		kv:   make(map[string]any),
	}
}

func (f *fakeTeleCtx) Text() string             { return f.text }
func (f *fakeTeleCtx) Args() []string           { return f.args }
func (f *fakeTeleCtx) Chat() *tele.Chat         { return f.chat }
func (f *fakeTeleCtx) Sender() *tele.User       { return &tele.User{ID: f.chat.ID} }
func (f *fakeTeleCtx) Callback() *tele.Callback { return f.cb }
func (f *fakeTeleCtx) Update() tele.Update      { return tele.Update{ID: 1} }

func (f *fakeTeleCtx) Get(key string) any      { return f.kv[key] }
func (f *fakeTeleCtx) Set(key string, val any) { f.kv[key] = val }

func (f *fakeTeleCtx) Send(what any, _ ...any) error {
	if s, ok := what.(string); ok {
		f.sent = append(f.sent, s)
	}
	return nil
}

func (f *fakeTeleCtx) lastSent() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type appFixture struct {
	app      *App
	api      *fakeAPI
	sessions *session.MemoryStore
	states   *flow.StateStore
}

func newAppFixture(t *testing.T) *appFixture {
	t.Helper()
	api := &fakeAPI{}
	sessions := session.NewMemoryStore(session.Options{})
	states := flow.NewStateStore()

	set, err := flows.Build(flows.Deps{
		API:      api,
		Sessions: sessions,
		States:   states,
	})
	require.NoError(t, err)

	app, err := New(Options{
		Config:   &coreconfig.Config{},
		API:      api,
		Sessions: sessions,
		States:   states,
		Flows:    set,
	})
	require.NoError(t, err)

	return &appFixture{app: app, api: api, sessions: sessions, states: states}
}

func (fx *appFixture) login(t *testing.T, id int64) {
	t.Helper()
	require.NoError(t, fx.sessions.Put(context.Background(), session.Session{
		ConversationID: id,
		Token:          "tok",
		ExpiresAt:      time.Now().Add(time.Hour),
	}))
}

func TestCommandsRegistered(t *testing.T) {
	fx := newAppFixture(t)
	reg := fx.app.Registry()

	for _, name := range []string{
		"/login", "/logout", "/cancel", "/help", "/menu",
		"/profile", "/kyc", "/balance",
		"/deposit", "/setdefaultwallet",
		"/sendemail", "/sendwallet", "/withdrawbank", "/sendbatch",
		"/addpayee", "/listpayees", "/removepayee", "/history", "/stats",
	} {
		_, _, ok := reg.LookupCommand(name)
		assert.True(t, ok, "command %s must be registered", name)
	}

	_, stats, _ := reg.LookupCommand("/stats")
	assert.True(t, stats.AdminOnly)
	assert.True(t, stats.Hidden)
}

func TestTextReachesActiveFlow(t *testing.T) {
	fx := newAppFixture(t)
	fx.login(t, 5)

	c := newFakeCtx(5)
	require.NoError(t, fx.app.startFlow(fx.app.flows.EmailTransfer)(c))
	assert.Contains(t, c.lastSent(), "email")

	r := flowRouter{app: fx.app}
	assert.True(t, r.InProgress(5))

	c.text = "user@example.com"
	require.NoError(t, r.HandleText(c))
	assert.Contains(t, c.lastSent(), "user@example.com")

	st, ok := fx.states.Get(5)
	require.True(t, ok)
	assert.Equal(t, flow.KindEmailTransfer, st.Kind)
}

func TestFlowCommandWithoutSessionPromptsLogin(t *testing.T) {
	fx := newAppFixture(t)

	c := newFakeCtx(5)
	require.NoError(t, fx.app.startFlow(fx.app.flows.EmailTransfer)(c))
	assert.Equal(t, msgSignInFirst, c.lastSent())
	assert.False(t, flowRouter{app: fx.app}.InProgress(5))
}

func TestStaleCallbackGetsStaleMessage(t *testing.T) {
	fx := newAppFixture(t)
	fx.login(t, 5)

	handler, ok := fx.app.Registry().ResolveCallback("sendemail:confirm")
	require.True(t, ok, "flow namespace must resolve any action")

	c := newFakeCtx(5)
	c.cb = &tele.Callback{Unique: "sendemail", Data: "confirm"}
	require.NoError(t, handler(c))
	assert.Equal(t, msgStaleAction, c.lastSent())
}

func TestCallbackAdvancesFlow(t *testing.T) {
	fx := newAppFixture(t)
	fx.login(t, 5)

	c := newFakeCtx(5)
	require.NoError(t, fx.app.startFlow(fx.app.flows.BankWithdrawal)(c))

	handler, ok := fx.app.Registry().ResolveCallback("withdrawbank:amount")
	require.True(t, ok)

	c2 := newFakeCtx(5)
	c2.cb = &tele.Callback{Unique: "withdrawbank", Data: "amount:50"}
	require.NoError(t, handler(c2))
	assert.Contains(t, c2.lastSent(), "50")

	st, ok := fx.states.Get(5)
	require.True(t, ok)
	assert.Equal(t, flow.Step("confirm"), st.Step)
}

func TestLogoutTearsDownEverything(t *testing.T) {
	fx := newAppFixture(t)
	fx.login(t, 5)

	c := newFakeCtx(5)
	require.NoError(t, fx.app.startFlow(fx.app.flows.EmailTransfer)(c))

	require.NoError(t, fx.app.handleLogout(newFakeCtx(5)))

	_, hasSession := fx.sessions.Peek(context.Background(), 5)
	assert.False(t, hasSession)
	_, hasFlow := fx.states.ActiveKind(5)
	assert.False(t, hasFlow)
}

func TestCancelWithoutFlow(t *testing.T) {
	fx := newAppFixture(t)
	c := newFakeCtx(5)
	require.NoError(t, fx.app.handleCancel(c))
	assert.Equal(t, "Nothing to cancel", c.lastSent())
}

func TestRemovePayeeByNumber(t *testing.T) {
	fx := newAppFixture(t)
	fx.login(t, 5)
	fx.api.payees = []payapi.Payee{
		{ID: "p-a", Email: "a@example.com", Nickname: "Alice"},
		{ID: "p-b", Email: "b@example.com", Nickname: "Bob"},
	}

	handler := fx.app.withSession(fx.app.handleRemovePayee)

	c := newFakeCtx(5)
	c.args = []string{"2"}
	require.NoError(t, handler(c))
	assert.Equal(t, []string{"p-b"}, fx.api.deleted)
	assert.Contains(t, c.lastSent(), "Bob")

	c = newFakeCtx(5)
	c.args = []string{"9"}
	require.NoError(t, handler(c))
	assert.Contains(t, c.lastSent(), "no payee 9")
}

func TestDirectCommandAuthErrorDropsSession(t *testing.T) {
	fx := newAppFixture(t)
	fx.login(t, 5)
	fx.api.balancesErr = &payapi.APIError{Status: 401, Message: "token expired"}

	c := newFakeCtx(5)
	require.NoError(t, fx.app.withSession(fx.app.handleBalance)(c))
	assert.Contains(t, c.lastSent(), "/login")

	_, ok := fx.sessions.Peek(context.Background(), 5)
	assert.False(t, ok, "dead session must be dropped")
}
