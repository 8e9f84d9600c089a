package flows

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"log/slog"

	"github.com/stablepay/paybot/core/logger"
	"github.com/stablepay/paybot/internal/flow"
	"github.com/stablepay/paybot/internal/session"
)

const (
	loginStepEmail flow.Step = "email"
	loginStepCode  flow.Step = "code"
)

var otpRe = regexp.MustCompile(`^[0-9]{4,8}$`)

type loginPayload struct {
	Email string
}

// newLoginFlow authenticates the conversation: email, then the one-time
// code the backend mails out. Success installs the session and opens the
// deposit notification subscription.
func newLoginFlow(deps Deps) (*flow.Engine, error) {
	return flow.NewEngine(flow.Config{
		Kind:                 flow.KindLogin,
		Sessions:             deps.Sessions,
		States:               deps.States,
		AllowUnauthenticated: true,

		Start: func(ctx context.Context, fc *flow.Context) (flow.Transition, error) {
			return flow.Transition{
				Next:    loginStepEmail,
				Payload: loginPayload{},
				Reply: &flow.Reply{
					Text:   "Enter your account email to sign in",
					Markup: cancelMarkup(flow.KindLogin),
				},
			}, nil
		},

		Steps: map[flow.Step]flow.Handler{
			loginStepEmail: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if in.IsButton() && in.Callback.IsCancel() {
					return cancelled()
				}
				email := strings.ToLower(strings.TrimSpace(in.Text))
				if !flow.ValidEmail(email) {
					return flow.Transition{}, flow.Invalidf("That doesn't look like an email address, try again")
				}
				if err := deps.API.RequestLoginCode(ctx, email); err != nil {
					return flow.Transition{}, collaboratorErr(err)
				}
				return flow.Transition{
					Next:    loginStepCode,
					Payload: loginPayload{Email: email},
					Reply: &flow.Reply{
						Text:   fmt.Sprintf("We sent a one-time code to %s. Enter it here", email),
						Markup: cancelMarkup(flow.KindLogin),
					},
				}, nil
			},

			loginStepCode: func(ctx context.Context, fc *flow.Context, in flow.Input) (flow.Transition, error) {
				if in.IsButton() && in.Callback.IsCancel() {
					return cancelled()
				}
				code := strings.TrimSpace(in.Text)
				if !otpRe.MatchString(code) {
					return flow.Transition{}, flow.Invalidf("The code is 4 to 8 digits, try again")
				}
				p := fc.Payload.(loginPayload)

				auth, err := deps.API.Authenticate(ctx, p.Email, code)
				if err != nil {
					return flow.Transition{}, collaboratorErr(err)
				}

				if err := deps.Sessions.Put(ctx, session.Session{
					ConversationID: fc.ConversationID,
					Token:          auth.Token,
					ExpiresAt:      auth.ExpiresAt,
					TenantID:       auth.TenantID,
				}); err != nil {
					return flow.Transition{}, &flow.CollaboratorError{Message: "Could not store your session, please try again", Err: err}
				}

				if deps.Notifier != nil {
					if err := deps.Notifier.Subscribe(ctx, fc.ConversationID, auth.Token, auth.TenantID); err != nil {
						// Login still succeeds; deposit pushes just stay off.
						logger.Warn(ctx, "notify", "subscribe.fail",
							slog.Int64("chat_id", fc.ConversationID),
							slog.String("err", err.Error()),
						)
					}
				}

				return flow.Transition{
					Done:  true,
					Reply: flow.TextReply("You're signed in. Use /menu to see what you can do"),
				}, nil
			},
		},
	})
}
