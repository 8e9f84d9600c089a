package middleware

import (
	"log/slog"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/stablepay/paybot/core/logger"
	"github.com/stablepay/paybot/core/telegram/callbacks"
	tghelpers "github.com/stablepay/paybot/core/telegram/helpers"
)

// Receipt lines are deduplicated by update id because the middleware may run
// on more than one routing branch for the same update.
var (
	recentMu     sync.Mutex
	recentUpdate = make(map[int]time.Time)
	keepFor      = 10 * time.Second
)

func alreadyLogged(updateID int) bool {
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	for id, ts := range recentUpdate {
		if now.Sub(ts) > keepFor {
			delete(recentUpdate, id)
		}
	}
	if _, ok := recentUpdate[updateID]; ok {
		return true
	}
	recentUpdate[updateID] = now
	return false
}

func receiptAttrs(c tele.Context, rid string, chatID, userID int64) []slog.Attr {
	upd := c.Update()
	attrs := []slog.Attr{
		slog.String("status", "ok"),
		slog.String("rid", rid),
		slog.Int("update_id", upd.ID),
	}
	if chatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", chatID))
		attrs = append(attrs, slog.String("chat_type", string(c.Chat().Type)))
	}
	if userID != 0 {
		attrs = append(attrs, slog.Int64("user_id", userID))
		if u := c.Sender(); u != nil && u.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
		}
	}

	switch {
	case upd.Callback != nil:
		data := callbacks.Parse(upd.Callback)
		if data.Namespace != "" {
			attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(data.Key(), 128)))
		}
	case upd.Message != nil:
		if t := c.Text(); t != "" {
			attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
		}
	}
	return attrs
}

// LoggerMiddleware assigns the correlation id, stores the request context on
// the tele.Context, and logs one sampled receipt line per update.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()

		chatID, userID := int64(0), int64(0)
		if chat := c.Chat(); chat != nil {
			chatID = chat.ID
		}
		if user := c.Sender(); user != nil {
			userID = user.ID
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)
		c.Set("update_start", time.Now())

		ctx := logger.WithRID(logger.Background(), rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		ctx = logger.WithLogger(ctx, logger.Component("tg"))
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && !alreadyLogged(upd.ID) {
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received",
				receiptAttrs(c, rid, chatID, userID)...)
		}

		return next(c)
	}
}
