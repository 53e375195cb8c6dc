package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/utils"
)

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

type getUpdatesParams struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates,omitempty"`
}

// ReplenisherImpl asks the operator for proxies in the default chat and
// long-polls for the reply.
type ReplenisherImpl struct {
	client      *Client
	token       string
	chatID      string
	pollTimeout time.Duration
	logger      *zap.Logger
}

// NewReplenisher creates a replenisher on the primary bot.
func NewReplenisher(cfg Config, chatID string, logger *zap.Logger) *ReplenisherImpl {
	poll := 30 * time.Second
	return &ReplenisherImpl{
		// The HTTP timeout must outlast the long poll.
		client:      NewClient(cfg.APIURL, poll+15*time.Second),
		token:       cfg.BotToken,
		chatID:      chatID,
		pollTimeout: poll,
		logger:      logger,
	}
}

// RequestProxies sends the request message and returns the first plain text
// reply from the configured chat. It blocks until ctx is done.
func (r *ReplenisherImpl) RequestProxies(ctx context.Context) (string, error) {
	offset, err := r.skipPending(ctx)
	if err != nil {
		return "", err
	}

	err = r.client.Call(ctx, r.token, "sendMessage", sendMessageParams{
		ChatID:    r.chatID,
		Text:      FormatProxyRequest(),
		ParseMode: "HTML",
	}, nil)
	if err != nil {
		return "", err
	}
	r.logger.Info("proxy request sent, waiting for reply", zap.String("chat_id", r.chatID))

	for {
		var updates []update
		err := r.client.Call(ctx, r.token, "getUpdates", getUpdatesParams{
			Offset:         offset,
			Timeout:        int(r.pollTimeout / time.Second),
			AllowedUpdates: []string{"message"},
		}, &updates)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				if serr := utils.Sleep(ctx, time.Duration(apiErr.RetryAfter)*time.Second); serr != nil {
					return "", serr
				}
				continue
			}
			r.logger.Warn("polling for proxy reply failed", zap.Error(err))
			if serr := utils.Sleep(ctx, 5*time.Second); serr != nil {
				return "", serr
			}
			continue
		}

		for _, u := range updates {
			offset = u.UpdateID + 1
			if text, ok := r.replyText(u); ok {
				// Acknowledge the update so it is not delivered again.
				_ = r.client.Call(ctx, r.token, "getUpdates", getUpdatesParams{Offset: offset, Timeout: 0}, nil)
				r.logger.Info("proxy reply received", zap.Int("lines", strings.Count(text, "\n")+1))
				return text, nil
			}
		}
	}
}

func (r *ReplenisherImpl) replyText(u update) (string, bool) {
	if u.Message == nil || strconv.FormatInt(u.Message.Chat.ID, 10) != r.chatID {
		return "", false
	}
	text := strings.TrimSpace(u.Message.Text)
	if text == "" || strings.HasPrefix(text, "/") {
		return "", false
	}
	return text, true
}

// skipPending returns the offset past every update already queued, so old
// messages are never taken for the answer.
func (r *ReplenisherImpl) skipPending(ctx context.Context) (int64, error) {
	var pending []update
	if err := r.client.Call(ctx, r.token, "getUpdates", getUpdatesParams{Offset: -1, Timeout: 0}, &pending); err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	return pending[len(pending)-1].UpdateID + 1, nil
}
