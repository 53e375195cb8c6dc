package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aymanashrafmounir/Ais-Scrapy/internal/entity"
	"github.com/aymanashrafmounir/Ais-Scrapy/pkg/metrics"
)

// Config selects bots and chats.
type Config struct {
	BotToken     string
	BackupTokens []string
	// ChatIDs maps a website type to a chat; "default" is the fallback.
	ChatIDs  map[string]string
	APIURL   string
	Interval time.Duration
	Timeout  time.Duration
}

// NotifierImpl provides a concrete implementation for the Notifier interface using the Telegram Bot API.
// Every bot token is tried in order until one delivers.
type NotifierImpl struct {
	client      *Client
	tokens      []string
	chatIDs     map[string]string
	defaultChat string
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewNotifier creates a notifier. Placeholder backup tokens are ignored.
func NewNotifier(cfg Config, logger *zap.Logger) *NotifierImpl {
	tokens := []string{cfg.BotToken}
	for _, t := range cfg.BackupTokens {
		if t == "" || strings.HasPrefix(t, "BACKUP_BOT_TOKEN") || strings.HasPrefix(t, "YOUR_BACKUP") {
			continue
		}
		tokens = append(tokens, t)
	}

	chatIDs := make(map[string]string, len(cfg.ChatIDs))
	for k, v := range cfg.ChatIDs {
		chatIDs[strings.ToLower(k)] = v
	}
	defaultChat := chatIDs["default"]
	if defaultChat == "" {
		for _, v := range chatIDs {
			defaultChat = v
			break
		}
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &NotifierImpl{
		client:      NewClient(cfg.APIURL, timeout),
		tokens:      tokens,
		chatIDs:     chatIDs,
		defaultChat: defaultChat,
		limiter:     rate.NewLimiter(rate.Every(interval), 1),
		logger:      logger,
	}
}

// DefaultChat is the chat used for alerts and proxy requests.
func (n *NotifierImpl) DefaultChat() string {
	return n.defaultChat
}

func (n *NotifierImpl) chatFor(websiteType string) string {
	if id, ok := n.chatIDs[strings.ToLower(websiteType)]; ok && id != "" {
		return id
	}
	return n.defaultChat
}

type sendMessageParams struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type sendPhotoParams struct {
	ChatID    string `json:"chat_id"`
	Photo     string `json:"photo"`
	Caption   string `json:"caption"`
	ParseMode string `json:"parse_mode"`
}

// withBots runs send with each token until one succeeds.
func (n *NotifierImpl) withBots(ctx context.Context, what string, send func(token string) error) error {
	var errs []error
	for i, token := range n.tokens {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		err := send(token)
		if err == nil {
			if i > 0 {
				n.logger.Info("backup bot delivered message", zap.String("what", what), zap.Int("bot", i))
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n.logger.Warn("bot failed to deliver message", zap.String("what", what), zap.Int("bot", i), zap.Error(err))
		errs = append(errs, fmt.Errorf("bot %d: %w", i, err))
	}
	return fmt.Errorf("all %d bots failed: %w", len(n.tokens), errors.Join(errs...))
}

func (n *NotifierImpl) sendText(ctx context.Context, token, chatID, text string, noPreview bool) error {
	return n.client.Call(ctx, token, "sendMessage", sendMessageParams{
		ChatID:                chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: noPreview,
	}, nil)
}

// NotifyListings sends one message per listing, with its photo when the
// listing has one. A listing that no bot could deliver does not stop the rest.
func (n *NotifierImpl) NotifyListings(ctx context.Context, searchTitle, websiteType string, listings []entity.Notification) error {
	chatID := n.chatFor(websiteType)
	var failed []error

	for _, l := range listings {
		message := FormatListing(searchTitle, l)
		err := n.withBots(ctx, "listing", func(token string) error {
			if l.ImageURL != "" {
				perr := n.client.Call(ctx, token, "sendPhoto", sendPhotoParams{
					ChatID:    chatID,
					Photo:     l.ImageURL,
					Caption:   truncateCaption(message),
					ParseMode: "HTML",
				}, nil)
				if perr == nil {
					return nil
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				n.logger.Debug("photo rejected, sending text", zap.String("title", l.Title), zap.Error(perr))
			}
			return n.sendText(ctx, token, chatID, message, false)
		})
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			metrics.NotificationsTotal.WithLabelValues("listing", "failure").Inc()
			n.logger.Error("failed to send listing notification", zap.String("source", searchTitle), zap.String("title", l.Title), zap.Error(err))
			failed = append(failed, err)
			continue
		}
		metrics.NotificationsTotal.WithLabelValues("listing", "success").Inc()
		n.logger.Info("notification sent", zap.String("source", searchTitle), zap.String("title", l.Title))
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d notifications failed: %w", len(failed), len(listings), failed[0])
	}
	return nil
}

func (n *NotifierImpl) SendAlert(ctx context.Context, message string) error {
	err := n.withBots(ctx, "alert", func(token string) error {
		return n.sendText(ctx, token, n.defaultChat, FormatAlert(message), false)
	})
	recordNotification("alert", err)
	return err
}

func (n *NotifierImpl) SendZeroItemsAlert(ctx context.Context, searchTitle, url, websiteType string) error {
	chatID := n.chatFor(websiteType)
	err := n.withBots(ctx, "zero_items", func(token string) error {
		return n.sendText(ctx, token, chatID, FormatZeroItems(searchTitle, url), true)
	})
	recordNotification("zero_items", err)
	return err
}

// Ping calls getMe on every bot and succeeds if at least one answers.
func (n *NotifierImpl) Ping(ctx context.Context) error {
	connected := 0
	var lastErr error
	for _, token := range n.tokens {
		var me struct {
			Username string `json:"username"`
		}
		if err := n.client.Call(ctx, token, "getMe", struct{}{}, &me); err != nil {
			lastErr = err
			continue
		}
		connected++
	}
	n.logger.Info("telegram bots checked", zap.Int("connected", connected), zap.Int("failed", len(n.tokens)-connected))
	if connected == 0 {
		return fmt.Errorf("no telegram bot reachable: %w", lastErr)
	}
	return nil
}

func recordNotification(kind string, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.NotificationsTotal.WithLabelValues(kind, result).Inc()
}
