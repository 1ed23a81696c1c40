package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/open-builders/giveaway-engine/internal/common/config"
	apperrors "github.com/open-builders/giveaway-engine/internal/common/errors"
	"github.com/open-builders/giveaway-engine/internal/common/logger"
)

const defaultBaseURL = "https://api.telegram.org"

// Client talks to the Telegram Bot API. Post ids have the form
// "<chat id>:<message id>".
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	botID      string
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

type chatMember struct {
	Status          string `json:"status"`
	CanPostMessages *bool  `json:"can_post_messages,omitempty"`
	CanEditMessages *bool  `json:"can_edit_messages,omitempty"`
}

type message struct {
	MessageID int64 `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

type tgResponse[T any] struct {
	Ok          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Result      T      `json:"result"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

func NewClient(cfg config.TelegramConfig) *Client {
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		token:      cfg.BotToken,
		botID:      strings.Split(cfg.BotToken, ":")[0],
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		logger:     logger.Component("telegram"),
	}
}

// PublishPost sends text to the channel and returns the new post id.
func (c *Client) PublishPost(ctx context.Context, channelID int64, text string) (string, error) {
	params := url.Values{
		"chat_id": {strconv.FormatInt(channelID, 10)},
		"text":    {text},
	}
	var msg message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return "", err
	}
	id := formatPostID(msg.Chat.ID, msg.MessageID)
	c.logger.Debug().Str("post_id", id).Msg("Post published")
	return id, nil
}

func (c *Client) EditPost(ctx context.Context, postID, text string) error {
	chatID, msgID, err := parsePostID(postID)
	if err != nil {
		return err
	}
	params := url.Values{
		"chat_id":    {chatID},
		"message_id": {msgID},
		"text":       {text},
	}
	err = c.call(ctx, "editMessageText", params, nil)
	if isNotModified(err) {
		return nil
	}
	return err
}

// RetrievePost probes the post with an idempotent markup edit. The API has
// no direct lookup; "not modified" proves the message exists.
func (c *Client) RetrievePost(ctx context.Context, postID string) (bool, error) {
	chatID, msgID, err := parsePostID(postID)
	if err != nil {
		return false, nil
	}
	params := url.Values{
		"chat_id":      {chatID},
		"message_id":   {msgID},
		"reply_markup": {`{"inline_keyboard":[]}`},
	}
	err = c.call(ctx, "editMessageReplyMarkup", params, nil)
	switch {
	case err == nil, isNotModified(err):
		return true, nil
	case apperrors.CodeOf(err) == apperrors.ErrCodeNotFound:
		return false, nil
	default:
		return false, err
	}
}

// AddEntryAffordance attaches the entry reaction to the post.
func (c *Client) AddEntryAffordance(ctx context.Context, postID, emoji string) error {
	chatID, msgID, err := parsePostID(postID)
	if err != nil {
		return err
	}
	reaction, err := json.Marshal([]map[string]string{{"type": "emoji", "emoji": emoji}})
	if err != nil {
		return apperrors.NewPlatformError("encode reaction", err)
	}
	params := url.Values{
		"chat_id":    {chatID},
		"message_id": {msgID},
		"reaction":   {string(reaction)},
	}
	return c.call(ctx, "setMessageReaction", params, nil)
}

func (c *Client) DeletePost(ctx context.Context, postID string) error {
	chatID, msgID, err := parsePostID(postID)
	if err != nil {
		return err
	}
	params := url.Values{
		"chat_id":    {chatID},
		"message_id": {msgID},
	}
	return c.call(ctx, "deleteMessage", params, nil)
}

// CheckPermissions verifies the bot administers the channel and may post and
// edit there.
func (c *Client) CheckPermissions(ctx context.Context, channelID int64) error {
	params := url.Values{
		"chat_id": {strconv.FormatInt(channelID, 10)},
		"user_id": {c.botID},
	}
	var member chatMember
	if err := c.call(ctx, "getChatMember", params, &member); err != nil {
		return err
	}

	switch member.Status {
	case "creator":
		return nil
	case "administrator":
		if denied(member.CanPostMessages) || denied(member.CanEditMessages) {
			return apperrors.New(apperrors.ErrCodePermissionDenied, "bot cannot post or edit in the channel").
				WithDetail("channel_id", channelID)
		}
		return nil
	default:
		return apperrors.New(apperrors.ErrCodePermissionDenied, "bot is not a channel administrator").
			WithDetail("channel_id", channelID).
			WithDetail("status", member.Status)
	}
}

func denied(flag *bool) bool {
	return flag != nil && !*flag
}

// Ping calls getMe and reports how long the round trip took.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	var me struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

// call posts params to the API method and decodes the result into out when
// out is not nil. Failures are classified into AppError codes.
func (c *Client) call(ctx context.Context, method string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return apperrors.NewPlatformError(method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return apperrors.NewPlatformError(method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.NewPlatformError(method, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.NewPlatformError(method, err)
	}

	var result tgResponse[json.RawMessage]
	if err := json.Unmarshal(body, &result); err != nil {
		return apperrors.NewPlatformError(method, fmt.Errorf("status %d: %w", resp.StatusCode, err))
	}
	if !result.Ok {
		if result.ErrorCode == 0 {
			result.ErrorCode = resp.StatusCode
		}
		err := classify(method, result.ErrorCode, result.Description)
		if result.Parameters != nil && result.Parameters.RetryAfter > 0 {
			err = err.WithDetail("retry_after", result.Parameters.RetryAfter)
		}
		c.logger.Debug().Str("method", method).Int("code", result.ErrorCode).Str("description", result.Description).Msg("Telegram API error")
		return err
	}

	if out == nil || len(result.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(result.Result, out); err != nil {
		return apperrors.NewPlatformError(method, fmt.Errorf("decode result: %w", err))
	}
	return nil
}

func classify(method string, code int, description string) *apperrors.AppError {
	desc := strings.ToLower(description)
	msg := fmt.Sprintf("%s: %s", method, description)
	switch {
	case code == http.StatusTooManyRequests:
		return apperrors.New(apperrors.ErrCodeRateLimit, msg)
	case strings.Contains(desc, "reaction_invalid"):
		return apperrors.New(apperrors.ErrCodeUnknownEntryAffordance, msg)
	case strings.Contains(desc, "message is not modified"):
		return apperrors.New(apperrors.ErrCodeValidation, msg).WithDetail("not_modified", true)
	case strings.Contains(desc, "not found"), strings.Contains(desc, "message can't be"):
		return apperrors.New(apperrors.ErrCodeNotFound, msg)
	case code == http.StatusForbidden, strings.Contains(desc, "not enough rights"), strings.Contains(desc, "have no rights"):
		return apperrors.New(apperrors.ErrCodePermissionDenied, msg)
	default:
		return apperrors.New(apperrors.ErrCodePlatform, msg)
	}
}

func isNotModified(err error) bool {
	appErr, ok := apperrors.AsAppError(err)
	if !ok {
		return false
	}
	_, notModified := appErr.Details["not_modified"]
	return notModified
}

func formatPostID(chatID, messageID int64) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

// parsePostID splits a "chat:message" id. A malformed id names no post, so
// it fails as NOT_FOUND.
func parsePostID(postID string) (chatID, messageID string, err error) {
	malformed := func(reason string) error {
		return apperrors.NewNotFoundError("post", postID).WithDetail("reason", reason)
	}
	i := strings.LastIndex(postID, ":")
	if i <= 0 || i == len(postID)-1 {
		return "", "", malformed("malformed post id")
	}
	chatID, messageID = postID[:i], postID[i+1:]
	if _, err := strconv.ParseInt(chatID, 10, 64); err != nil {
		return "", "", malformed("malformed chat id")
	}
	if _, err := strconv.ParseInt(messageID, 10, 64); err != nil {
		return "", "", malformed("malformed message id")
	}
	return chatID, messageID, nil
}
