package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/tg-adescrow/backend/internal/stats"
	"go.uber.org/zap"
)

var (
	// ErrChannelNotFound means the platform does not know the handle.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrVerifyUnknown means a message-existence probe failed for a reason
	// that proves nothing either way; the caller should retry later.
	ErrVerifyUnknown = errors.New("message existence could not be determined")
)

// ChannelInfo is the result of verifying the bot's standing on a channel.
type ChannelInfo struct {
	ChatID      int64
	Title       string
	Subscribers int
	BotIsAdmin  bool
	BotCanPost  bool
}

// UserOnChannel is the result of verifying a user's standing on a channel.
type UserOnChannel struct {
	ChatID    int64
	IsAdmin   bool
	CanPost   bool
	CanManage bool
}

// Client talks to the Bot API directly over HTTP.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	probe      *stats.Parser
	log        *zap.Logger

	botIDOnce sync.Once
	botID     int64
	botIDErr  error
}

func NewClient(token string, probe *stats.Parser, log *zap.Logger) *Client {
	return &Client{
		token:   token,
		baseURL: "https://api.telegram.org",
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		probe: probe,
		log:   log,
	}
}

type apiError struct {
	Code        int
	Description string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("telegram api error %d: %s", e.Code, e.Description)
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, result any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram api unavailable: %w", err)
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Result      json.RawMessage `json:"result"`
		ErrorCode   int             `json:"error_code"`
		Description string          `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if !envelope.OK {
		return &apiError{Code: envelope.ErrorCode, Description: envelope.Description}
	}
	if result != nil {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}

func (c *Client) getBotID(ctx context.Context) (int64, error) {
	c.botIDOnce.Do(func() {
		var me struct {
			ID int64 `json:"id"`
		}
		c.botIDErr = c.call(ctx, "getMe", map[string]any{}, &me)
		c.botID = me.ID
	})
	return c.botID, c.botIDErr
}

func normalizeHandle(handle string) string {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	return "@" + handle
}

// VerifyBotOnChannel checks the channel exists and reports the bot's rights
// and the subscriber count.
func (c *Client) VerifyBotOnChannel(ctx context.Context, handle string) (*ChannelInfo, error) {
	chatRef := normalizeHandle(handle)

	var chat struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}
	if err := c.call(ctx, "getChat", map[string]any{"chat_id": chatRef}, &chat); err != nil {
		if isNotFound(err) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}

	info := &ChannelInfo{ChatID: chat.ID, Title: chat.Title}

	var count int
	if err := c.call(ctx, "getChatMemberCount", map[string]any{"chat_id": chat.ID}, &count); err == nil {
		info.Subscribers = count
	} else if c.probe != nil {
		// The member count API needs the bot inside the chat; the public
		// preview page does not.
		if st, err := c.probe.FetchChannelStats(ctx, strings.TrimPrefix(chatRef, "@")); err == nil && st.Subscribers != nil {
			info.Subscribers = *st.Subscribers
		}
	}

	botID, err := c.getBotID(ctx)
	if err != nil {
		return nil, err
	}

	member, err := c.getChatMember(ctx, chat.ID, botID)
	if err != nil {
		// The bot can resolve the chat but is not a member of it.
		return info, nil
	}
	info.BotIsAdmin = member.Status == "administrator" || member.Status == "creator"
	info.BotCanPost = info.BotIsAdmin && (member.Status == "creator" || member.CanPostMessages)
	return info, nil
}

// VerifyUserOnChannel reports the platform admin standing of a user.
func (c *Client) VerifyUserOnChannel(ctx context.Context, telegramUserID int64, handle string) (*UserOnChannel, error) {
	chatRef := normalizeHandle(handle)

	var chat struct {
		ID int64 `json:"id"`
	}
	if err := c.call(ctx, "getChat", map[string]any{"chat_id": chatRef}, &chat); err != nil {
		if isNotFound(err) {
			return nil, ErrChannelNotFound
		}
		return nil, err
	}

	member, err := c.getChatMember(ctx, chat.ID, telegramUserID)
	if err != nil {
		if isNotFound(err) {
			return &UserOnChannel{ChatID: chat.ID}, nil
		}
		return nil, err
	}

	result := &UserOnChannel{ChatID: chat.ID}
	switch member.Status {
	case "creator":
		result.IsAdmin = true
		result.CanPost = true
		result.CanManage = true
	case "administrator":
		result.IsAdmin = true
		result.CanPost = member.CanPostMessages
		result.CanManage = member.CanPromoteMembers
	}
	return result, nil
}

type chatMember struct {
	Status            string `json:"status"`
	CanPostMessages   bool   `json:"can_post_messages"`
	CanPromoteMembers bool   `json:"can_promote_members"`
}

func (c *Client) getChatMember(ctx context.Context, chatID, userID int64) (*chatMember, error) {
	var wrapper struct {
		Status            string `json:"status"`
		CanPostMessages   bool   `json:"can_post_messages"`
		CanPromoteMembers bool   `json:"can_promote_members"`
	}
	err := c.call(ctx, "getChatMember", map[string]any{"chat_id": chatID, "user_id": userID}, &wrapper)
	if err != nil {
		return nil, err
	}
	return &chatMember{
		Status:            wrapper.Status,
		CanPostMessages:   wrapper.CanPostMessages,
		CanPromoteMembers: wrapper.CanPromoteMembers,
	}, nil
}

// SendChannelMessage posts text to a channel and returns the message id.
func (c *Client) SendChannelMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	var msg struct {
		MessageID int64 `json:"message_id"`
	}
	err := c.call(ctx, "sendMessage", map[string]any{"chat_id": chatID, "text": text}, &msg)
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

// SendDirectMessage delivers a notification to a user's private chat.
func (c *Client) SendDirectMessage(ctx context.Context, telegramUserID int64, text string) error {
	return c.call(ctx, "sendMessage", map[string]any{"chat_id": telegramUserID, "text": text}, nil)
}

// MessageExists checks that a previously posted message is still live.
//
// Public channels are probed through the t.me embed page, which has no side
// effects. Private channels fall back to forwarding the message back into the
// channel and deleting the copy; a "not found" error means the original is
// gone, while "can't be forwarded" means it exists but is protected. Anything
// else is ErrVerifyUnknown and the caller must not change state.
func (c *Client) MessageExists(ctx context.Context, chatID int64, handle string, messageID int64) (bool, error) {
	if handle != "" && c.probe != nil {
		exists, err := c.probe.PostExists(ctx, strings.TrimPrefix(handle, "@"), messageID)
		if err == nil {
			return exists, nil
		}
		c.log.Debug("embed probe failed, falling back to forward probe",
			zap.String("channel", handle), zap.Error(err))
	}

	var fwd struct {
		MessageID int64 `json:"message_id"`
	}
	err := c.call(ctx, "forwardMessage", map[string]any{
		"chat_id":      chatID,
		"from_chat_id": chatID,
		"message_id":   messageID,
	}, &fwd)
	if err == nil {
		// Clean up the probe copy, best effort.
		_ = c.call(ctx, "deleteMessage", map[string]any{"chat_id": chatID, "message_id": fwd.MessageID}, nil)
		return true, nil
	}

	var apiErr *apiError
	if errors.As(err, &apiErr) {
		desc := strings.ToLower(apiErr.Description)
		if strings.Contains(desc, "not found") {
			return false, nil
		}
		if strings.Contains(desc, "can't be forwarded") || strings.Contains(desc, "forwards are restricted") {
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: %v", ErrVerifyUnknown, err)
}

func isNotFound(err error) bool {
	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		return false
	}
	desc := strings.ToLower(apiErr.Description)
	return strings.Contains(desc, "not found") || strings.Contains(desc, "chat not found") ||
		strings.Contains(desc, "user not found")
}
