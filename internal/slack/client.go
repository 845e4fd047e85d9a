// Package slack is a thin client for the two Slack Web API methods the
// relay needs: conversations.history and chat.postMessage.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ghrelay/pkg/logx"
)

const defaultAPIBase = "https://slack.com/api"

type Config struct {
	BotToken string
	// APIBase overrides the Slack endpoint, used by tests.
	APIBase string
	// RatePerSec caps outgoing requests; chat.postMessage is limited by
	// Slack to roughly one message per second per channel.
	RatePerSec int
}

type Client struct {
	httpc   *http.Client
	limiter *rate.Limiter
	token   string
	apiBase string
	log     logx.Logger
}

func NewClient(cfg Config, log logx.Logger) *Client {
	if log.IsZero() {
		log = logx.Nop()
	}
	base := strings.TrimSuffix(cfg.APIBase, "/")
	if base == "" {
		base = defaultAPIBase
	}
	rps := cfg.RatePerSec
	if rps < 1 {
		rps = 1
	}
	return &Client{
		httpc:   &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		token:   cfg.BotToken,
		apiBase: base,
		log:     log,
	}
}

// HistoryParams selects messages with ts strictly greater than OldestTS.
type HistoryParams struct {
	Channel  string
	OldestTS string
	// Limit bounds the page size; 0 leaves it to the API default.
	Limit int
}

type historyResponse struct {
	OK       bool      `json:"ok"`
	Error    string    `json:"error"`
	Messages []Message `json:"messages"`
}

// ConversationsHistory returns messages newer than p.OldestTS, newest-first.
func (c *Client) ConversationsHistory(ctx context.Context, p HistoryParams) ([]Message, error) {
	q := url.Values{}
	q.Set("channel", p.Channel)
	q.Set("oldest", p.OldestTS)
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}

	var data historyResponse
	if err := c.call(ctx, http.MethodGet, "conversations.history?"+q.Encode(), nil, &data); err != nil {
		return nil, err
	}
	if !data.OK {
		return nil, fmt.Errorf("slack: conversations.history: %s", apiError(data.Error))
	}
	return data.Messages, nil
}

// ChatMessage is the payload of chat.postMessage. Unfurling is always
// disabled so GitHub links don't expand into preview cards.
type ChatMessage struct {
	Channel     string `json:"channel"`
	Text        string `json:"text"`
	Username    string `json:"username,omitempty"`
	IconURL     string `json:"icon_url,omitempty"`
	IconEmoji   string `json:"icon_emoji,omitempty"`
	UnfurlLinks bool   `json:"unfurl_links"`
	UnfurlMedia bool   `json:"unfurl_media"`
}

type postResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (c *Client) PostMessage(ctx context.Context, msg ChatMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var data postResponse
	if err := c.call(ctx, http.MethodPost, "chat.postMessage", body, &data); err != nil {
		return err
	}
	if !data.OK {
		return fmt.Errorf("slack: chat.postMessage: %s", apiError(data.Error))
	}
	return nil
}

// PostText posts a bare text message. Used by the logx Slack sink.
func (c *Client) PostText(ctx context.Context, channel, text string) error {
	return c.PostMessage(ctx, ChatMessage{Channel: channel, Text: text})
}

func (c *Client) call(ctx context.Context, method, path string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+"/"+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}

	res, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("slack: %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		c.log.Warn("slack request failed",
			logx.String("path", path),
			logx.Int("status", res.StatusCode),
			logx.String("body", string(snippet)))
		return fmt.Errorf("slack: %s: unexpected status %d", path, res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("slack: %s: decode response: %w", path, err)
	}
	return nil
}

func apiError(s string) string {
	if s == "" {
		return "unknown error"
	}
	return s
}
