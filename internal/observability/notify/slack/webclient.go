package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arrowhq/scheduler-core/internal/ports"
)

// webAPIBase is the Slack Web API root, overridable in tests.
var webAPIBase = "https://slack.com/api"

// WebClientConfig configures a WebClient.
type WebClientConfig struct {
	BotToken string
	Timeout  time.Duration
	Client   *http.Client
}

// WebClient implements ports.ChatClient against the Slack Web API,
// grounded in the original source's direct use of slack_sdk.WebClient's
// chat_postMessage(channel=user_id, text=prompt) call: a direct message is
// sent by addressing chat.postMessage at the user's own identity, which
// Slack resolves to (or opens) that user's DM channel.
type WebClient struct {
	botToken string
	client   *http.Client
}

var _ ports.ChatClient = (*WebClient)(nil)

// NewWebClient builds a Slack Web API client. Callers must provide a bot token.
func NewWebClient(cfg WebClientConfig) (*WebClient, error) {
	token := strings.TrimSpace(cfg.BotToken)
	if token == "" {
		return nil, errors.New("slack bot token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: timeout}
	}

	return &WebClient{botToken: token, client: hc}, nil
}

type slackAPIResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (c *WebClient) call(ctx context.Context, method string, body map[string]any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode slack request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webAPIBase+"/"+method, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read slack response: %w", err)
	}

	var base slackAPIResponse
	if err := json.Unmarshal(raw, &base); err != nil {
		return fmt.Errorf("decode slack response: %w", err)
	}
	if !base.OK {
		return fmt.Errorf("slack api %s: %s", method, base.Error)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode slack response: %w", err)
		}
	}
	return nil
}

// PostDirectMessage delivers text to userIdentity via chat.postMessage,
// addressing the user identity directly as the channel.
func (c *WebClient) PostDirectMessage(ctx context.Context, userIdentity, text string) error {
	return c.call(ctx, "chat.postMessage", map[string]any{
		"channel": userIdentity,
		"text":    text,
	}, nil)
}

type userInfoResponse struct {
	slackAPIResponse
	User struct {
		TZ string `json:"tz"`
	} `json:"user"`
}

// LookupUser resolves userIdentity via users.info, returning its IANA
// timezone name when Slack reports one.
func (c *WebClient) LookupUser(ctx context.Context, userIdentity string) (ports.UserInfo, error) {
	var resp userInfoResponse
	if err := c.call(ctx, "users.info", map[string]any{"user": userIdentity}, &resp); err != nil {
		return ports.UserInfo{}, err
	}
	return ports.UserInfo{Found: true, TimezoneName: resp.User.TZ}, nil
}
