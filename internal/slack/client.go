// Package slack is the chat transport: it posts prompts and replies and
// returns thread handles. Receiving responses is the HTTP API's job.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://slack.com/api"
	defaultTimeout = 15 * time.Second
)

// ErrRateLimited is returned on HTTP 429 from the Slack API.
var ErrRateLimited = errors.New("slack: rate limited")

// APIError is a Slack-level failure (ok=false) as opposed to a
// transport failure.
type APIError struct {
	Code string
}

func (e *APIError) Error() string {
	return "slack: api error: " + e.Code
}

// Client posts messages through the Slack Web API.
type Client struct {
	botToken   string
	baseURL    string
	httpClient *http.Client
}

// New creates a Client with the given bot token.
func New(botToken string) *Client {
	return &Client{
		botToken: botToken,
		baseURL:  defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// NewWithBaseURL creates a client pointing at a custom base URL (for testing).
func NewWithBaseURL(botToken, baseURL string) *Client {
	c := New(botToken)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Block is a Block Kit element, kept as a loose map since the core only
// builds a handful of fixed shapes.
type Block map[string]any

// Message is one outgoing chat message. ThreadTS, when set, posts into
// an existing thread.
type Message struct {
	Channel  string  `json:"channel"`
	Text     string  `json:"text"`
	ThreadTS string  `json:"thread_ts,omitempty"`
	Blocks   []Block `json:"blocks,omitempty"`
}

type postMessageResponse struct {
	OK    bool   `json:"ok"`
	TS    string `json:"ts"`
	Error string `json:"error"`
}

// PostMessage sends a message and returns its timestamp, which doubles
// as the thread handle for later replies and button payloads.
func (c *Client) PostMessage(ctx context.Context, msg Message) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("slack: marshaling message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("slack: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.botToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack: executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("slack: unexpected status %d", resp.StatusCode)
	}

	var decoded postMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("slack: decoding response: %w", err)
	}
	if !decoded.OK {
		return "", &APIError{Code: decoded.Error}
	}
	return decoded.TS, nil
}

// PlanMessage builds the daily plan announcement listing the user's
// committed tasks.
func PlanMessage(channel string, tasks []string) Message {
	if len(tasks) == 0 {
		return Message{Channel: channel, Text: "No commitments today."}
	}
	var b strings.Builder
	b.WriteString("Today's commitments:\n")
	for _, t := range tasks {
		b.WriteString("• " + t + "\n")
	}
	return Message{Channel: channel, Text: b.String()}
}

// RemindMessage builds a remind prompt with YES/NO buttons. The button
// values carry the schedule ID so the interaction payload can reference
// the event.
func RemindMessage(channel, scheduleID, task string) Message {
	text := "Did you do it: " + task + "?"
	return Message{
		Channel: channel,
		Text:    text,
		Blocks: []Block{
			{
				"type": "section",
				"text": map[string]any{"type": "mrkdwn", "text": text},
			},
			{
				"type": "actions",
				"elements": []map[string]any{
					{
						"type":      "button",
						"action_id": "respond_yes",
						"style":     "primary",
						"text":      map[string]any{"type": "plain_text", "text": "YES"},
						"value":     scheduleID,
					},
					{
						"type":      "button",
						"action_id": "respond_no",
						"style":     "danger",
						"text":      map[string]any{"type": "plain_text", "text": "NO"},
						"value":     scheduleID,
					},
				},
			},
		},
	}
}

// ThreadReply builds a plain reply inside an existing thread.
func ThreadReply(channel, threadTS, text string) Message {
	return Message{Channel: channel, Text: text, ThreadTS: threadTS}
}
