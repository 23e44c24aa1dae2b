// Package messaging is the client for the chat platform gateway that
// delivers outbound messages and hands conversations over to human agents.
package messaging

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client talks to the messaging gateway over HTTP.
type Client struct {
	http *resty.Client
}

// New creates a Client authenticated with a bearer token.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	h := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if token != "" {
		h.SetAuthToken(token)
	}
	return &Client{http: h}
}

type sendRequest struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// SendMessage posts text to the conversation as the integration and returns
// the gateway's message id.
func (c *Client) SendMessage(ctx context.Context, conversationID, text string) (string, error) {
	var out sendResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(sendRequest{Author: "business", Text: text}).
		SetResult(&out).
		Post("/conversations/" + url.PathEscape(conversationID) + "/messages")
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("sending message: status %d: %s", resp.StatusCode(), resp.String())
	}
	return out.MessageID, nil
}

type transferRequest struct {
	Reason string `json:"reason"`
	Target string `json:"target"`
}

// TransferToHuman passes control of the conversation to the human agent queue.
func (c *Client) TransferToHuman(ctx context.Context, conversationID, reason string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(transferRequest{Reason: reason, Target: "agent_workspace"}).
		Post("/conversations/" + url.PathEscape(conversationID) + "/pass-control")
	if err != nil {
		return fmt.Errorf("transferring conversation: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("transferring conversation: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
