// Package chat relays assistant questions to an external webhook.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/acepenergy/acep/pkg/common"
	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/metrics"
)

// FallbackReply is the answer given when no webhook is configured.
func FallbackReply(chat string) string {
	return fmt.Sprintf("Thank you for your message: %q. I am the ACEP assistant, ready to help with questions about energy and planning.", chat)
}

// noResponse is used when the webhook answers without any recognizable text.
const noResponse = "No response from assistant"

// ErrMissingFields is returned when a message lacks a required field.
var ErrMissingFields = errors.New("chat, sessionId, userId and full_name are required")

// Message is what the webhook receives.
type Message struct {
	Chat      string `json:"chat"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	FullName  string `json:"full_name"`
}

// Validate checks that all fields are present.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Chat) == "" || m.SessionID == "" || m.UserID == "" || m.FullName == "" {
		return ErrMissingFields
	}
	return nil
}

// Reply is the assistant's answer.
type Reply struct {
	Text string
	// Raw is the decoded webhook body, nil for the fallback reply.
	Raw any
	// Fallback is true when no webhook was called.
	Fallback bool
}

// Relay forwards messages to the assistant webhook.
type Relay struct {
	webhookURL string
	client     *http.Client
}

// Configured returns a Relay whose settings come from flags.
func Configured() *Relay {
	r := &Relay{}
	webhookURL := lflag.String("chat-webhook-url", "", "Webhook URL of the assistant (empty replies with a fallback message)")
	timeout := lflag.Duration("chat-timeout", time.Minute, "Timeout for assistant webhook calls")

	lflag.Do(func() {
		r.webhookURL = *webhookURL
		r.client = common.HTTPClient(*timeout)
	})
	return r
}

// New returns a Relay posting to webhookURL.
func New(webhookURL string, timeout time.Duration) *Relay {
	return &Relay{
		webhookURL: webhookURL,
		client:     common.HTTPClient(timeout),
	}
}

// Send validates msg and posts it to the webhook.
func (r *Relay) Send(ctx context.Context, msg Message) (Reply, error) {
	if err := msg.Validate(); err != nil {
		return Reply{}, err
	}
	if r.webhookURL == "" {
		log.Ctx(ctx).DebugContext(ctx, "no chat webhook configured, replying with fallback")
		return Reply{Text: FallbackReply(msg.Chat), Fallback: true}, nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to encode chat message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return Reply{}, fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := common.ReadBody(r.client, req)
	if err != nil {
		metrics.ChatRelay(false)
		return Reply{}, fmt.Errorf("chat webhook failed: %w", err)
	}
	metrics.ChatRelay(true)

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		// plain text bodies are the reply as-is
		log.Ctx(ctx).DebugContext(ctx, "chat webhook returned non-json body", slog.Any("error", err))
		text := StripThinking(string(body))
		if text == "" {
			text = noResponse
		}
		return Reply{Text: text, Raw: string(body)}, nil
	}
	return Reply{Text: StripThinking(ExtractText(raw)), Raw: raw}, nil
}

// ExtractText finds the reply text in a decoded webhook body. It accepts an
// array whose first element has an "output", or an object with "response",
// "output" or "message", in that order.
func ExtractText(raw any) string {
	switch v := raw.(type) {
	case []any:
		if len(v) > 0 {
			if obj, ok := v[0].(map[string]any); ok {
				if s, ok := obj["output"].(string); ok && s != "" {
					return s
				}
			}
		}
	case map[string]any:
		for _, k := range []string{"response", "output", "message"} {
			if s, ok := v[k].(string); ok && s != "" {
				return s
			}
		}
	case string:
		if v != "" {
			return v
		}
	}
	return noResponse
}

var thinkRE = regexp.MustCompile(`(?s)<think>.*?</think>`)

// StripThinking removes <think> blocks and surrounding whitespace.
func StripThinking(s string) string {
	return strings.TrimSpace(thinkRE.ReplaceAllString(s, ""))
}
