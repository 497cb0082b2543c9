package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foxseedlab/signscribe/internal/followup"
	"github.com/go-resty/resty/v2"
)

const followupPath = "/api/followup"

type followupRequest struct {
	Symptom string          `json:"symptom"`
	History json.RawMessage `json:"history"`
}

type RestyClient struct {
	http    *resty.Client
	enabled bool
}

// NewRestyClient returns a client for the follow-up service at baseURL. An empty
// baseURL yields a client that never asks anything. Failed calls are not retried.
func NewRestyClient(baseURL string, timeout time.Duration) followup.Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &RestyClient{http: client, enabled: baseURL != ""}
}

func (c *RestyClient) RequestFollowup(ctx context.Context, symptom string, history json.RawMessage) (*followup.Question, error) {
	if !c.enabled {
		return nil, nil
	}
	if len(history) == 0 || !json.Valid(history) {
		history = json.RawMessage(`{}`)
	}

	var answer followup.Question
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(followupRequest{Symptom: symptom, History: history}).
		SetResult(&answer).
		Post(followupPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", followup.ErrUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: status %d: %s", followup.ErrUnavailable, resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	answer.Question = strings.TrimSpace(answer.Question)
	answer.Why = strings.TrimSpace(answer.Why)
	if answer.Question == "" {
		slog.Debug("follow-up service had no question", "symptom", symptom)
		return nil, nil
	}
	return &answer, nil
}
