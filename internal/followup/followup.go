package followup

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnavailable is returned when the follow-up service could not produce an answer.
var ErrUnavailable = errors.New("follow-up service unavailable")

// Question is a suggested clinician follow-up and the reason it is worth asking.
type Question struct {
	Question string `json:"question"`
	Why      string `json:"why"`
}

type Client interface {
	// RequestFollowup returns nil without error when the service has nothing to ask.
	RequestFollowup(ctx context.Context, symptom string, history json.RawMessage) (*Question, error)
}

type HistoryLoader interface {
	LoadHistory(ctx context.Context) (json.RawMessage, error)
}
