package followup

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/foxseedlab/signscribe/internal/followup"
	"github.com/patrickmn/go-cache"
)

const historyCacheKey = "patient_history"

var emptyHistory = json.RawMessage(`{}`)

// CachedHistoryLoader reads the patient history document once per TTL.
type CachedHistoryLoader struct {
	path  string
	cache *cache.Cache
}

func NewCachedHistoryLoader(path string, ttl time.Duration) followup.HistoryLoader {
	return &CachedHistoryLoader{
		path:  path,
		cache: cache.New(ttl, ttl*2),
	}
}

func (l *CachedHistoryLoader) LoadHistory(ctx context.Context) (json.RawMessage, error) {
	if l.path == "" {
		return emptyHistory, nil
	}
	if cached, found := l.cache.Get(historyCacheKey); found {
		if history, ok := cached.(json.RawMessage); ok {
			return history, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read patient history: %w", err)
	}
	if !json.Valid(b) {
		return nil, fmt.Errorf("patient history %s is not valid json", l.path)
	}
	history := json.RawMessage(b)
	l.cache.Set(historyCacheKey, history, cache.DefaultExpiration)
	return history, nil
}
