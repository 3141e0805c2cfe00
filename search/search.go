package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"nutrichat/foodapi"
	"nutrichat/models"
	"nutrichat/rdx"
)

const (
	// DebounceQuiet is the quiet period before a search-as-you-type request
	// is issued.
	DebounceQuiet = 300 * time.Millisecond

	// MinPhraseLength is the minimum input length before searching.
	MinPhraseLength = 3

	// dropdownThrottle prevents duplicate instant-alternative fetches when a
	// dropdown is re-opened in quick succession.
	dropdownThrottle = 500 * time.Millisecond

	alternativesCacheTTL = 15 * time.Minute
)

// Debouncer delays a callback until the input has been quiet for the
// configured period; each trigger resets the timer.
type Debouncer struct {
	mu    sync.Mutex
	quiet time.Duration
	timer *time.Timer
}

func NewDebouncer(quiet time.Duration) *Debouncer {
	return &Debouncer{quiet: quiet}
}

// Trigger schedules fn after the quiet period, cancelling any pending call.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, fn)
}

// Stop cancels any pending call.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Throttle gates repeated triggers of the same action, one per interval.
type Throttle struct {
	limiter *rate.Limiter
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func NewDropdownThrottle() *Throttle {
	return NewThrottle(dropdownThrottle)
}

func (t *Throttle) Allow() bool {
	return t.limiter.Allow()
}

// Searchable reports whether a typed phrase is long enough to search.
// Counted in runes so multibyte input is not over-counted.
func Searchable(phrase string) bool {
	return utf8.RuneCountInString(phrase) >= MinPhraseLength
}

// Alternatives fetches instant alternatives for a component, serving from
// the redis cache when possible.
func Alternatives(ctx context.Context, api *foodapi.Client, originalPhrase, componentID string) ([]models.Match, error) {
	// Phrase-first so cached lookups can be scanned by phrase prefix.
	redisKey := fmt.Sprintf("alternatives:%s:%s", originalPhrase, componentID)

	var alts []models.Match
	if val, err := rdx.Conn.Get(ctx, redisKey).Result(); err == nil && val != "" {
		if err := json.Unmarshal([]byte(val), &alts); err == nil {
			return alts, nil
		}
	}

	res, err := api.GetInstantAlternatives(ctx, originalPhrase, componentID)
	if err != nil {
		return nil, fmt.Errorf("search: fetching alternatives: %w", err)
	}
	alts = res.Alternatives

	if jsonBytes, err := json.Marshal(alts); err == nil {
		_ = rdx.Conn.Set(ctx, redisKey, jsonBytes, alternativesCacheTTL).Err()
	}
	return alts, nil
}
