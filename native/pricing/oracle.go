package pricing

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"
)

var (
	// ErrFeedNotFound indicates no feed is registered for the token.
	ErrFeedNotFound = errors.New("pricing: feed not found")
	// ErrStalePrice indicates the freshest quote is older than the
	// configured heartbeat.
	ErrStalePrice = errors.New("pricing: quote older than heartbeat")
	// ErrInvalidPrice indicates a quote with a non-positive price.
	ErrInvalidPrice = errors.New("pricing: price must be positive")
)

// Quote captures a USD price (18 decimals) for a token along with the
// timestamp reported by the upstream feed.
type Quote struct {
	PriceUSD  *big.Int
	Timestamp time.Time
	Source    string
}

// Clone returns a deep copy of the quote to prevent accidental mutations.
func (q Quote) Clone() Quote {
	clone := Quote{Timestamp: q.Timestamp, Source: q.Source}
	if q.PriceUSD != nil {
		clone.PriceUSD = new(big.Int).Set(q.PriceUSD)
	}
	return clone
}

// Oracle resolves the current USD value (18 decimals) of one whole unit of
// the supplied token. Implementations must fail rather than return a default
// when no fresh price exists: downstream lending maths never falls back.
type Oracle interface {
	GetPrice(token string) (Quote, error)
}

func normalizeToken(token string) string {
	return strings.ToUpper(strings.TrimSpace(token))
}

// ManualFeed is an in-memory oracle used for tests and operator overrides
// during incident response. Quotes are checked against the configured
// heartbeat on every read.
type ManualFeed struct {
	mu        sync.RWMutex
	quotes    map[string]Quote
	heartbeat time.Duration
	nowFn     func() time.Time
}

// NewManualFeed constructs an empty feed with the supplied heartbeat. A zero
// heartbeat disables staleness checks.
func NewManualFeed(heartbeat time.Duration) *ManualFeed {
	return &ManualFeed{
		quotes:    make(map[string]Quote),
		heartbeat: heartbeat,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the clock used for staleness checks. Nil restores the
// default UTC clock.
func (f *ManualFeed) SetNowFunc(now func() time.Time) {
	if f == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if now == nil {
		f.nowFn = func() time.Time { return time.Now().UTC() }
		return
	}
	f.nowFn = now
}

// SetHeartbeat updates the freshness window used when filtering quotes.
func (f *ManualFeed) SetHeartbeat(heartbeat time.Duration) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.heartbeat = heartbeat
	f.mu.Unlock()
}

// Set stores the supplied USD price (18 decimals) for the token.
func (f *ManualFeed) Set(token string, priceUSD *big.Int, ts time.Time) error {
	if f == nil {
		return fmt.Errorf("manual feed not configured")
	}
	sym := normalizeToken(token)
	if sym == "" {
		return fmt.Errorf("pricing: token required")
	}
	if priceUSD == nil || priceUSD.Sign() <= 0 {
		return ErrInvalidPrice
	}
	f.mu.Lock()
	f.quotes[sym] = Quote{PriceUSD: new(big.Int).Set(priceUSD), Timestamp: ts, Source: "manual"}
	f.mu.Unlock()
	return nil
}

// SetDecimal parses a decimal USD price string ("1.25") into 18-decimal
// fixed point and stores it.
func (f *ManualFeed) SetDecimal(token, price string, ts time.Time) error {
	trimmed := strings.TrimSpace(price)
	if trimmed == "" {
		return fmt.Errorf("pricing: price required")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok || rat.Sign() <= 0 {
		return fmt.Errorf("pricing: invalid price %q", price)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	scaled := new(big.Rat).Mul(rat, new(big.Rat).SetInt(scale))
	value := new(big.Int).Quo(scaled.Num(), scaled.Denom())
	return f.Set(token, value, ts)
}

// GetPrice returns the stored quote for the token, enforcing the heartbeat.
func (f *ManualFeed) GetPrice(token string) (Quote, error) {
	if f == nil {
		return Quote{}, fmt.Errorf("manual feed not configured")
	}
	sym := normalizeToken(token)
	if sym == "" {
		return Quote{}, fmt.Errorf("pricing: token required")
	}
	f.mu.RLock()
	quote, ok := f.quotes[sym]
	heartbeat := f.heartbeat
	now := f.nowFn()
	f.mu.RUnlock()
	if !ok {
		return Quote{}, ErrFeedNotFound
	}
	if quote.PriceUSD == nil || quote.PriceUSD.Sign() <= 0 {
		return Quote{}, ErrInvalidPrice
	}
	if heartbeat > 0 && quote.Timestamp.Before(now.Add(-heartbeat)) {
		return Quote{}, ErrStalePrice
	}
	return quote.Clone(), nil
}
