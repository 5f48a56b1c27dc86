package pricing

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var feedBase = time.Unix(1_700_000_000, 0).UTC()

func newFeed(heartbeat time.Duration) *ManualFeed {
	feed := NewManualFeed(heartbeat)
	feed.SetNowFunc(func() time.Time { return feedBase })
	return feed
}

func TestGetPriceReturnsQuote(t *testing.T) {
	feed := newFeed(time.Hour)
	require.NoError(t, feed.Set("WETH", big.NewInt(2_000), feedBase))

	quote, err := feed.GetPrice("weth ")
	require.NoError(t, err)
	require.Equal(t, "2000", quote.PriceUSD.String())
	require.True(t, quote.Timestamp.Equal(feedBase))
	require.Equal(t, "manual", quote.Source)
}

func TestGetPriceMissingFeed(t *testing.T) {
	feed := newFeed(time.Hour)

	_, err := feed.GetPrice("WETH")
	require.ErrorIs(t, err, ErrFeedNotFound)
}

func TestGetPriceRejectsStaleQuote(t *testing.T) {
	feed := newFeed(time.Hour)
	require.NoError(t, feed.Set("WETH", big.NewInt(2_000), feedBase.Add(-2*time.Hour)))

	_, err := feed.GetPrice("WETH")
	require.ErrorIs(t, err, ErrStalePrice)
}

func TestSetRejectsNonPositivePrice(t *testing.T) {
	feed := newFeed(time.Hour)

	require.ErrorIs(t, feed.Set("WETH", big.NewInt(0), feedBase), ErrInvalidPrice)
	require.ErrorIs(t, feed.Set("WETH", big.NewInt(-5), feedBase), ErrInvalidPrice)
}

func TestSetDecimalScalesTo18Decimals(t *testing.T) {
	feed := newFeed(time.Hour)
	require.NoError(t, feed.SetDecimal("WETH", "1.5", feedBase))

	quote, err := feed.GetPrice("WETH")
	require.NoError(t, err)
	require.Equal(t, "1500000000000000000", quote.PriceUSD.String())

	require.Error(t, feed.SetDecimal("WETH", "not-a-number", feedBase))
}

func TestQuoteCloneIsDeep(t *testing.T) {
	feed := newFeed(time.Hour)
	require.NoError(t, feed.Set("WETH", big.NewInt(2_000), feedBase))

	quote, err := feed.GetPrice("WETH")
	require.NoError(t, err)
	quote.PriceUSD.SetInt64(1)

	again, err := feed.GetPrice("WETH")
	require.NoError(t, err)
	require.Equal(t, "2000", again.PriceUSD.String())
}
