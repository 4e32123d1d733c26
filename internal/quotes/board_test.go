package quotes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/bazaar/internal/models"
)

func trader(idx models.TraderIndex, created models.BlockNumber, ask, bid uint64) *models.TraderProfile {
	return &models.TraderProfile{
		Index:    idx,
		Name:     []byte("t"),
		Country:  1,
		Method:   []byte("cash"),
		AskPrice: models.NewAmount(ask),
		AskLimit: models.NewAmount(10),
		BidPrice: models.NewAmount(bid),
		BidLimit: models.NewAmount(10),
		Created:  created,
	}
}

func indices(qs []Quote) []models.TraderIndex {
	out := make([]models.TraderIndex, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.Trader)
	}
	return out
}

func TestBuild_PriceTimePriority(t *testing.T) {
	profiles := []*models.TraderProfile{
		trader(0, 5, 101, 95),
		trader(1, 1, 100, 96),
		trader(2, 2, 101, 96),
		trader(3, 0, 100, 94),
	}

	b := Build(profiles, Filter{})

	// lowest ask first, ties broken by earliest registration
	assert.Equal(t, []models.TraderIndex{3, 1, 2, 0}, indices(b.Asks))
	// highest bid first, ties broken by earliest registration
	assert.Equal(t, []models.TraderIndex{1, 2, 0, 3}, indices(b.Bids))

	best, ok := b.BestAsk()
	require.True(t, ok)
	assert.Equal(t, models.NewAmount(100), best.Price)
	assert.Equal(t, SideAsk, best.Side)

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.Equal(t, models.NewAmount(96), bid.Price)
}

func TestBuild_SkipsUnquotedSides(t *testing.T) {
	sellOnly := trader(0, 0, 100, 0)
	noLimit := trader(1, 0, 100, 90)
	noLimit.AskLimit = models.Amount{}

	b := Build([]*models.TraderProfile{sellOnly, noLimit}, Filter{})
	assert.Equal(t, []models.TraderIndex{0}, indices(b.Asks))
	assert.Equal(t, []models.TraderIndex{1}, indices(b.Bids))
}

func TestBuild_Filter(t *testing.T) {
	other := trader(1, 0, 100, 90)
	other.Country = 2
	other.Method = []byte("bank")
	unset := trader(2, 0, 100, 90)
	unset.Country = 0

	tests := []struct {
		name   string
		filter Filter
		want   []models.TraderIndex
	}{
		{name: "all", filter: Filter{}, want: []models.TraderIndex{0, 1, 2}},
		{name: "country", filter: InCountry(2), want: []models.TraderIndex{1}},
		{name: "country zero", filter: InCountry(0), want: []models.TraderIndex{2}},
		{name: "method", filter: Filter{Method: "cash"}, want: []models.TraderIndex{0, 2}},
		{name: "none", filter: InCountry(9), want: []models.TraderIndex{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := Build([]*models.TraderProfile{trader(0, 0, 100, 90), other, unset}, tt.filter)
			assert.Equal(t, tt.want, indices(b.Asks))
		})
	}
}

func TestBoard_Empty(t *testing.T) {
	b := Build(nil, Filter{})
	_, ok := b.BestAsk()
	assert.False(t, ok)
	_, ok = b.BestBid()
	assert.False(t, ok)
	assert.NotNil(t, b.Asks)
}
