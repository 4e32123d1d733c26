// Package quotes builds the advertised quote board from trader profiles.
// The board is informational; trades never consult it.
package quotes

import (
	"sort"

	"github.com/xtrntr/bazaar/internal/models"
)

// Side of a quote.
const (
	SideAsk = "ask"
	SideBid = "bid"
)

// Quote is one trader's advertised price on one side
type Quote struct {
	Trader  models.TraderIndex `json:"trader"`
	Name    string             `json:"name"`
	Country uint8              `json:"country"`
	Method  string             `json:"method"`
	Side    string             `json:"side"`
	Price   models.Amount      `json:"price"`
	Limit   models.Amount      `json:"limit"`
	Since   models.BlockNumber `json:"since"`
}

// Board holds asks and bids in price-time priority
type Board struct {
	Asks []Quote `json:"asks"`
	Bids []Quote `json:"bids"`
}

// Filter narrows the profiles that make it onto the board. A nil Country or
// empty Method matches everything.
type Filter struct {
	Country *uint8
	Method  string
}

// InCountry returns a filter on one country code.
func InCountry(country uint8) Filter {
	return Filter{Country: &country}
}

func (f Filter) match(p *models.TraderProfile) bool {
	if f.Country != nil && p.Country != *f.Country {
		return false
	}
	if f.Method != "" && string(p.Method) != f.Method {
		return false
	}
	return true
}

// Build creates a board from profiles. A side with a zero price or limit is not quoted.
func Build(profiles []*models.TraderProfile, f Filter) *Board {
	b := &Board{Asks: []Quote{}, Bids: []Quote{}}
	for _, p := range profiles {
		if !f.match(p) {
			continue
		}
		if !p.AskPrice.IsZero() && !p.AskLimit.IsZero() {
			b.Asks = append(b.Asks, quote(p, SideAsk, p.AskPrice, p.AskLimit))
		}
		if !p.BidPrice.IsZero() && !p.BidLimit.IsZero() {
			b.Bids = append(b.Bids, quote(p, SideBid, p.BidPrice, p.BidLimit))
		}
	}

	// Asks: lowest price first, then earliest registration
	sort.SliceStable(b.Asks, func(i, j int) bool {
		if c := b.Asks[i].Price.Cmp(b.Asks[j].Price); c != 0 {
			return c < 0
		}
		return earlier(b.Asks[i], b.Asks[j])
	})
	// Bids: highest price first, then earliest registration
	sort.SliceStable(b.Bids, func(i, j int) bool {
		if c := b.Bids[i].Price.Cmp(b.Bids[j].Price); c != 0 {
			return c > 0
		}
		return earlier(b.Bids[i], b.Bids[j])
	})
	return b
}

// BestAsk returns the cheapest ask, if any.
func (b *Board) BestAsk() (Quote, bool) {
	if len(b.Asks) == 0 {
		return Quote{}, false
	}
	return b.Asks[0], true
}

// BestBid returns the highest bid, if any.
func (b *Board) BestBid() (Quote, bool) {
	if len(b.Bids) == 0 {
		return Quote{}, false
	}
	return b.Bids[0], true
}

func quote(p *models.TraderProfile, side string, price, limit models.Amount) Quote {
	return Quote{
		Trader:  p.Index,
		Name:    string(p.Name),
		Country: p.Country,
		Method:  string(p.Method),
		Side:    side,
		Price:   price,
		Limit:   limit,
		Since:   p.Created,
	}
}

func earlier(a, b Quote) bool {
	if a.Since != b.Since {
		return a.Since < b.Since
	}
	return a.Trader < b.Trader
}
