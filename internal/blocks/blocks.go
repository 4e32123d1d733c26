// Package blocks turns wall-clock time into a block height.
package blocks

import (
	"sync/atomic"
	"time"

	"github.com/raulk/clock"

	"github.com/xtrntr/bazaar/internal/models"
)

// DefaultInterval is the nominal block time; one day is 14400 blocks.
const DefaultInterval = 6 * time.Second

// Clock supplies the current block height. It never decreases.
type Clock interface {
	CurrentBlock() models.BlockNumber
}

// WallClock derives the height from the time elapsed since genesis
type WallClock struct {
	clock    clock.Clock
	genesis  time.Time
	interval time.Duration
	high     atomic.Uint64
}

// NewWallClock creates a block clock. A nil clk uses the real time.
func NewWallClock(clk clock.Clock, genesis time.Time, interval time.Duration) *WallClock {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &WallClock{clock: clk, genesis: genesis, interval: interval}
}

// CurrentBlock returns the height at the current time. A clock stepping
// backwards keeps returning the highest height already observed.
func (w *WallClock) CurrentBlock() models.BlockNumber {
	var now uint64
	if elapsed := w.clock.Since(w.genesis); elapsed > 0 {
		now = uint64(elapsed / w.interval)
	}
	for {
		high := w.high.Load()
		if now <= high {
			return models.BlockNumber(high)
		}
		if w.high.CompareAndSwap(high, now) {
			return models.BlockNumber(now)
		}
	}
}

// Interval returns the block time.
func (w *WallClock) Interval() time.Duration {
	return w.interval
}

// Fixed is a Clock pinned to one height, for tools and tests.
type Fixed models.BlockNumber

// CurrentBlock returns the pinned height.
func (f Fixed) CurrentBlock() models.BlockNumber {
	return models.BlockNumber(f)
}
