package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrntr/bazaar/internal/models"
)

func initiated(trade models.TradeIndex) Event {
	return Event{
		Kind: KindInitiatedBuy,
		Data: &models.InitiatedBuy{Trade: trade, Seller: 0, Amount: models.NewAmount(50)},
	}
}

func TestHub_PublishSubscribe(t *testing.T) {
	h := NewHub(4)
	a, unsubA := h.Subscribe()
	b, unsubB := h.Subscribe()
	defer unsubB()
	assert.Equal(t, 2, h.Subscribers())

	h.Publish(initiated(1))

	for _, ch := range []<-chan Event{a, b} {
		select {
		case e := <-ch:
			assert.Equal(t, KindInitiatedBuy, e.Kind)
			assert.Equal(t, models.TradeIndex(1), e.Data.Trade)
		default:
			t.Fatal("expected an event")
		}
	}

	unsubA()
	unsubA()
	assert.Equal(t, 1, h.Subscribers())
	_, open := <-a
	assert.False(t, open, "unsubscribed channel should be closed")
}

func TestHub_FullSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub(1)
	ch, unsub := h.Subscribe()
	defer unsub()

	h.Publish(initiated(1))
	h.Publish(initiated(2))

	assert.Equal(t, uint64(1), h.Dropped())
	e := <-ch
	require.NotNil(t, e.Data)
	assert.Equal(t, models.TradeIndex(1), e.Data.Trade)
}
