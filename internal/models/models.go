package models

import "time"

// BlockNumber is the host's block height.
type BlockNumber uint64

// TraderIndex is the dense sequence number assigned to a trader at registration.
type TraderIndex uint64

// TradeIndex is the dense sequence number assigned to a trade at initiation.
type TradeIndex uint64

// TraderProfile represents a registered trader and the quotes they advertise
type TraderProfile struct {
	Index    TraderIndex `json:"index"`
	Name     []byte      `json:"name"`
	Headline []byte      `json:"headline"`
	Country  uint8       `json:"country"`
	Method   []byte      `json:"method"`
	AskPrice Amount      `json:"ask_price"` // price the trader sells at
	AskLimit Amount      `json:"ask_limit"`
	BidPrice Amount      `json:"bid_price"` // price the trader buys at
	BidLimit Amount      `json:"bid_limit"`
	Account  AccountID   `json:"account"`
	Created  BlockNumber `json:"created"`
}

// Trade represents one escrow-secured purchase from a trader
type Trade struct {
	ID      TradeIndex  `json:"id"`
	Price   Amount      `json:"price"`
	Amount  Amount      `json:"amount"`
	Buyer   AccountID   `json:"buyer"`
	Seller  TraderIndex `json:"seller"`
	State   TradeState  `json:"state"`
	Created BlockNumber `json:"created"`
}

// Initiated is true for every stored trade.
func (t *Trade) Initiated() bool {
	return true
}

// Escrowed reports whether the seller's funds were ever moved into escrow.
// A cancelled trade keeps reporting true; use State to tell it apart.
func (t *Trade) Escrowed() bool {
	return t.State == TradeEscrowed || t.State == TradeCompleted || t.State == TradeCancelled
}

// Received reports whether the buyer confirmed receipt.
func (t *Trade) Received() bool {
	return t.State == TradeCompleted
}

// Credential binds a login to the account it authenticates as
type Credential struct {
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Account      AccountID `json:"account"`
	CreatedAt    time.Time `json:"created_at"`
}

// InitiatedBuy is emitted once per successful trade initiation
type InitiatedBuy struct {
	Trade  TradeIndex  `json:"trade"`
	Buyer  AccountID   `json:"buyer"`
	Seller TraderIndex `json:"seller"`
	Amount Amount      `json:"amount"`
}
