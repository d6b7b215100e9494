package feed

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Errors
var (
	ErrMissingBook  = errors.New("frame has no order book")
	ErrMissingTrade = errors.New("frame has no trade")
	ErrMissingOrder = errors.New("frame has no order")
	ErrUnknownEvent = errors.New("unknown event type")
)

// Channels served by the exchange.
const (
	ChannelOrderBook = "orderbook"
	ChannelTrades    = "trades"
	ChannelUser      = "user"
)

// Frame types per channel.
const (
	TypeSnapshot          = "snapshot"
	TypeOrderBookUpdate   = "orderbook_update"
	TypeNewTrade          = "new_trade"
	TypeRecentTrades      = "recent_trades"
	TypeBalanceUpdate     = "balance_update"
	TypeOrderUpdate       = "order_update"
	TypeTradeNotification = "trade_notification"
)

// Order statuses reported in order_update frames.
const (
	OrderStatusOpen      = "open"
	OrderStatusPartial   = "partial"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
)

// Config holds configuration for a Feed.
type Config struct {
	Symbols    []string // Order book and trade streams to decode
	User       bool     // Decode the authenticated user stream
	BufferSize int      // Initial queue capacity
	BufferMax  int      // Queue capacity cap (0 = unbounded)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize: 1000,
		BufferMax:  100000,
	}
}

// PriceLevel is one aggregated book level.
type PriceLevel struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Total    decimal.Decimal // Cumulative quantity, as sent by the server
}

// OrderBookMsg is a full book from a snapshot or update frame.
type OrderBookMsg struct {
	Type       string // "snapshot" or "orderbook_update"
	Symbol     string
	Bids       []PriceLevel
	Asks       []PriceLevel
	ReceivedAt time.Time
}

// BestBid returns the first bid level, if any.
func (m OrderBookMsg) BestBid() (PriceLevel, bool) {
	if len(m.Bids) == 0 {
		return PriceLevel{}, false
	}
	return m.Bids[0], true
}

// BestAsk returns the first ask level, if any.
func (m OrderBookMsg) BestAsk() (PriceLevel, bool) {
	if len(m.Asks) == 0 {
		return PriceLevel{}, false
	}
	return m.Asks[0], true
}

// Spread returns best ask minus best bid. ok is false if either side is empty.
func (m OrderBookMsg) Spread() (decimal.Decimal, bool) {
	bid, okBid := m.BestBid()
	ask, okAsk := m.BestAsk()
	if !okBid || !okAsk {
		return decimal.Zero, false
	}
	return ask.Price.Sub(bid.Price), true
}

// TradeMsg is one executed trade.
type TradeMsg struct {
	ID           string
	Symbol       string
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	Side         string // "buy" or "sell"
	BuyerIsMaker bool
	ExecutedAt   time.Time // Zero if the frame carried no parseable timestamp
	Initial      bool      // Part of the recent_trades backfill
	ReceivedAt   time.Time
}

// Notional returns price × quantity.
func (t TradeMsg) Notional() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}

// OrderUpdate is a status change of one of the user's orders.
type OrderUpdate struct {
	ID             string
	Symbol         string
	Side           string
	Status         string
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
}

// Terminal reports whether the order can no longer change.
func (o OrderUpdate) Terminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled
}

// UserMsg is one event from the user channel. Exactly one of Order, Trade or
// Balance is set, according to Type.
type UserMsg struct {
	Type       string
	Order      *OrderUpdate
	Trade      *TradeMsg
	Balance    json.RawMessage // Opaque; consumers refetch balances
	ReceivedAt time.Time
}

// Stats contains runtime statistics.
type Stats struct {
	Received     int64
	Routed       int64
	DecodeErrors int64
	Dropped      int64 // Decoded but the queue was closed
	OrderBook    QueueStats
	Trade        QueueStats
	User         QueueStats
}
