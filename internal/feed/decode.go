package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vinayak0723/cryptoexchange/internal/connection"
)

// Wire shapes. Nested objects are optional: the server may send the book or
// trade either under its own key or at the top level of the frame.

type frameWire struct {
	Type      string          `json:"type"`
	OrderBook json.RawMessage `json:"orderbook"`
	Trade     json.RawMessage `json:"trade"`
	Trades    json.RawMessage `json:"trades"`
	Order     json.RawMessage `json:"order"`
}

type bookWire struct {
	Symbol string      `json:"symbol"`
	Bids   []levelWire `json:"bids"`
	Asks   []levelWire `json:"asks"`
}

type levelWire struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Total    decimal.Decimal `json:"total"`
}

type tradeWire struct {
	ID           flexString      `json:"id"`
	Symbol       string          `json:"symbol"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Side         string          `json:"side"`
	BuyerIsMaker bool            `json:"buyer_is_maker"`
	CreatedAt    flexString      `json:"created_at"`
	Timestamp    flexString      `json:"timestamp"`
}

type orderWire struct {
	ID             flexString      `json:"id"`
	Symbol         string          `json:"symbol"`
	Side           string          `json:"side"`
	Status         string          `json:"status"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(data)
	return nil
}

// DecodeOrderBook decodes a snapshot or orderbook_update event.
func DecodeOrderBook(ev connection.Event) (OrderBookMsg, error) {
	var frame frameWire
	if err := json.Unmarshal(ev.Raw, &frame); err != nil {
		return OrderBookMsg{}, fmt.Errorf("decode frame: %w", err)
	}

	body := nested(frame.OrderBook, ev.Raw)

	var wire bookWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return OrderBookMsg{}, fmt.Errorf("decode order book: %w", err)
	}
	if wire.Bids == nil && wire.Asks == nil {
		return OrderBookMsg{}, ErrMissingBook
	}

	return OrderBookMsg{
		Type:       frame.Type,
		Symbol:     symbolOf(ev, wire.Symbol),
		Bids:       toLevels(wire.Bids),
		Asks:       toLevels(wire.Asks),
		ReceivedAt: ev.ReceivedAt,
	}, nil
}

// DecodeTrades decodes new_trade (one trade) and recent_trades (a backfill
// batch, marked Initial) events.
func DecodeTrades(ev connection.Event) ([]TradeMsg, error) {
	var frame frameWire
	if err := json.Unmarshal(ev.Raw, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch frame.Type {
	case TypeRecentTrades:
		var wires []tradeWire
		if len(frame.Trades) > 0 && !isNull(frame.Trades) {
			if err := json.Unmarshal(frame.Trades, &wires); err != nil {
				return nil, fmt.Errorf("decode recent trades: %w", err)
			}
		}
		out := make([]TradeMsg, 0, len(wires))
		for _, w := range wires {
			t := toTrade(w, ev)
			t.Initial = true
			out = append(out, t)
		}
		return out, nil

	case TypeNewTrade, TypeTradeNotification:
		t, err := decodeTrade(frame, ev)
		if err != nil {
			return nil, err
		}
		return []TradeMsg{t}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Type)
}

// DecodeUser decodes balance_update, order_update and trade_notification events.
func DecodeUser(ev connection.Event) (UserMsg, error) {
	var frame frameWire
	if err := json.Unmarshal(ev.Raw, &frame); err != nil {
		return UserMsg{}, fmt.Errorf("decode frame: %w", err)
	}

	msg := UserMsg{Type: frame.Type, ReceivedAt: ev.ReceivedAt}

	switch frame.Type {
	case TypeBalanceUpdate:
		msg.Balance = append(json.RawMessage(nil), ev.Raw...)

	case TypeOrderUpdate:
		var wire orderWire
		if err := json.Unmarshal(nested(frame.Order, ev.Raw), &wire); err != nil {
			return UserMsg{}, fmt.Errorf("decode order: %w", err)
		}
		if wire.ID == "" && wire.Status == "" {
			return UserMsg{}, ErrMissingOrder
		}
		msg.Order = &OrderUpdate{
			ID:             string(wire.ID),
			Symbol:         wire.Symbol,
			Side:           wire.Side,
			Status:         strings.ToLower(wire.Status),
			Price:          wire.Price,
			Quantity:       wire.Quantity,
			FilledQuantity: wire.FilledQuantity,
		}

	case TypeTradeNotification:
		t, err := decodeTrade(frame, ev)
		if err != nil {
			return UserMsg{}, err
		}
		msg.Trade = &t

	default:
		return UserMsg{}, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Type)
	}

	return msg, nil
}

func decodeTrade(frame frameWire, ev connection.Event) (TradeMsg, error) {
	var wire tradeWire
	if err := json.Unmarshal(nested(frame.Trade, ev.Raw), &wire); err != nil {
		return TradeMsg{}, fmt.Errorf("decode trade: %w", err)
	}
	if wire.Price.IsZero() && wire.Quantity.IsZero() {
		return TradeMsg{}, ErrMissingTrade
	}
	return toTrade(wire, ev), nil
}

func toTrade(w tradeWire, ev connection.Event) TradeMsg {
	ts := w.CreatedAt
	if ts == "" {
		ts = w.Timestamp
	}

	return TradeMsg{
		ID:           string(w.ID),
		Symbol:       symbolOf(ev, w.Symbol),
		Price:        w.Price,
		Quantity:     w.Quantity,
		Side:         strings.ToLower(w.Side),
		BuyerIsMaker: w.BuyerIsMaker,
		ExecutedAt:   parseTime(string(ts)),
		ReceivedAt:   ev.ReceivedAt,
	}
}

func toLevels(wires []levelWire) []PriceLevel {
	levels := make([]PriceLevel, len(wires))
	for i, w := range wires {
		levels[i] = PriceLevel{Price: w.Price, Quantity: w.Quantity, Total: w.Total}
	}
	return levels
}

// nested returns inner when present, otherwise the whole frame.
func nested(inner, frame json.RawMessage) json.RawMessage {
	if len(inner) == 0 || isNull(inner) {
		return frame
	}
	return inner
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// symbolOf prefers the subscription's symbol over the frame's.
func symbolOf(ev connection.Event, fromFrame string) string {
	if s := ev.Params["symbol"]; s != "" {
		return s
	}
	return fromFrame
}

// parseTime accepts RFC 3339 strings and unix seconds or milliseconds.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		// Values past year 2286 in seconds are milliseconds
		if f > 1e10 {
			return time.UnixMilli(int64(f)).UTC()
		}
		sec := int64(f)
		return time.Unix(sec, int64((f-float64(sec))*1e9)).UTC()
	}
	return time.Time{}
}
