package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vinayak0723/cryptoexchange/internal/connection"
)

func event(name string, params connection.Params, raw string) connection.Event {
	return connection.Event{
		Name:       name,
		Params:     params,
		Raw:        json.RawMessage(raw),
		ReceivedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestDecodeOrderBook_Nested(t *testing.T) {
	ev := event(TypeSnapshot, connection.Params{"symbol": "BTC_USDT"}, `{
		"type": "snapshot",
		"orderbook": {
			"bids": [{"price": "42000.50", "quantity": "0.25", "total": "0.25"}],
			"asks": [{"price": 42001, "quantity": 1.5, "total": 1.5}, {"price": "42002", "quantity": "2", "total": "3.5"}]
		}
	}`)

	msg, err := DecodeOrderBook(ev)
	require.NoError(t, err)

	assert.Equal(t, TypeSnapshot, msg.Type)
	assert.Equal(t, "BTC_USDT", msg.Symbol)
	require.Len(t, msg.Bids, 1)
	require.Len(t, msg.Asks, 2)
	assert.True(t, msg.Bids[0].Price.Equal(dec("42000.50")))
	assert.True(t, msg.Asks[0].Quantity.Equal(dec("1.5")))
	assert.True(t, msg.Asks[1].Total.Equal(dec("3.5")))
	assert.Equal(t, ev.ReceivedAt, msg.ReceivedAt)

	spread, ok := msg.Spread()
	require.True(t, ok)
	assert.True(t, spread.Equal(dec("0.5")), "spread = %s", spread)
}

func TestDecodeOrderBook_TopLevel(t *testing.T) {
	ev := event(TypeOrderBookUpdate, nil, `{"type":"orderbook_update","symbol":"ETH_USDT","bids":[],"asks":[{"price":"3000","quantity":"1","total":"1"}]}`)

	msg, err := DecodeOrderBook(ev)
	require.NoError(t, err)
	assert.Equal(t, "ETH_USDT", msg.Symbol)
	assert.Empty(t, msg.Bids)
	assert.Len(t, msg.Asks, 1)

	_, ok := msg.Spread()
	assert.False(t, ok)
}

func TestDecodeOrderBook_EmptyBook(t *testing.T) {
	ev := event(TypeSnapshot, nil, `{"type":"snapshot","orderbook":{"bids":[],"asks":[]}}`)

	msg, err := DecodeOrderBook(ev)
	require.NoError(t, err)
	assert.Empty(t, msg.Bids)
	assert.Empty(t, msg.Asks)
}

func TestDecodeOrderBook_Errors(t *testing.T) {
	_, err := DecodeOrderBook(event(TypeSnapshot, nil, `{"type":"snapshot"}`))
	assert.ErrorIs(t, err, ErrMissingBook)

	_, err = DecodeOrderBook(event(TypeSnapshot, nil, `{"type":"snapshot","orderbook":{"bids":[{"price":"abc"}]}}`))
	assert.Error(t, err)
}

func TestDecodeTrades_NewTrade(t *testing.T) {
	ev := event(TypeNewTrade, connection.Params{"symbol": "BTC_USDT"}, `{
		"type": "new_trade",
		"trade": {"id": 981, "price": "42000", "quantity": "0.1", "side": "BUY", "buyer_is_maker": true, "created_at": "2026-01-02T03:04:00.123Z"}
	}`)

	trades, err := DecodeTrades(ev)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	tr := trades[0]
	assert.Equal(t, "981", tr.ID)
	assert.Equal(t, "BTC_USDT", tr.Symbol)
	assert.Equal(t, "buy", tr.Side)
	assert.True(t, tr.BuyerIsMaker)
	assert.False(t, tr.Initial)
	assert.True(t, tr.Notional().Equal(dec("4200")))
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 0, 123000000, time.UTC), tr.ExecutedAt.UTC())
}

func TestDecodeTrades_TopLevelWithTimestamp(t *testing.T) {
	ev := event(TypeNewTrade, nil, `{"type":"new_trade","id":"t-1","price":"10","quantity":"3","side":"sell","timestamp":1767323045}`)

	trades, err := DecodeTrades(ev)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "t-1", trades[0].ID)
	assert.Equal(t, int64(1767323045), trades[0].ExecutedAt.Unix())
}

func TestDecodeTrades_Recent(t *testing.T) {
	ev := event(TypeRecentTrades, connection.Params{"symbol": "ETH_USDT"}, `{
		"type": "recent_trades",
		"trades": [
			{"id": 1, "price": "3000", "quantity": "1", "side": "buy"},
			{"id": 2, "price": "3001", "quantity": "2", "side": "sell"}
		]
	}`)

	trades, err := DecodeTrades(ev)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	for _, tr := range trades {
		assert.True(t, tr.Initial)
		assert.Equal(t, "ETH_USDT", tr.Symbol)
	}
	assert.Equal(t, "2", trades[1].ID)

	// Missing list is an empty backfill
	trades, err = DecodeTrades(event(TypeRecentTrades, nil, `{"type":"recent_trades"}`))
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestDecodeTrades_Errors(t *testing.T) {
	_, err := DecodeTrades(event(TypeNewTrade, nil, `{"type":"new_trade"}`))
	assert.ErrorIs(t, err, ErrMissingTrade)

	_, err = DecodeTrades(event("ticker", nil, `{"type":"ticker"}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = DecodeTrades(event(TypeNewTrade, nil, `not json`))
	assert.Error(t, err)
}

func TestDecodeUser(t *testing.T) {
	t.Run("order update", func(t *testing.T) {
		msg, err := DecodeUser(event(TypeOrderUpdate, nil, `{
			"type": "order_update",
			"order": {"id": 55, "symbol": "BTC_USDT", "side": "buy", "status": "FILLED", "price": "41000", "quantity": "0.5", "filled_quantity": "0.5"}
		}`))
		require.NoError(t, err)
		require.NotNil(t, msg.Order)
		assert.Equal(t, "55", msg.Order.ID)
		assert.Equal(t, OrderStatusFilled, msg.Order.Status)
		assert.True(t, msg.Order.Terminal())
		assert.True(t, msg.Order.FilledQuantity.Equal(dec("0.5")))
		assert.Nil(t, msg.Trade)
	})

	t.Run("order update top level", func(t *testing.T) {
		msg, err := DecodeUser(event(TypeOrderUpdate, nil, `{"type":"order_update","id":"o-9","status":"partial","side":"sell","quantity":"2"}`))
		require.NoError(t, err)
		assert.Equal(t, "o-9", msg.Order.ID)
		assert.False(t, msg.Order.Terminal())
	})

	t.Run("trade notification", func(t *testing.T) {
		msg, err := DecodeUser(event(TypeTradeNotification, nil, `{"type":"trade_notification","trade":{"id":3,"price":"100","quantity":"2"}}`))
		require.NoError(t, err)
		require.NotNil(t, msg.Trade)
		assert.True(t, msg.Trade.Notional().Equal(dec("200")))
	})

	t.Run("balance update", func(t *testing.T) {
		raw := `{"type":"balance_update","asset":"USDT","available":"10"}`
		msg, err := DecodeUser(event(TypeBalanceUpdate, nil, raw))
		require.NoError(t, err)
		assert.JSONEq(t, raw, string(msg.Balance))
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := DecodeUser(event("announcement", nil, `{"type":"announcement"}`))
		assert.ErrorIs(t, err, ErrUnknownEvent)
	})

	t.Run("missing order", func(t *testing.T) {
		_, err := DecodeUser(event(TypeOrderUpdate, nil, `{"type":"order_update"}`))
		assert.ErrorIs(t, err, ErrMissingOrder)
	})
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"garbage", time.Time{}},
		{"2026-01-02T03:04:05Z", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"1767323045", time.Unix(1767323045, 0).UTC()},
		{"1767323045123", time.UnixMilli(1767323045123).UTC()},
	}

	for _, tt := range tests {
		assert.True(t, tt.want.Equal(parseTime(tt.in)), "parseTime(%q) = %v, want %v", tt.in, parseTime(tt.in), tt.want)
	}
}
