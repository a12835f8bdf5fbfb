package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dexradar/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSender struct {
	name     string
	err      error
	titles   []string
	messages []string
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	if f.err != nil {
		return f.err
	}
	f.titles = append(f.titles, title)
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func TestNotifyEventFilter(t *testing.T) {
	ctx := context.Background()

	t.Run("empty filter allows everything", func(t *testing.T) {
		s := &fakeSender{name: "test"}
		n := NewNotifier([]Sender{s}, nil, discardLogger())

		require.NoError(t, n.Notify(ctx, EventDegraded, "t", "m"))
		assert.Len(t, s.titles, 1)
	})

	t.Run("unlisted event is dropped", func(t *testing.T) {
		s := &fakeSender{name: "test"}
		n := NewNotifier([]Sender{s}, []string{EventProfitable}, discardLogger())

		require.NoError(t, n.Notify(ctx, EventDegraded, "t", "m"))
		assert.Empty(t, s.titles)

		require.NoError(t, n.Notify(ctx, EventProfitable, "t", "m"))
		assert.Len(t, s.titles, 1)
	})

	t.Run("one failing sender does not stop the rest", func(t *testing.T) {
		bad := &fakeSender{name: "bad", err: errors.New("webhook gone")}
		good := &fakeSender{name: "good"}
		n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

		err := n.Notify(ctx, EventProfitable, "t", "m")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bad")
		assert.Len(t, good.titles, 1)
	})
}

func TestAlertOpportunity(t *testing.T) {
	ctx := context.Background()

	t.Run("simple candidate", func(t *testing.T) {
		s := &fakeSender{name: "test"}
		n := NewNotifier([]Sender{s}, nil, discardLogger())

		n.AlertOpportunity(ctx, domain.OpportunityCandidate{
			ID:           "cand-1",
			Type:         domain.OpportunitySimple,
			Path:         []string{"WETH", "USDT"},
			BuyVenue:     "uniswap",
			SellVenue:    "sushiswap",
			BuyPrice:     decimal.NewFromInt(2650),
			SellPrice:    decimal.NewFromInt(2700),
			SpreadPct:    decimal.NewFromFloat(1.8867),
			NotionalUSD:  decimal.NewFromInt(1000),
			NetProfitUSD: decimal.NewFromFloat(12.56),
		})

		require.Len(t, s.messages, 1)
		assert.Contains(t, s.titles[0], "WETH -> USDT")
		assert.Contains(t, s.messages[0], "uniswap")
		assert.Contains(t, s.messages[0], "12.56")
	})

	t.Run("triangular candidate lists legs", func(t *testing.T) {
		s := &fakeSender{name: "test"}
		n := NewNotifier([]Sender{s}, nil, discardLogger())

		n.AlertOpportunity(ctx, domain.OpportunityCandidate{
			ID:   "cand-2",
			Type: domain.OpportunityTriangular,
			Path: []string{"WETH", "USDT", "DAI", "WETH"},
			Legs: []domain.TradeLeg{
				{Venue: "uniswap", TokenIn: "WETH", TokenOut: "USDT", Price: decimal.NewFromInt(2650)},
				{Venue: "sushiswap", TokenIn: "USDT", TokenOut: "DAI", Price: decimal.NewFromFloat(1.001)},
				{Venue: "uniswap", TokenIn: "DAI", TokenOut: "WETH", Price: decimal.NewFromFloat(0.00038)},
			},
		})

		require.Len(t, s.messages, 1)
		assert.Contains(t, s.messages[0], "Leg 1: WETH -> USDT")
		assert.Contains(t, s.messages[0], "Leg 3: DAI -> WETH")
	})

	t.Run("delivery failure is swallowed", func(t *testing.T) {
		s := &fakeSender{name: "bad", err: errors.New("gone")}
		n := NewNotifier([]Sender{s}, nil, discardLogger())

		// Must not panic or propagate.
		n.AlertOpportunity(ctx, domain.OpportunityCandidate{Type: domain.OpportunitySimple})
	})
}

func TestDiscordSender(t *testing.T) {
	t.Run("delivers payload", func(t *testing.T) {
		var called bool
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			body, _ := io.ReadAll(r.Body)
			assert.Contains(t, string(body), "hello")
			called = true
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		d := NewDiscordSender(srv.URL)
		require.NoError(t, d.Send(context.Background(), "title", "hello"))
		assert.True(t, called)
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		d := NewDiscordSender(srv.URL)
		err := d.Send(context.Background(), "title", "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})
}
