// Package notify fans operator alerts out to one or more channels (Telegram,
// Discord). Alerts are tagged with an event type so operators can subscribe
// to the subset they care about.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"dexradar/internal/domain"
)

// Event types emitted by the pipeline.
const (
	EventProfitable = "opportunity.profitable"
	EventDegraded   = "feed.degraded"
)

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches alerts to all senders, filtered by event type. An
// empty allow-list lets every event through.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only events
// named in the events slice are forwarded; an empty slice allows all.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify delivers a message if the event type passes the filter.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// AlertOpportunity formats a simulated-profitable candidate and delivers it
// under the EventProfitable type. Delivery failures are logged, never
// propagated; alerting is strictly best effort.
func (n *Notifier) AlertOpportunity(ctx context.Context, cand domain.OpportunityCandidate) {
	title := fmt.Sprintf("Profitable %s arbitrage: %s", cand.Type, strings.Join(cand.Path, " -> "))

	var b strings.Builder
	switch cand.Type {
	case domain.OpportunitySimple:
		fmt.Fprintf(&b, "Buy %s @ %s, sell %s @ %s (spread %s%%)\n",
			cand.BuyVenue, cand.BuyPrice.StringFixed(6),
			cand.SellVenue, cand.SellPrice.StringFixed(6),
			cand.SpreadPct.StringFixed(4),
		)
	case domain.OpportunityTriangular:
		for i, leg := range cand.Legs {
			fmt.Fprintf(&b, "Leg %d: %s -> %s on %s @ %s\n",
				i+1, leg.TokenIn, leg.TokenOut, leg.Venue, leg.Price.StringFixed(6))
		}
	}
	fmt.Fprintf(&b, "Notional $%s, net $%s (ROI %s%%)",
		cand.NotionalUSD.StringFixed(2), cand.NetProfitUSD.StringFixed(2), cand.ROIPct.StringFixed(4))
	if cand.Simulation != nil {
		fmt.Fprintf(&b, "\nSimulated net $%s after %s%% slippage",
			cand.Simulation.NetProfitUSD.StringFixed(2), cand.Simulation.SlippagePct.StringFixed(2))
	}

	if err := n.Notify(ctx, EventProfitable, title, b.String()); err != nil {
		n.logger.Warn("alert delivery failed",
			slog.String("candidate", cand.ID),
			slog.String("error", err.Error()),
		)
	}
}

// dispatch sends to every sender; one channel failing does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
