package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const refundTimeout = 5 * time.Second

// Observer receives debit outcomes, typically for metrics.
type Observer func(class MessageClass, result string)

// Guard debits a bot before a paid write.
type Guard struct {
	store    BalanceStore
	costs    map[MessageClass]int64
	logger   Logger
	observer Observer
}

// Option configures a Guard.
type Option func(*Guard)

// WithCosts overrides the cost of the given classes.
func WithCosts(costs map[MessageClass]int64) Option {
	return func(g *Guard) {
		for class, cost := range costs {
			g.costs[class] = cost
		}
	}
}

// WithLogger sets the logger used for refund failures.
func WithLogger(logger Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithObserver registers a callback for every debit outcome.
func WithObserver(observer Observer) Option {
	return func(g *Guard) { g.observer = observer }
}

// NewGuard creates a guard over store.
func NewGuard(store BalanceStore, opts ...Option) *Guard {
	g := &Guard{
		store:  store,
		costs:  make(map[MessageClass]int64, len(DefaultCosts)),
		logger: zap.NewNop(),
	}
	for class, cost := range DefaultCosts {
		g.costs[class] = cost
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Cost returns the price of class.
func (g *Guard) Cost(class MessageClass) (int64, error) {
	cost, ok := g.costs[class]
	if !ok {
		return 0, fmt.Errorf("unknown message class %q", class)
	}
	return cost, nil
}

// Debit charges bot for one message of class. A rejected debit returns
// *InsufficientTokensError carrying the balance seen after the failed write.
func (g *Guard) Debit(ctx context.Context, bot string, class MessageClass) error {
	cost, err := g.Cost(class)
	if err != nil {
		return err
	}
	if cost <= 0 {
		g.observe(class, "free")
		return nil
	}

	ok, err := g.store.DebitBalance(ctx, bot, cost)
	if err != nil {
		g.observe(class, "error")
		return fmt.Errorf("debit %s: %w", bot, err)
	}
	if ok {
		g.observe(class, "debited")
		return nil
	}

	g.observe(class, "insufficient")
	balance, err := g.store.Balance(ctx, bot)
	if err != nil {
		balance = 0
	}
	return &InsufficientTokensError{Bot: bot, Required: cost, Balance: balance}
}

// SendPaid debits bot and then runs send. When send fails the cost is
// credited back; a failed refund is logged and the send error returned.
func (g *Guard) SendPaid(ctx context.Context, bot string, class MessageClass, send func(context.Context) error) error {
	if err := g.Debit(ctx, bot, class); err != nil {
		return err
	}
	sendErr := send(ctx)
	if sendErr == nil {
		return nil
	}

	cost, _ := g.Cost(class)
	if cost > 0 {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
		defer cancel()
		if err := g.store.CreditBalance(rctx, bot, cost); err != nil {
			g.logger.Warn("Token refund failed",
				zap.String("bot", bot),
				zap.String("class", string(class)),
				zap.Int64("cost", cost),
				zap.Error(err))
		} else {
			g.observe(class, "refunded")
		}
	}
	return sendErr
}

func (g *Guard) observe(class MessageClass, result string) {
	if g.observer != nil {
		g.observer(class, result)
	}
}
