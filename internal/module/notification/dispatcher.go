package notification

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// Notification is a push payload addressed to a set of device tokens.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Dispatcher delivers notifications to a user's registered devices.
type Dispatcher interface {
	Send(ctx context.Context, tokens []string, n Notification) error
}

// LogDispatcher logs deliveries instead of calling a push provider. It is
// the default dispatcher until a provider is configured.
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a dispatcher that only logs.
func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

// Send logs the notification.
func (d *LogDispatcher) Send(_ context.Context, tokens []string, n Notification) error {
	d.logger.Info("dispatching push notification",
		zap.Int("token_count", len(tokens)),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
	)
	return nil
}

// BreakerDispatcher wraps a dispatcher with a circuit breaker so a failing
// push provider cannot stall workflow activities.
type BreakerDispatcher struct {
	next    Dispatcher
	breaker *gobreaker.CircuitBreaker[any]
}

// NewBreakerDispatcher wraps next with circuit breaker protection.
func NewBreakerDispatcher(next Dispatcher, failureThreshold uint32, timeout time.Duration) *BreakerDispatcher {
	if failureThreshold == 0 {
		failureThreshold = 5
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "push-dispatcher",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
	}

	return &BreakerDispatcher{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// Send delivers through the wrapped dispatcher, failing fast while the
// breaker is open.
func (d *BreakerDispatcher) Send(ctx context.Context, tokens []string, n Notification) error {
	_, err := d.breaker.Execute(func() (any, error) {
		return nil, d.next.Send(ctx, tokens, n)
	})
	return err
}

// State reports the breaker state for health reporting.
func (d *BreakerDispatcher) State() gobreaker.State {
	return d.breaker.State()
}
