package gateway

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/scootsmagoo/filtersfast-next-sub004/internal/domain"
)

const (
	// Transport faults are retried on the same backend this many times.
	// Declines are business outcomes and are never retried.
	transportRetries = 2
	retryDelay       = 100 * time.Millisecond
)

// Router selects one configured backend per charge. The list order is the
// default-selection rule; a caller preference overrides it when the named
// backend is configured. There is no automatic cross-gateway failover.
type Router struct {
	gateways []Gateway
	byName   map[string]Gateway
	timeout  time.Duration
	logger   *zap.Logger
}

func NewRouter(gateways []Gateway, timeout time.Duration, logger *zap.Logger) *Router {
	byName := make(map[string]Gateway, len(gateways))
	for _, gw := range gateways {
		byName[gw.Name()] = gw
	}
	return &Router{
		gateways: gateways,
		byName:   byName,
		timeout:  timeout,
		logger:   logger,
	}
}

// Charge invokes exactly one backend. The per-call timeout applies to the
// network call only; its expiry is a GatewayUnavailable, never a decline.
func (r *Router) Charge(ctx context.Context, req *Request, preferred string) (*domain.PaymentOutcome, error) {
	gw := r.pick(preferred)
	if gw == nil {
		return nil, domain.ErrGatewayUnavailable.WithDetail("no payment gateways configured")
	}

	var lastErr error
	for attempt := 0; attempt <= transportRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return nil, domain.ErrGatewayUnavailable.WithDetail("charge aborted: %v", ctx.Err())
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		outcome, err := gw.Charge(callCtx, req)
		cancel()
		if err == nil {
			return outcome, nil
		}

		lastErr = err
		r.logger.Warn("gateway transport fault",
			zap.String("gateway", gw.Name()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}

	return nil, domain.ErrGatewayUnavailable.WithDetail("gateway %s unreachable: %v", gw.Name(), lastErr)
}

func (r *Router) pick(preferred string) Gateway {
	if preferred != "" {
		if gw, ok := r.byName[preferred]; ok {
			return gw
		}
		r.logger.Warn("preferred gateway not configured, using default",
			zap.String("preferred", preferred))
	}
	if len(r.gateways) == 0 {
		return nil
	}
	return r.gateways[0]
}

// Names lists the configured backends in selection order.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.gateways))
	for _, gw := range r.gateways {
		names = append(names, gw.Name())
	}
	return names
}
