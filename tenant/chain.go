package tenant

import (
	"context"
	"errors"
	"net/http"

	"github.com/hyvewellness/tenantgate/logger"
)

// Resolution is the per-request outcome of a successful Chain run.
type Resolution struct {
	Tenant     *Tenant
	Strategy   string   // strategy that produced the tenant
	Identifier string   // signal value the strategy matched on
	Rule       Rule     // lookup rule inside the strategy
	Checked    []string // strategies whose signal was present, in order
}

// ChainConfig selects and parameterizes the default strategies.
type ChainConfig struct {
	Header              string
	ForwardedHostHeader string
	QueryParam          string

	// IgnoreForwardedHost drops the forwarded-host strategy for deployments that are not
	// behind a proxy which overwrites the header.
	IgnoreForwardedHost bool
	// QueryFallback enables the query-parameter strategy.
	QueryFallback bool
}

// Chain tries strategies in priority order and stops at the first active tenant.
type Chain struct {
	dir        Directory
	strategies []Strategy
	log        logger.Logger
}

// NewChain builds the standard chain: header, forwarded host, origin, host, and the
// query parameter when enabled.
func NewChain(dir Directory, cfg ChainConfig, log logger.Logger) *Chain {
	strategies := []Strategy{HeaderStrategy(cfg.Header)}
	if !cfg.IgnoreForwardedHost {
		strategies = append(strategies, ForwardedHostStrategy(cfg.ForwardedHostHeader))
	}
	strategies = append(strategies, OriginStrategy(), HostStrategy())
	if cfg.QueryFallback {
		strategies = append(strategies, QueryStrategy(cfg.QueryParam))
	}
	return NewCustomChain(dir, log, strategies...)
}

// NewCustomChain builds a chain over an explicit strategy order.
func NewCustomChain(dir Directory, log logger.Logger, strategies ...Strategy) *Chain {
	if log == nil {
		log = logger.Nop()
	}
	return &Chain{dir: dir, strategies: strategies, log: log}
}

// Strategies returns the strategy names in evaluation order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}

// Resolve runs the chain for r. Strategies whose signal is absent are skipped; a miss
// moves on to the next strategy. When every strategy misses the error is a
// *NotFoundError. Any other lookup error (the directory being unavailable) ends the run
// immediately so a request is never resolved by a lower-priority signal by accident.
func (c *Chain) Resolve(ctx context.Context, r *http.Request) (*Resolution, error) {
	var checked []string

	for _, s := range c.strategies {
		signal, ok := s.Extract(r)
		if !ok {
			continue
		}
		checked = append(checked, s.Name())

		t, rule, err := s.Lookup(ctx, c.dir, signal)
		if err == nil {
			recordResolution(ctx, s.Name(), rule, OutcomeResolved)
			return &Resolution{
				Tenant:     t,
				Strategy:   s.Name(),
				Identifier: signal,
				Rule:       rule,
				Checked:    checked,
			}, nil
		}
		if !errors.Is(err, ErrTenantNotFound) {
			recordResolution(ctx, s.Name(), "", OutcomeError)
			return nil, err
		}

		c.log.Debug().
			Str("strategy", s.Name()).
			Str("signal", signal).
			Str("reason", err.Error()).
			Msg("Tenant strategy did not match")
	}

	recordResolution(ctx, "", "", OutcomeNotFound)
	return nil, &NotFoundError{Checked: checked}
}
