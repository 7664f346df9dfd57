package provider

import (
	"context"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/frahmantamala/pos-payments/internal/core/datamodel/feeconfig"
	datamodel "github.com/frahmantamala/pos-payments/internal/core/datamodel/payment"
)

// SelectionConfig is the slice of configuration the selector needs:
// per-restaurant enablement and the rate tables used for ranking.
type SelectionConfig interface {
	ProviderEnabled(ctx context.Context, provider, restaurantID string) bool
	GetProviderRate(ctx context.Context, provider string) (*feeconfig.ProviderRate, error)
}

// Selector ranks eligible provider clients for a payment, cheapest
// effective fee first. It holds the registered clients; eligibility comes
// from configuration, never from call-site overrides.
type Selector struct {
	clients []Client
	config  SelectionConfig
	logger  *slog.Logger
}

func NewSelector(clients []Client, config SelectionConfig, logger *slog.Logger) *Selector {
	return &Selector{
		clients: clients,
		config:  config,
		logger:  logger,
	}
}

type rankedClient struct {
	client Client
	fee    decimal.Decimal
}

// Rank returns the ordered fallback chain for one payment: clients that
// support the method and are enabled for the restaurant, ascending by
// effective fee with a stable name tie-break. Cash is a single
// deterministic provider with no fallback chain.
func (s *Selector) Rank(ctx context.Context, amount decimal.Decimal, method datamodel.Method, restaurantID string, monthlyVolume *decimal.Decimal) []Client {
	if method == datamodel.MethodCash {
		for _, client := range s.clients {
			if client.Supports(datamodel.MethodCash) {
				return []Client{client}
			}
		}
		return nil
	}

	ranked := make([]rankedClient, 0, len(s.clients))
	for _, client := range s.clients {
		if !client.Supports(method) {
			continue
		}
		if !s.config.ProviderEnabled(ctx, client.Name(), restaurantID) {
			s.logger.Debug("provider not enabled for restaurant",
				"provider", client.Name(),
				"restaurant_id", restaurantID)
			continue
		}
		ranked = append(ranked, rankedClient{
			client: client,
			fee:    s.effectiveFee(ctx, client, amount, monthlyVolume),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		cmp := ranked[i].fee.Cmp(ranked[j].fee)
		if cmp != 0 {
			return cmp < 0
		}
		return ranked[i].client.Name() < ranked[j].client.Name()
	})

	ordered := make([]Client, len(ranked))
	for i, rc := range ranked {
		ordered[i] = rc.client
	}
	return ordered
}

// effectiveFee prefers the configured rate table (with volume tiers); the
// client's own declared rate is the fallback when no table is configured.
func (s *Selector) effectiveFee(ctx context.Context, client Client, amount decimal.Decimal, monthlyVolume *decimal.Decimal) decimal.Decimal {
	rate, err := s.config.GetProviderRate(ctx, client.Name())
	if err != nil || rate == nil {
		return client.CalculateFee(amount)
	}
	return rate.EffectiveFee(amount, monthlyVolume)
}
