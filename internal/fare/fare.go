// Package fare prices completed rides. Calculators are pure: they read the
// order's route and time metrics and never mutate it.
package fare

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"taxi-dispatch/internal/domain"
)

type Strategy string

const (
	StrategyDistanceOnly    Strategy = "distance_only"
	StrategyDistanceAndTime Strategy = "distance_and_time"
)

func ParseStrategy(name string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(name))) {
	case StrategyDistanceOnly:
		return StrategyDistanceOnly, nil
	case StrategyDistanceAndTime:
		return StrategyDistanceAndTime, nil
	default:
		return "", fmt.Errorf("unknown fare strategy %q", name)
	}
}

type Rates struct {
	Base   decimal.Decimal
	PerKm  decimal.Decimal
	PerMin decimal.Decimal
}

type Calculator interface {
	Calculate(order *domain.Order) decimal.Decimal
}

func New(strategy Strategy, rates Rates) (Calculator, error) {
	switch strategy {
	case StrategyDistanceOnly:
		return DistanceOnly{Rates: rates}, nil
	case StrategyDistanceAndTime:
		return DistanceAndTime{Rates: rates}, nil
	default:
		return nil, fmt.Errorf("unknown fare strategy %q", strategy)
	}
}

// DistanceOnly charges base + km * perKm.
type DistanceOnly struct {
	Rates Rates
}

func (c DistanceOnly) Calculate(order *domain.Order) decimal.Decimal {
	total := c.Rates.Base.Add(order.ApproxDistanceKm.Mul(c.Rates.PerKm))
	return round(total)
}

// DistanceAndTime charges base + km * perKm + minutes * perMin. Minutes are
// the actual trip duration once known, otherwise the routing estimate.
type DistanceAndTime struct {
	Rates Rates
}

func (c DistanceAndTime) Calculate(order *domain.Order) decimal.Decimal {
	minutes := order.ApproxDurationMin
	if order.ActualDurationMin != nil {
		minutes = *order.ActualDurationMin
	}
	total := c.Rates.Base.
		Add(order.ApproxDistanceKm.Mul(c.Rates.PerKm)).
		Add(minutes.Mul(c.Rates.PerMin))
	return round(total)
}

// round is half-up for the non-negative amounts fares produce.
func round(v decimal.Decimal) decimal.Decimal {
	return v.Round(2)
}
