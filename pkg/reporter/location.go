package reporter

import (
	"context"
	"fmt"
	"time"

	"beacon/pkg/types"
)

// Accuracy selects how hard the positioning hardware should work for a
// fix. Higher accuracy costs more time and power and fails more often
// indoors.
type Accuracy int

const (
	AccuracyHigh Accuracy = iota
	AccuracyBalanced
	AccuracyCoarse
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyHigh:
		return "high"
	case AccuracyBalanced:
		return "balanced"
	case AccuracyCoarse:
		return "coarse"
	default:
		return "unknown"
	}
}

// LocationProvider abstracts the device positioning source. CurrentLocation
// must respect ctx cancellation; a provider that cannot produce a fix at
// the requested accuracy returns an error and the client falls back to
// the next tier.
type LocationProvider interface {
	CurrentLocation(ctx context.Context, accuracy Accuracy) (types.Location, error)
}

// accuracyTiers is the fallback order for acquiring a fix. A degraded
// position still beats no position for a dispatcher.
var accuracyTiers = []Accuracy{AccuracyHigh, AccuracyBalanced, AccuracyCoarse}

// acquireLocation walks the accuracy tiers until one yields a fix. Each
// tier gets its own timeout so a hung GPS query cannot starve the
// cheaper fallbacks.
func acquireLocation(ctx context.Context, provider LocationProvider, perTierTimeout time.Duration) (types.Location, error) {
	var lastErr error
	for _, tier := range accuracyTiers {
		tierCtx, cancel := context.WithTimeout(ctx, perTierTimeout)
		loc, err := provider.CurrentLocation(tierCtx, tier)
		cancel()
		if err == nil {
			if loc.Timestamp.IsZero() {
				loc.Timestamp = time.Now()
			}
			return loc, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return types.Location{}, ctx.Err()
		}
	}
	return types.Location{}, fmt.Errorf("%w: %v", ErrLocationUnavailable, lastErr)
}
