package exchange

import (
	"context"

	"gridexchange/internal/model"
	"gridexchange/internal/providers"
)

// FetchExchange performs one fetch and returns the latest exchange between the
// two zones, given in either order. Unknown pairs fail before any request is
// made; source errors are returned as-is.
func (n *Normalizer) FetchExchange(ctx context.Context, source providers.ReadingSource, zoneA, zoneB string) (model.ExchangeRecord, error) {
	if _, _, err := resolvePair(zoneA, zoneB); err != nil {
		return model.ExchangeRecord{}, err
	}

	readings, err := source.FetchReadings(ctx)
	if err != nil {
		return model.ExchangeRecord{}, err
	}
	return n.Normalize(zoneA, zoneB, readings)
}

func (n *Normalizer) FetchAll(ctx context.Context, source providers.ReadingSource) ([]model.ExchangeRecord, error) {
	readings, err := source.FetchReadings(ctx)
	if err != nil {
		return nil, err
	}
	return n.NormalizeAll(readings)
}

func FetchExchange(ctx context.Context, source providers.ReadingSource, zoneA, zoneB string) (model.ExchangeRecord, error) {
	return NewNormalizer().FetchExchange(ctx, source, zoneA, zoneB)
}

func FetchAll(ctx context.Context, source providers.ReadingSource) ([]model.ExchangeRecord, error) {
	return NewNormalizer().FetchAll(ctx, source)
}
