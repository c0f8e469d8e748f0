package store

import (
	"context"

	"gridexchange/internal/model"
)

type Store interface {
	UpsertExchanges(ctx context.Context, exchanges []model.StoredExchange) error
	ListLatest(ctx context.Context) ([]model.StoredExchange, error)
	Close() error
}

type NopStore struct{}

func (s *NopStore) UpsertExchanges(ctx context.Context, exchanges []model.StoredExchange) error {
	_ = ctx
	_ = exchanges
	return nil
}

func (s *NopStore) ListLatest(ctx context.Context) ([]model.StoredExchange, error) {
	_ = ctx
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}

// Multi fans writes out to every store; reads come from the first one.
type Multi []Store

func (m Multi) UpsertExchanges(ctx context.Context, exchanges []model.StoredExchange) error {
	for _, st := range m {
		if err := st.UpsertExchanges(ctx, exchanges); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) ListLatest(ctx context.Context) ([]model.StoredExchange, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].ListLatest(ctx)
}

func (m Multi) Close() error {
	var firstErr error
	for _, st := range m {
		if err := st.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
