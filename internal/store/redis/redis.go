package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gridexchange/internal/model"
	"gridexchange/internal/store"
)

const (
	defaultPrefix = "exchange"
)

// upsertNewest writes the record unless a newer one is already stored.
// KEYS[1] record hash, KEYS[2] timestamp hash; ARGV zone key, unix millis, json.
var upsertNewest = redis.NewScript(`
local current = redis.call('HGET', KEYS[2], ARGV[1])
if current and tonumber(current) > tonumber(ARGV[2]) then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[3])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
return 1
`)

type Store struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
}

func New(client *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger, prefix: defaultPrefix}
}

// Dial connects to addr and pings it before returning.
func Dial(ctx context.Context, addr string, db int, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", addr, err)
	}
	return New(client, logger), nil
}

func (s *Store) WithPrefix(prefix string) *Store {
	if prefix != "" {
		s.prefix = prefix
	}
	return s
}

func (s *Store) recordsKey() string {
	return s.prefix + ":latest"
}

func (s *Store) timestampsKey() string {
	return s.prefix + ":latest:ts"
}

func (s *Store) UpsertExchanges(ctx context.Context, exchanges []model.StoredExchange) error {
	now := time.Now().UTC()
	keys := []string{s.recordsKey(), s.timestampsKey()}
	for _, exchange := range exchanges {
		if exchange.IngestedAt.IsZero() {
			exchange.IngestedAt = now
		}
		payload, err := json.Marshal(exchange)
		if err != nil {
			return err
		}

		written, err := upsertNewest.Run(ctx, s.client, keys,
			exchange.SortedZoneKeys,
			strconv.FormatInt(exchange.Datetime.UnixMilli(), 10),
			string(payload),
		).Int()
		if err != nil {
			return fmt.Errorf("redis: upsert %s: %w", exchange.SortedZoneKeys, err)
		}
		if written == 0 {
			s.logger.Debug("skipped stale exchange",
				slog.String("key", exchange.SortedZoneKeys),
				slog.Time("datetime", exchange.Datetime),
			)
		}
	}
	return nil
}

func (s *Store) ListLatest(ctx context.Context) ([]model.StoredExchange, error) {
	values, err := s.client.HGetAll(ctx, s.recordsKey()).Result()
	if err != nil {
		return nil, err
	}

	out := make([]model.StoredExchange, 0, len(values))
	for key, value := range values {
		var exchange model.StoredExchange
		if err := json.Unmarshal([]byte(value), &exchange); err != nil {
			s.logger.Warn("dropping undecodable exchange", slog.String("key", key), slog.Any("error", err))
			continue
		}
		out = append(out, exchange)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortedZoneKeys < out[j].SortedZoneKeys })
	return out, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

var _ store.Store = (*Store)(nil)
