package cost

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// MemoryStore holds the current month only; a write for a later month
// replaces the ledger.
type MemoryStore struct {
	mu     sync.Mutex
	ledger Ledger
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) current(month string) *Ledger {
	if s.ledger.Month != month {
		s.ledger = Ledger{Month: month}
	}
	return &s.ledger
}

func (s *MemoryStore) Add(_ context.Context, month string, cat Category, amount decimal.Decimal) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l := s.current(month)
	switch cat {
	case CategoryAI:
		l.AI = l.AI.Add(amount)
	case CategoryTTS:
		l.TTS = l.TTS.Add(amount)
	case CategorySTT:
		l.STT = l.STT.Add(amount)
	default:
		return Ledger{}, fmt.Errorf("unknown cost category %q", cat)
	}
	return *l, nil
}

func (s *MemoryStore) Get(_ context.Context, month string) (Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.current(month), nil
}

// ledgerTTL keeps a month's hash around a little past its end.
const ledgerTTL = 40 * 24 * time.Hour

// RedisStore keeps one hash per month so every gateway instance shares the
// same ledger.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func ledgerKey(month string) string {
	return fmt.Sprintf("cost:%s", month)
}

func (s *RedisStore) Add(ctx context.Context, month string, cat Category, amount decimal.Decimal) (Ledger, error) {
	key := ledgerKey(month)

	pipe := s.rdb.TxPipeline()
	pipe.HIncrByFloat(ctx, key, string(cat), amount.InexactFloat64())
	pipe.Expire(ctx, key, ledgerTTL)
	all := pipe.HGetAll(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return Ledger{}, fmt.Errorf("failed to add cost: %w", err)
	}

	return parseLedger(month, all.Val())
}

func (s *RedisStore) Get(ctx context.Context, month string) (Ledger, error) {
	fields, err := s.rdb.HGetAll(ctx, ledgerKey(month)).Result()
	if err != nil {
		return Ledger{}, fmt.Errorf("failed to get cost ledger: %w", err)
	}
	return parseLedger(month, fields)
}

func parseLedger(month string, fields map[string]string) (Ledger, error) {
	l := Ledger{Month: month}
	for field, dst := range map[string]*decimal.Decimal{
		string(CategoryAI):  &l.AI,
		string(CategoryTTS): &l.TTS,
		string(CategorySTT): &l.STT,
	} {
		raw, ok := fields[field]
		if !ok {
			continue
		}
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return Ledger{}, fmt.Errorf("invalid %s cost %q: %w", field, raw, err)
		}
		*dst = v
	}
	return l, nil
}
