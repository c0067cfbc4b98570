package credit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisURL  = "redis://localhost:6379"
	defaultQueryCost = 1
	connectTimeout   = 2 * time.Second
	opTimeout        = 2 * time.Second
)

// RedisOptions configures a RedisLedger.
type RedisOptions struct {
	URL            string
	QueryCost      int64
	InitialBalance int64
}

// RedisLedger implements Ledger on a Redis counter per requester. Unseen
// requesters are seeded with the initial balance on first contact.
type RedisLedger struct {
	client  *redis.Client
	cost    int64
	initial int64
}

// NewRedisLedger connects to Redis and verifies the connection.
func NewRedisLedger(opts RedisOptions) (*RedisLedger, error) {
	if opts.URL == "" {
		opts.URL = defaultRedisURL
	}
	if opts.QueryCost <= 0 {
		opts.QueryCost = defaultQueryCost
	}
	if opts.InitialBalance < 0 {
		opts.InitialBalance = 0
	}
	parsed, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(parsed)
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisLedger{client: client, cost: opts.QueryCost, initial: opts.InitialBalance}, nil
}

// Close shuts down the Redis client.
func (l *RedisLedger) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

// TryDeduct charges one query cost if the balance covers it.
func (l *RedisLedger) TryDeduct(ctx context.Context, userID string) (bool, error) {
	key, err := l.key(userID)
	if err != nil {
		return false, err
	}
	cctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := l.client.Eval(cctx, deductScript, []string{key}, l.cost, l.initial).Int64()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res >= 0, nil
}

// Refund returns one query cost to the requester.
func (l *RedisLedger) Refund(ctx context.Context, userID string) error {
	key, err := l.key(userID)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := l.client.Eval(cctx, creditScript, []string{key}, l.cost, l.initial).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Balance reports the effective balance, seeding unseen requesters.
func (l *RedisLedger) Balance(ctx context.Context, userID string) (int64, error) {
	key, err := l.key(userID)
	if err != nil {
		return 0, err
	}
	cctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res, err := l.client.Eval(cctx, balanceScript, []string{key}, l.initial).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, nil
}

// Grant adds credits to the requester's balance.
func (l *RedisLedger) Grant(ctx context.Context, userID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("grant amount must be positive")
	}
	key, err := l.key(userID)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := l.client.Eval(cctx, creditScript, []string{key}, amount, l.initial).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *RedisLedger) key(userID string) (string, error) {
	if l == nil || l.client == nil {
		return "", fmt.Errorf("%w: not initialized", ErrUnavailable)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user id required")
	}
	return "credits:" + userID, nil
}

// deductScript seeds unseen keys with the initial balance, then decrements by
// the cost if the balance covers it. Returns the new balance, or -1 when
// insufficient.
const deductScript = `
local key = KEYS[1]
local cost = tonumber(ARGV[1])
local initial = tonumber(ARGV[2])
local balance = redis.call("GET", key)
if not balance then
  balance = initial
  redis.call("SET", key, balance)
else
  balance = tonumber(balance)
end
if balance < cost then
  return -1
end
return redis.call("DECRBY", key, cost)
`

// creditScript seeds unseen keys, then increments by the given amount.
const creditScript = `
local key = KEYS[1]
local amount = tonumber(ARGV[1])
local initial = tonumber(ARGV[2])
if redis.call("EXISTS", key) == 0 then
  redis.call("SET", key, initial)
end
return redis.call("INCRBY", key, amount)
`

const balanceScript = `
local key = KEYS[1]
local initial = tonumber(ARGV[1])
local balance = redis.call("GET", key)
if not balance then
  return initial
end
return tonumber(balance)
`
