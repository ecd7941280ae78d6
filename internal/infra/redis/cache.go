package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/keelhq/keelbooks/pkg/logger"
	"github.com/keelhq/keelbooks/pkg/money"
)

const (
	// DefaultTTL is the default TTL for cached display balances.
	DefaultTTL = 60 * time.Second

	// ReportTTL is the TTL for cached reconciliation reports. A report is
	// a point-in-time audit, not a live balance, so it is kept until the
	// next scheduled run would have replaced it anyway.
	ReportTTL = 24 * time.Hour

	// KeyPrefix is the prefix for balance cache keys
	KeyPrefix = "balance:"

	// ReportKeyPrefix is the prefix for cached reconciliation reports.
	ReportKeyPrefix = "reconcile:"
)

// BalanceCache is a Redis-backed display cache for derived balances:
// invoice balance_due and client credit rollups. Strictly read-through
// convenience for dashboards; financial operations always derive
// balances from source records and never consult this cache.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewBalanceCache creates a new balance cache
func NewBalanceCache(client *redis.Client, log *logger.Logger) *BalanceCache {
	return &BalanceCache{
		client: client,
		ttl:    DefaultTTL,
		logger: log.WithField("component", "balance_cache"),
	}
}

// NewBalanceCacheWithTTL creates a new balance cache with custom TTL
func NewBalanceCacheWithTTL(client *redis.Client, ttl time.Duration, log *logger.Logger) *BalanceCache {
	return &BalanceCache{
		client: client,
		ttl:    ttl,
		logger: log.WithField("component", "balance_cache"),
	}
}

// CachedBalance is the serialized cache payload.
type CachedBalance struct {
	Amount    int64     `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetInvoiceBalance caches an invoice's balance due.
func (c *BalanceCache) SetInvoiceBalance(ctx context.Context, tenantID, documentID uuid.UUID, balance money.Money) error {
	return c.set(ctx, c.invoiceKey(tenantID, documentID), balance)
}

// GetInvoiceBalance retrieves a cached invoice balance. The second
// return value reports whether the key was present.
func (c *BalanceCache) GetInvoiceBalance(ctx context.Context, tenantID, documentID uuid.UUID) (money.Money, bool, error) {
	return c.get(ctx, c.invoiceKey(tenantID, documentID))
}

// SetClientCredit caches a client's credit rollup.
func (c *BalanceCache) SetClientCredit(ctx context.Context, tenantID, clientID uuid.UUID, balance money.Money) error {
	return c.set(ctx, c.clientKey(tenantID, clientID), balance)
}

// GetClientCredit retrieves a cached client credit rollup.
func (c *BalanceCache) GetClientCredit(ctx context.Context, tenantID, clientID uuid.UUID) (money.Money, bool, error) {
	return c.get(ctx, c.clientKey(tenantID, clientID))
}

// CachedReport is the serialized summary of a reconciliation run,
// kept for dashboard display alongside the balances.
type CachedReport struct {
	TenantID uuid.UUID       `json:"tenant_id"`
	RanAt    time.Time       `json:"ran_at"`
	Errors   int             `json:"errors"`
	Warnings int             `json:"warnings"`
	Findings []CachedFinding `json:"findings"`
}

// CachedFinding is one finding inside a cached report.
type CachedFinding struct {
	Severity string    `json:"severity"`
	Check    string    `json:"check"`
	EntityID uuid.UUID `json:"entity_id"`
	Message  string    `json:"message"`
}

// SetReport caches the latest reconciliation report for a tenant.
func (c *BalanceCache) SetReport(ctx context.Context, report CachedReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	key := c.reportKey(report.TenantID)
	if err := c.client.Set(ctx, key, data, ReportTTL).Err(); err != nil {
		c.logger.WithError(err).Error("cache error", "operation", "set", "key", key)
		return fmt.Errorf("failed to set cached report: %w", err)
	}
	return nil
}

// GetReport retrieves the latest cached reconciliation report. The
// second return value reports whether one was present.
func (c *BalanceCache) GetReport(ctx context.Context, tenantID uuid.UUID) (*CachedReport, bool, error) {
	key := c.reportKey(tenantID)
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		c.logger.WithError(err).Error("cache error", "operation", "get", "key", key)
		return nil, false, fmt.Errorf("failed to get cached report: %w", err)
	}

	var report CachedReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal cached report: %w", err)
	}
	return &report, true, nil
}

// InvalidateInvoice drops an invoice's cached balance.
func (c *BalanceCache) InvalidateInvoice(ctx context.Context, tenantID, documentID uuid.UUID) error {
	return c.client.Del(ctx, c.invoiceKey(tenantID, documentID)).Err()
}

// InvalidateClient drops a client's cached rollup.
func (c *BalanceCache) InvalidateClient(ctx context.Context, tenantID, clientID uuid.UUID) error {
	return c.client.Del(ctx, c.clientKey(tenantID, clientID)).Err()
}

// Clear removes all cached balances.
func (c *BalanceCache) Clear(ctx context.Context) error {
	pattern := fmt.Sprintf("%s*", KeyPrefix)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()

	pipe := c.client.Pipeline()
	count := 0
	for iter.Next(ctx) {
		pipe.Del(ctx, iter.Val())
		count++
		if count >= 100 {
			if _, err := pipe.Exec(ctx); err != nil {
				return fmt.Errorf("failed to clear cache: %w", err)
			}
			pipe = c.client.Pipeline()
			count = 0
		}
	}

	if count > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}

	return iter.Err()
}

func (c *BalanceCache) invoiceKey(tenantID, documentID uuid.UUID) string {
	return fmt.Sprintf("%s%s:invoice:%s", KeyPrefix, tenantID, documentID)
}

func (c *BalanceCache) clientKey(tenantID, clientID uuid.UUID) string {
	return fmt.Sprintf("%s%s:client:%s", KeyPrefix, tenantID, clientID)
}

func (c *BalanceCache) reportKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("%s%s:latest", ReportKeyPrefix, tenantID)
}

func (c *BalanceCache) set(ctx context.Context, key string, balance money.Money) error {
	cached := CachedBalance{
		Amount:    int64(balance),
		UpdatedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal balance: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.WithError(err).Error("cache error", "operation", "set", "key", key)
		return fmt.Errorf("failed to set cached balance: %w", err)
	}
	return nil
}

func (c *BalanceCache) get(ctx context.Context, key string) (money.Money, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		c.logger.Debug("cache miss", "key", key)
		return 0, false, nil
	}
	if err != nil {
		c.logger.WithError(err).Error("cache error", "operation", "get", "key", key)
		return 0, false, fmt.Errorf("failed to get cached balance: %w", err)
	}

	var cached CachedBalance
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		return 0, false, fmt.Errorf("failed to unmarshal cached balance: %w", err)
	}

	c.logger.Debug("cache hit", "key", key)
	return money.Money(cached.Amount), true, nil
}
