package repository

import (
	"context"
	"fmt"

	"github.com/damoang/angple-rules/internal/common"
	"github.com/damoang/angple-rules/internal/domain"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuotaRepository per-user creation quota kept in the business database.
// The increment joins the caller's transaction, so a rollback undoes it.
type QuotaRepository struct {
	db  *gorm.DB
	max int
}

// NewQuotaRepository creates a database-backed quota allowing max publications per user
func NewQuotaRepository(db *gorm.DB, max int) *QuotaRepository {
	return &QuotaRepository{db: db, max: max}
}

// CheckAndIncrement charges one publication to userID or fails with ErrQuotaExceeded
func (r *QuotaRepository) CheckAndIncrement(ctx context.Context, tx *gorm.DB, userID string) error {
	db := tx
	if db == nil {
		db = r.db.WithContext(ctx)
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&domain.QuotaCounter{UserID: userID}).Error; err != nil {
		return err
	}

	result := db.Model(&domain.QuotaCounter{}).
		Where("user_id = ? AND used < ?", userID, r.max).
		UpdateColumn("used", gorm.Expr("used + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return common.ErrQuotaExceeded
	}
	return nil
}

// Release is a no-op: the increment is rolled back with the transaction
func (r *QuotaRepository) Release(ctx context.Context, userID string) error {
	return nil
}

// Used returns the current counter of userID
func (r *QuotaRepository) Used(ctx context.Context, userID string) (int, error) {
	var counter domain.QuotaCounter
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&counter).Error
	if IsNotFound(err) {
		return 0, nil
	}
	return counter.Used, err
}

// reserveScript INCR guarded by the limit; returns -1 without changing the key when full
var reserveScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n > tonumber(ARGV[1]) then
  redis.call('DECR', KEYS[1])
  return -1
end
return n
`)

// RedisQuota quota counter kept in Redis. The increment happens outside the
// database transaction, so callers must Release it when the transaction fails.
type RedisQuota struct {
	client *redis.Client
	max    int
	prefix string
}

// NewRedisQuota creates a Redis-backed quota allowing max publications per user
func NewRedisQuota(client *redis.Client, max int) *RedisQuota {
	return &RedisQuota{client: client, max: max, prefix: "rules:quota:"}
}

func (q *RedisQuota) key(userID string) string {
	return q.prefix + userID
}

// CheckAndIncrement reserves one publication for userID
func (q *RedisQuota) CheckAndIncrement(ctx context.Context, _ *gorm.DB, userID string) error {
	n, err := reserveScript.Run(ctx, q.client, []string{q.key(userID)}, q.max).Int64()
	if err != nil {
		return fmt.Errorf("quota reserve: %w", err)
	}
	if n < 0 {
		return common.ErrQuotaExceeded
	}
	return nil
}

// Release gives back a reservation made by CheckAndIncrement
func (q *RedisQuota) Release(ctx context.Context, userID string) error {
	n, err := q.client.Decr(ctx, q.key(userID)).Result()
	if err != nil {
		return fmt.Errorf("quota release: %w", err)
	}
	if n < 0 {
		return q.client.Set(ctx, q.key(userID), 0, 0).Err()
	}
	return nil
}

// Used returns the current counter of userID
func (q *RedisQuota) Used(ctx context.Context, userID string) (int, error) {
	n, err := q.client.Get(ctx, q.key(userID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}
