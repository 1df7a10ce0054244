package repository

import (
	"context"
	"time"

	"dm_sync_service/internal/sync/domain"
	"dm_sync_service/pkg/database"
	errprocess "dm_sync_service/pkg/err"
	"dm_sync_service/pkg/logger"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

// ProfileRepository definition profile lookup
// 批次查詢，僅供會話摘要裝飾使用
type ProfileRepository interface {
	GetProfiles(ctx context.Context, ids []string) (map[string]domain.Profile, error)
}

type profileRepository struct {
	db *pgxpool.Pool
}

// NewProfileRepository create a ProfileRepository
func NewProfileRepository(db *pgxpool.Pool) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetProfiles(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	result := make(map[string]domain.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx,
		"SELECT member_id, display_name, avatar_url FROM member WHERE member_id = ANY($1)", ids)
	if err != nil {
		return nil, errprocess.Wrap(errprocess.KindProfile, "profile query failed", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.MemberID, &p.DisplayName, &p.AvatarURL); err != nil {
			return nil, errprocess.Wrap(errprocess.KindProfile, "profile scan failed", err)
		}
		result[p.MemberID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, errprocess.Wrap(errprocess.KindProfile, "profile rows failed", err)
	}

	return result, nil
}

const profileCachePrefix = "profile:"

type cachedProfileRepository struct {
	inner ProfileRepository
	cache database.RedisRepository[domain.Profile]
	ttl   time.Duration
}

// NewCachedProfileRepository wrap a ProfileRepository with redis read-through cache
func NewCachedProfileRepository(inner ProfileRepository, cache database.RedisRepository[domain.Profile], ttl time.Duration) ProfileRepository {
	return &cachedProfileRepository{inner: inner, cache: cache, ttl: ttl}
}

func (r *cachedProfileRepository) GetProfiles(ctx context.Context, ids []string) (map[string]domain.Profile, error) {
	result := make(map[string]domain.Profile, len(ids))

	var misses []string
	for _, id := range ids {
		p, err := r.cache.Get(ctx, profileCachePrefix+id)
		if err != nil {
			misses = append(misses, id)
			continue
		}
		result[id] = p
	}
	if len(misses) == 0 {
		return result, nil
	}

	// 快取未命中的一次批次回源
	fetched, err := r.inner.GetProfiles(ctx, misses)
	if err != nil {
		return nil, err
	}
	for id, p := range fetched {
		result[id] = p
		if err := r.cache.Set(ctx, profileCachePrefix+id, p, r.ttl); err != nil {
			logger.Log.Warn("profile cache set failed", zap.String("member_id", id), zap.Error(err))
		}
	}

	return result, nil
}
