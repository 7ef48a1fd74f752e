package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/referral-next/internal/cache"
	"github.com/referral-next/internal/logger"
	"github.com/referral-next/internal/models"
	"github.com/referral-next/internal/repository"
)

// ReferralStats 推荐统计结果
type ReferralStats struct {
	ReferrerID  uint         `json:"referrer_id"` // 为 0 表示全局统计
	Total       int64        `json:"total"`
	Pending     int64        `json:"pending"`
	Completed   int64        `json:"completed"`
	Cancelled   int64        `json:"cancelled"`
	TotalBonus  models.Money `json:"total_bonus"`
	Degraded    bool         `json:"degraded"` // 存储异常时返回最近一次快照
	GeneratedAt time.Time    `json:"generated_at"`
}

// ReferralStatsService 推荐统计服务。
// 正常路径实时扫描数据库保证精确；数据库异常时降级返回最近一次成功快照。
type ReferralStatsService struct {
	repo     repository.ReferralRepository
	cacheTTL time.Duration

	mu        sync.RWMutex
	snapshots map[uint]ReferralStats
}

// NewReferralStatsService 创建推荐统计服务
func NewReferralStatsService(repo repository.ReferralRepository, cacheTTLSeconds int) *ReferralStatsService {
	ttl := time.Duration(cacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReferralStatsService{
		repo:      repo,
		cacheTTL:  ttl,
		snapshots: make(map[uint]ReferralStats),
	}
}

// StatsFor 查询指定推荐人的统计，referrerID 为 0 返回全局统计。
func (s *ReferralStatsService) StatsFor(ctx context.Context, referrerID uint) (*ReferralStats, error) {
	if s.repo == nil {
		return nil, ErrNotFound
	}
	aggregate, err := s.repo.GetStats(referrerID)
	if err != nil {
		logger.Warnw("referral_stats_query_failed", "referrer_id", referrerID, "error", err)
		if snapshot, ok := s.lastSnapshot(ctx, referrerID); ok {
			snapshot.Degraded = true
			return &snapshot, nil
		}
		return nil, err
	}

	stats := ReferralStats{
		ReferrerID:  referrerID,
		Total:       aggregate.Total,
		Pending:     aggregate.Pending,
		Completed:   aggregate.Completed,
		Cancelled:   aggregate.Cancelled,
		TotalBonus:  models.NewMoneyFromDecimal(aggregate.TotalBonus),
		GeneratedAt: time.Now().UTC(),
	}
	s.storeSnapshot(ctx, stats)
	return &stats, nil
}

// Invalidate 状态变更后失效外部缓存快照。
// 内存快照保留，作为数据库不可用时的降级数据源。
func (s *ReferralStatsService) Invalidate(referrerID uint) {
	ctx := context.Background()
	if err := cache.Del(ctx, statsCacheKey(referrerID)); err != nil {
		logger.Warnw("referral_stats_cache_del_failed", "referrer_id", referrerID, "error", err)
	}
	if err := cache.Del(ctx, statsCacheKey(0)); err != nil {
		logger.Warnw("referral_stats_cache_del_failed", "referrer_id", uint(0), "error", err)
	}
}

func (s *ReferralStatsService) storeSnapshot(ctx context.Context, stats ReferralStats) {
	s.mu.Lock()
	s.snapshots[stats.ReferrerID] = stats
	s.mu.Unlock()

	if err := cache.SetJSON(ctx, statsCacheKey(stats.ReferrerID), stats, s.cacheTTL); err != nil {
		logger.Warnw("referral_stats_cache_set_failed", "referrer_id", stats.ReferrerID, "error", err)
	}
}

func (s *ReferralStatsService) lastSnapshot(ctx context.Context, referrerID uint) (ReferralStats, bool) {
	s.mu.RLock()
	snapshot, ok := s.snapshots[referrerID]
	s.mu.RUnlock()
	if ok {
		return snapshot, true
	}

	var cached ReferralStats
	found, err := cache.GetJSON(ctx, statsCacheKey(referrerID), &cached)
	if err != nil {
		logger.Warnw("referral_stats_cache_get_failed", "referrer_id", referrerID, "error", err)
		return ReferralStats{}, false
	}
	if !found {
		return ReferralStats{}, false
	}
	return cached, true
}

func statsCacheKey(referrerID uint) string {
	if referrerID == 0 {
		return "referral:stats:global"
	}
	return fmt.Sprintf("referral:stats:user:%d", referrerID)
}
