package main

import (
	"fmt"
	"time"

	"github.com/referral-next/internal/config"
	"github.com/referral-next/internal/constants"
	"github.com/referral-next/internal/logger"
	"github.com/referral-next/internal/models"
	"github.com/referral-next/internal/repository"

	"github.com/shopspring/decimal"
)

// ensureUser 按邮箱幂等写入种子用户，重复执行不产生重复数据。
func ensureUser(userRepo repository.UserRepository, user models.User) (models.User, error) {
	existing, err := userRepo.GetByEmail(user.Email)
	if err != nil {
		return models.User{}, err
	}
	if existing != nil {
		return *existing, nil
	}
	if err := userRepo.Create(&user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	userRepo := repository.NewUserRepository(models.DB)
	referralRepo := repository.NewReferralRepository(models.DB)

	now := time.Now()

	// 推荐人（带推荐码）
	aliceCode := "ALICE234"
	bobCode := "BOB56789"
	referrers := []models.User{
		{
			Email:        "alice@example.com",
			DisplayName:  "Alice",
			Status:       constants.UserStatusActive,
			ReferralCode: &aliceCode,
			CreatedAt:    now.Add(-30 * 24 * time.Hour),
			UpdatedAt:    now,
		},
		{
			Email:        "bob@example.com",
			DisplayName:  "Bob",
			Status:       constants.UserStatusActive,
			ReferralCode: &bobCode,
			CreatedAt:    now.Add(-20 * 24 * time.Hour),
			UpdatedAt:    now,
		},
	}
	for i := range referrers {
		user, err := ensureUser(userRepo, referrers[i])
		if err != nil {
			stdLog.Fatalf("Failed to seed referrer: %v", err)
		}
		referrers[i] = user
	}

	// 被推荐用户
	referred := make([]models.User, 0, 5)
	for i := 0; i < 5; i++ {
		user := models.User{
			Email:       fmt.Sprintf("member-%d@example.com", i+1),
			DisplayName: fmt.Sprintf("Member %d", i+1),
			Status:      constants.UserStatusActive,
			CreatedAt:   now.Add(-time.Duration(10-i) * 24 * time.Hour),
			UpdatedAt:   now,
		}
		seeded, err := ensureUser(userRepo, user)
		if err != nil {
			stdLog.Fatalf("Failed to seed user: %v", err)
		}
		referred = append(referred, seeded)
	}

	// 各状态的推荐记录
	orderNo1 := "ORD-2024-0001"
	orderNo2 := "ORD-2024-0002"
	completedAt := now.Add(-3 * 24 * time.Hour)
	referrals := []models.Referral{
		{
			ReferrerID:     referrers[0].ID,
			ReferredUserID: referred[0].ID,
			OrderNo:        &orderNo1,
			Status:         constants.ReferralStatusCompleted,
			RatePercent:    models.NewMoneyFromDecimal(decimal.RequireFromString("10")),
			BonusAmount:    models.NewMoneyFromDecimal(decimal.RequireFromString("50")),
			CompletedAt:    &completedAt,
			CreatedAt:      now.Add(-9 * 24 * time.Hour),
			UpdatedAt:      completedAt,
		},
		{
			ReferrerID:     referrers[0].ID,
			ReferredUserID: referred[1].ID,
			OrderNo:        &orderNo2,
			Status:         constants.ReferralStatusPending,
			CreatedAt:      now.Add(-8 * 24 * time.Hour),
			UpdatedAt:      now.Add(-8 * 24 * time.Hour),
		},
		{
			ReferrerID:     referrers[0].ID,
			ReferredUserID: referred[2].ID,
			Status:         constants.ReferralStatusCancelled,
			CancelReason:   constants.ReferralCancelReasonOrderFailed,
			CreatedAt:      now.Add(-7 * 24 * time.Hour),
			UpdatedAt:      now.Add(-6 * 24 * time.Hour),
		},
		{
			ReferrerID:     referrers[1].ID,
			ReferredUserID: referred[3].ID,
			Status:         constants.ReferralStatusPending,
			CreatedAt:      now.Add(-5 * 24 * time.Hour),
			UpdatedAt:      now.Add(-5 * 24 * time.Hour),
		},
		{
			ReferrerID:     referrers[1].ID,
			ReferredUserID: referred[4].ID,
			Status:         constants.ReferralStatusCancelled,
			CancelReason:   constants.ReferralCancelReasonOperatorVoid,
			CreatedAt:      now.Add(-4 * 24 * time.Hour),
			UpdatedAt:      now.Add(-2 * 24 * time.Hour),
		},
	}
	for i := range referrals {
		existing, err := referralRepo.GetByReferredUserID(referrals[i].ReferredUserID)
		if err != nil {
			stdLog.Fatalf("Failed to seed referral: %v", err)
		}
		if existing != nil {
			referrals[i] = *existing
			continue
		}
		if err := referralRepo.Create(&referrals[i]); err != nil {
			stdLog.Fatalf("Failed to seed referral: %v", err)
		}
	}

	stdLog.Printf("Seed completed: %d referrers, %d users, %d referrals",
		len(referrers), len(referred), len(referrals))
}
