package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/referral-next/internal/constants"
	"github.com/referral-next/internal/models"
	"github.com/referral-next/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupReferralServiceTest(t *testing.T) (*ReferralService, *ReferralStatsService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:referral_service_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Referral{}); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}

	referralRepo := repository.NewReferralRepository(db)
	userRepo := repository.NewUserRepository(db)
	stats := NewReferralStatsService(referralRepo, 60)
	setting := ReferralSetting{
		BonusRatePercent: 10,
		Rounding:         referralRoundingBank,
		CodeLength:       8,
		CodeMaxAttempts:  8,
		RecentLimit:      5,
	}
	return NewReferralService(referralRepo, userRepo, setting, stats), stats, db
}

func createReferralTestUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()

	row := models.User{
		Email:       email,
		DisplayName: "tester",
		Status:      constants.UserStatusActive,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	return row
}

func TestEnsureCodeIsIdempotent(t *testing.T) {
	svc, _, db := setupReferralServiceTest(t)
	user := createReferralTestUser(t, db, "ensure-code@example.com")

	first, err := svc.EnsureCode(user.ID)
	if err != nil {
		t.Fatalf("ensure code failed: %v", err)
	}
	if len(first) != 8 {
		t.Fatalf("unexpected code length: %q", first)
	}

	second, err := svc.EnsureCode(user.ID)
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if second != first {
		t.Fatalf("expected stable code, got %q then %q", first, second)
	}
}

func TestEnsureCodeUniqueAcrossUsers(t *testing.T) {
	svc, _, db := setupReferralServiceTest(t)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		user := createReferralTestUser(t, db, fmt.Sprintf("unique-%d@example.com", i))
		code, err := svc.EnsureCode(user.ID)
		if err != nil {
			t.Fatalf("ensure code for user %d failed: %v", user.ID, err)
		}
		if seen[code] {
			t.Fatalf("duplicate code issued: %s", code)
		}
		seen[code] = true
	}
}

func TestEnsureCodeConcurrentSameUser(t *testing.T) {
	svc, _, db := setupReferralServiceTest(t)
	user := createReferralTestUser(t, db, "concurrent@example.com")

	const workers = 8
	codes := make([]string, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			codes[idx], errs[idx] = svc.EnsureCode(user.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("worker %d failed: %v", i, errs[i])
		}
		if codes[i] != codes[0] {
			t.Fatalf("divergent codes under concurrency: %q vs %q", codes[i], codes[0])
		}
	}
}

func TestRecordReferralPolicyChecks(t *testing.T) {
	svc, _, db := setupReferralServiceTest(t)
	referrer := createReferralTestUser(t, db, "policy-ref@example.com")
	referred := createReferralTestUser(t, db, "policy-new@example.com")
	other := createReferralTestUser(t, db, "policy-other@example.com")

	code, err := svc.EnsureCode(referrer.ID)
	if err != nil {
		t.Fatalf("ensure code failed: %v", err)
	}

	if _, err := svc.RecordReferral("NOPE9999", referred.ID); !errors.Is(err, ErrUnknownReferralCode) {
		t.Fatalf("expected unknown code error, got %v", err)
	}
	if _, err := svc.RecordReferral(code, referrer.ID); !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("expected self referral error, got %v", err)
	}

	referral, err := svc.RecordReferral(code, referred.ID)
	if err != nil {
		t.Fatalf("record referral failed: %v", err)
	}
	if referral.Status != constants.ReferralStatusPending {
		t.Fatalf("unexpected status: %s", referral.Status)
	}

	otherCode, err := svc.EnsureCode(other.ID)
	if err != nil {
		t.Fatalf("ensure other code failed: %v", err)
	}
	if _, err := svc.RecordReferral(otherCode, referred.ID); !errors.Is(err, ErrAlreadyReferred) {
		t.Fatalf("expected already referred error, got %v", err)
	}
}

func TestCompleteReferralFreezesBonus(t *testing.T) {
	svc, _, db := setupReferralServiceTest(t)
	referrer := createReferralTestUser(t, db, "bonus-ref@example.com")
	referred := createReferralTestUser(t, db, "bonus-new@example.com")

	code, err := svc.EnsureCode(referrer.ID)
	if err != nil {
		t.Fatalf("ensure code failed: %v", err)
	}
	referral, err := svc.RecordReferral(code, referred.ID)
	if err != nil {
		t.Fatalf("record referral failed: %v", err)
	}
	if err := svc.AttachOrder(referral.ID, "ORD-1001"); err != nil {
		t.Fatalf("attach order failed: %v", err)
	}

	completed, err := svc.CompleteReferral(referral.ID, decimal.RequireFromString("999.95"))
	if err != nil {
		t.Fatalf("complete failed: %v", err)
	}
	if completed.BonusAmount.String() != "99.99" {
		t.Fatalf("unexpected bonus for 999.95: %s", completed.BonusAmount.String())
	}
	if completed.RatePercent.String() != "10.00" {
		t.Fatalf("unexpected frozen rate: %s", completed.RatePercent.String())
	}
	if completed.CompletedAt == nil {
		t.Fatalf("expected completed_at set")
	}

	// 终态重复结算保持幂等拒绝且不改金额
	if _, err := svc.CompleteReferral(referral.ID, decimal.RequireFromString("500")); !errors.Is(err, ErrReferralStateInvalid) {
		t.Fatalf("expected invalid state, got %v", err)
	}
	if _, err := svc.CancelReferral(referral.ID, constants.ReferralCancelReasonOperatorVoid); !errors.Is(err, ErrReferralStateInvalid) {
		t.Fatalf("expected cancel rejected, got %v", err)
	}
	stored, err := repository.NewReferralRepository(db).GetByID(referral.ID)
	if err != nil {
		t.Fatalf("reload referral failed: %v", err)
	}
	if stored.BonusAmount.String() != "99.99" {
		t.Fatalf("bonus changed after rejected transition: %s", stored.BonusAmount.String())
	}
}

func TestCompleteReferralRejectsOversizedAmount(t *testing.T) {
	svc, _, db := setupReferralServiceTest(t)
	referrer := createReferralTestUser(t, db, "oversize-ref@example.com")
	referred := createReferralTestUser(t, db, "oversize-new@example.com")

	code, err := svc.EnsureCode(referrer.ID)
	if err != nil {
		t.Fatalf("ensure code failed: %v", err)
	}
	referral, err := svc.RecordReferral(code, referred.ID)
	if err != nil {
		t.Fatalf("record referral failed: %v", err)
	}

	// 合法的十进制串也可能超出 float64 范围，结算前必须拦下
	if _, err := svc.CompleteReferral(referral.ID, decimal.RequireFromString("1e309")); !errors.Is(err, ErrSettlementInputInvalid) {
		t.Fatalf("expected ErrSettlementInputInvalid, got %v", err)
	}

	stored, err := svc.repo.GetByID(referral.ID)
	if err != nil {
		t.Fatalf("reload referral failed: %v", err)
	}
	if stored.Status != constants.ReferralStatusPending {
		t.Fatalf("oversized amount must not transition the record, got %s", stored.Status)
	}
}

func TestComputeBonusRounding(t *testing.T) {
	setting := ReferralSetting{BonusRatePercent: 10, Rounding: referralRoundingBank}.normalize()

	cases := []struct {
		amount   string
		expected string
	}{
		{"500", "50.00"},
		{"999.95", "99.99"},
		{"100", "10.00"},
		{"0", "0.00"},
		{"0.01", "0.00"},
	}
	for _, c := range cases {
		got := setting.ComputeBonus(decimal.RequireFromString(c.amount))
		if got.String() != c.expected {
			t.Fatalf("amount %s: expected %s, got %s", c.amount, c.expected, got.String())
		}
	}

	halfUp := ReferralSetting{BonusRatePercent: 10, Rounding: referralRoundingHalfUp}.normalize()
	if got := halfUp.ComputeBonus(decimal.RequireFromString("0.05")); got.String() != "0.01" {
		t.Fatalf("half_up 0.05: expected 0.01, got %s", got.String())
	}
}

func TestHandleOrderSettlementOutcomes(t *testing.T) {
	svc, _, db := setupReferralServiceTest(t)
	referrer := createReferralTestUser(t, db, "settle-ref@example.com")
	settled := createReferralTestUser(t, db, "settle-ok@example.com")
	failed := createReferralTestUser(t, db, "settle-fail@example.com")

	code, err := svc.EnsureCode(referrer.ID)
	if err != nil {
		t.Fatalf("ensure code failed: %v", err)
	}

	okReferral, err := svc.RecordReferral(code, settled.ID)
	if err != nil {
		t.Fatalf("record ok referral failed: %v", err)
	}
	if err := svc.AttachOrder(okReferral.ID, "ORD-OK"); err != nil {
		t.Fatalf("attach ok order failed: %v", err)
	}
	failReferral, err := svc.RecordReferral(code, failed.ID)
	if err != nil {
		t.Fatalf("record fail referral failed: %v", err)
	}

	result, err := svc.HandleOrderSettlement(0, "ORD-OK", decimal.RequireFromString("500"), constants.SettlementOutcomeSettled)
	if err != nil {
		t.Fatalf("settled outcome failed: %v", err)
	}
	if result.Status != constants.ReferralStatusCompleted || result.BonusAmount.String() != "50.00" {
		t.Fatalf("unexpected settle result: status=%s bonus=%s", result.Status, result.BonusAmount.String())
	}

	result, err = svc.HandleOrderSettlement(failReferral.ID, "", decimal.Zero, constants.SettlementOutcomeFailed)
	if err != nil {
		t.Fatalf("failed outcome errored: %v", err)
	}
	if result.Status != constants.ReferralStatusCancelled || result.CancelReason != constants.ReferralCancelReasonOrderFailed {
		t.Fatalf("unexpected cancel result: status=%s reason=%s", result.Status, result.CancelReason)
	}

	if _, err := svc.HandleOrderSettlement(okReferral.ID, "", decimal.Zero, "bogus"); !errors.Is(err, ErrSettlementInputInvalid) {
		t.Fatalf("expected invalid outcome error, got %v", err)
	}
	if _, err := svc.HandleOrderSettlement(0, "ORD-MISSING", decimal.Zero, constants.SettlementOutcomeSettled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for unknown order, got %v", err)
	}
}

func TestStatsForAggregatesAndDegrades(t *testing.T) {
	svc, stats, db := setupReferralServiceTest(t)
	referrer := createReferralTestUser(t, db, "stats-svc@example.com")
	code, err := svc.EnsureCode(referrer.ID)
	if err != nil {
		t.Fatalf("ensure code failed: %v", err)
	}

	amounts := []string{"500", "750", "1200"}
	for i := 0; i < 6; i++ {
		referred := createReferralTestUser(t, db, fmt.Sprintf("stats-svc-%d@example.com", i))
		referral, err := svc.RecordReferral(code, referred.ID)
		if err != nil {
			t.Fatalf("record referral %d failed: %v", i, err)
		}
		switch {
		case i < 3:
			if _, err := svc.CompleteReferral(referral.ID, decimal.RequireFromString(amounts[i])); err != nil {
				t.Fatalf("complete referral %d failed: %v", i, err)
			}
		case i == 3:
			if _, err := svc.CancelReferral(referral.ID, constants.ReferralCancelReasonOperatorVoid); err != nil {
				t.Fatalf("cancel referral failed: %v", err)
			}
		}
	}

	ctx := context.Background()
	got, err := stats.StatsFor(ctx, referrer.ID)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if got.Total != 6 || got.Pending != 2 || got.Completed != 3 || got.Cancelled != 1 {
		t.Fatalf("unexpected stats: %+v", got)
	}
	if got.TotalBonus.String() != "245.00" {
		t.Fatalf("unexpected total bonus: %s", got.TotalBonus.String())
	}
	if got.Degraded {
		t.Fatalf("fresh stats should not be degraded")
	}

	// 关闭底层连接模拟存储故障，应降级返回最近一次快照
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db failed: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		t.Fatalf("close sql db failed: %v", err)
	}

	degraded, err := stats.StatsFor(ctx, referrer.ID)
	if err != nil {
		t.Fatalf("degraded stats failed: %v", err)
	}
	if !degraded.Degraded {
		t.Fatalf("expected degraded snapshot")
	}
	if degraded.Total != 6 || degraded.TotalBonus.String() != "245.00" {
		t.Fatalf("unexpected degraded snapshot: %+v", degraded)
	}
}
