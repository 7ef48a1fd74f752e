package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/referral-next/internal/constants"
	"github.com/referral-next/internal/models"
	"github.com/referral-next/internal/repository"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupReferralQueryTest(t *testing.T) (*ReferralQueryService, *ReferralService, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:referral_query_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
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
	referral := NewReferralService(referralRepo, userRepo, setting, stats)
	return NewReferralQueryService(referralRepo, userRepo, referral, stats), referral, db
}

func TestGetUserSummaryLimitsRecentToFive(t *testing.T) {
	query, svc, db := setupReferralQueryTest(t)
	referrer := createReferralTestUser(t, db, "summary-ref@example.com")
	code, err := svc.EnsureCode(referrer.ID)
	if err != nil {
		t.Fatalf("ensure code failed: %v", err)
	}

	for i := 0; i < 7; i++ {
		referred := createReferralTestUser(t, db, fmt.Sprintf("summary-%d@example.com", i))
		referral, err := svc.RecordReferral(code, referred.ID)
		if err != nil {
			t.Fatalf("record referral %d failed: %v", i, err)
		}
		// 拉开创建时间保证排序稳定
		if err := db.Model(&models.Referral{}).
			Where("id = ?", referral.ID).
			Update("created_at", time.Now().Add(time.Duration(i)*time.Minute)).Error; err != nil {
			t.Fatalf("adjust created_at failed: %v", err)
		}
		if i == 0 {
			if _, err := svc.CompleteReferral(referral.ID, decimal.RequireFromString("500")); err != nil {
				t.Fatalf("complete referral failed: %v", err)
			}
		}
	}

	summary, err := query.GetUserSummary(context.Background(), referrer.ID)
	if err != nil {
		t.Fatalf("get summary failed: %v", err)
	}
	if summary.ReferralCode != code {
		t.Fatalf("unexpected code in summary: %s", summary.ReferralCode)
	}
	if len(summary.Recent) != 5 {
		t.Fatalf("expected 5 recent referrals, got %d", len(summary.Recent))
	}
	for i := 1; i < len(summary.Recent); i++ {
		if summary.Recent[i].CreatedAt.After(summary.Recent[i-1].CreatedAt) {
			t.Fatalf("recent not ordered newest first at index %d", i)
		}
	}
	if summary.Stats.Total != 7 || summary.Stats.Completed != 1 {
		t.Fatalf("unexpected summary stats: %+v", summary.Stats)
	}
}

func TestListReferralsSearch(t *testing.T) {
	query, svc, db := setupReferralQueryTest(t)
	referrer := createReferralTestUser(t, db, "alice@example.com")
	if err := db.Model(&models.User{}).Where("id = ?", referrer.ID).Update("display_name", "Alice").Error; err != nil {
		t.Fatalf("set display name failed: %v", err)
	}
	code, err := svc.EnsureCode(referrer.ID)
	if err != nil {
		t.Fatalf("ensure code failed: %v", err)
	}

	bob := createReferralTestUser(t, db, "bob@example.com")
	carol := createReferralTestUser(t, db, "carol@example.com")
	if _, err := svc.RecordReferral(code, bob.ID); err != nil {
		t.Fatalf("record bob failed: %v", err)
	}
	carolReferral, err := svc.RecordReferral(code, carol.ID)
	if err != nil {
		t.Fatalf("record carol failed: %v", err)
	}
	if _, err := svc.CompleteReferral(carolReferral.ID, decimal.RequireFromString("100")); err != nil {
		t.Fatalf("complete carol failed: %v", err)
	}

	// 空搜索词返回全量
	rows, total, err := query.ListReferrals(repository.ReferralListFilter{Page: 1, PageSize: 10})
	if err != nil {
		t.Fatalf("unfiltered list failed: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("expected full list, got total=%d", total)
	}

	// 大小写不敏感匹配推荐人身份
	rows, total, err = query.ListReferrals(repository.ReferralListFilter{Page: 1, PageSize: 10, Search: "ALICE"})
	if err != nil {
		t.Fatalf("referrer search failed: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected both rows via referrer identity, got %d", total)
	}

	// 匹配被推荐人身份
	rows, total, err = query.ListReferrals(repository.ReferralListFilter{Page: 1, PageSize: 10, Search: "bob"})
	if err != nil {
		t.Fatalf("referred search failed: %v", err)
	}
	if total != 1 || rows[0].ReferredIdentity == "" {
		t.Fatalf("expected single bob row, got %d", total)
	}

	// 匹配状态子串
	rows, total, err = query.ListReferrals(repository.ReferralListFilter{Page: 1, PageSize: 10, Search: "comp"})
	if err != nil {
		t.Fatalf("status search failed: %v", err)
	}
	if total != 1 || rows[0].Status != constants.ReferralStatusCompleted {
		t.Fatalf("expected completed row, got total=%d", total)
	}

	// 无命中
	_, total, err = query.ListReferrals(repository.ReferralListFilter{Page: 1, PageSize: 10, Search: "zzz-no-match"})
	if err != nil {
		t.Fatalf("miss search failed: %v", err)
	}
	if total != 0 {
		t.Fatalf("expected no rows, got %d", total)
	}
}

func TestListUserReferralsFiltersByStatus(t *testing.T) {
	query, svc, db := setupReferralQueryTest(t)
	referrer := createReferralTestUser(t, db, "user-list-ref@example.com")
	code, err := svc.EnsureCode(referrer.ID)
	if err != nil {
		t.Fatalf("ensure code failed: %v", err)
	}

	first := createReferralTestUser(t, db, "user-list-1@example.com")
	second := createReferralTestUser(t, db, "user-list-2@example.com")
	completed, err := svc.RecordReferral(code, first.ID)
	if err != nil {
		t.Fatalf("record first failed: %v", err)
	}
	if _, err := svc.RecordReferral(code, second.ID); err != nil {
		t.Fatalf("record second failed: %v", err)
	}
	if _, err := svc.CompleteReferral(completed.ID, decimal.RequireFromString("200")); err != nil {
		t.Fatalf("complete first failed: %v", err)
	}

	rows, total, err := query.ListUserReferrals(referrer.ID, 1, 10, "")
	if err != nil {
		t.Fatalf("list user referrals failed: %v", err)
	}
	if total != 2 || len(rows) != 2 {
		t.Fatalf("expected both rows, got total=%d", total)
	}

	rows, total, err = query.ListUserReferrals(referrer.ID, 1, 10, constants.ReferralStatusCompleted)
	if err != nil {
		t.Fatalf("status filtered list failed: %v", err)
	}
	if total != 1 || rows[0].Status != constants.ReferralStatusCompleted {
		t.Fatalf("expected single completed row, got total=%d", total)
	}

	if _, _, err := query.ListUserReferrals(99999, 1, 10, ""); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}
}

func TestGlobalStats(t *testing.T) {
	query, svc, db := setupReferralQueryTest(t)
	refA := createReferralTestUser(t, db, "global-a@example.com")
	refB := createReferralTestUser(t, db, "global-b@example.com")
	codeA, err := svc.EnsureCode(refA.ID)
	if err != nil {
		t.Fatalf("ensure code A failed: %v", err)
	}
	codeB, err := svc.EnsureCode(refB.ID)
	if err != nil {
		t.Fatalf("ensure code B failed: %v", err)
	}

	u1 := createReferralTestUser(t, db, "global-1@example.com")
	u2 := createReferralTestUser(t, db, "global-2@example.com")
	r1, err := svc.RecordReferral(codeA, u1.ID)
	if err != nil {
		t.Fatalf("record r1 failed: %v", err)
	}
	if _, err := svc.RecordReferral(codeB, u2.ID); err != nil {
		t.Fatalf("record r2 failed: %v", err)
	}
	if _, err := svc.CompleteReferral(r1.ID, decimal.RequireFromString("999.95")); err != nil {
		t.Fatalf("complete r1 failed: %v", err)
	}

	stats, err := query.GlobalStats(context.Background())
	if err != nil {
		t.Fatalf("global stats failed: %v", err)
	}
	if stats.Total != 2 || stats.Completed != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected global stats: %+v", stats)
	}
	if stats.TotalBonus.String() != "99.99" {
		t.Fatalf("unexpected global bonus: %s", stats.TotalBonus.String())
	}
}
