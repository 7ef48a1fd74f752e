package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/referral-next/internal/constants"
	handlershared "github.com/referral-next/internal/http/handlers/shared"
	"github.com/referral-next/internal/http/response"
	"github.com/referral-next/internal/repository"
	"github.com/referral-next/internal/service"

	"github.com/gin-gonic/gin"
)

// ListReferrals 运营侧推荐记录列表。
// search 为大小写不敏感子串，覆盖推荐人身份、被推荐人身份与状态；空值返回全量。
func (h *Handler) ListReferrals(c *gin.Context) {
	if h.ReferralQueryService == nil {
		respondError(c, response.CodeInternal, "error.referral_fetch_failed", nil)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	var referrerID uint
	if raw := strings.TrimSpace(c.Query("referrer_id")); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "error.referrer_id_invalid", nil)
			return
		}
		referrerID = uint(value)
	}

	rows, total, err := h.ReferralQueryService.ListReferrals(repository.ReferralListFilter{
		Page:       page,
		PageSize:   pageSize,
		ReferrerID: referrerID,
		Status:     strings.TrimSpace(c.Query("status")),
		Search:     c.Query("search"),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "error.referral_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.NewPagination(page, pageSize, total))
}

// GetReferralStats 查询推荐统计。referrer_id 缺省时返回全局统计。
func (h *Handler) GetReferralStats(c *gin.Context) {
	if h.ReferralStatsService == nil {
		respondError(c, response.CodeInternal, "error.referral_fetch_failed", nil)
		return
	}

	var referrerID uint
	if raw := strings.TrimSpace(c.Query("referrer_id")); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			respondError(c, response.CodeBadRequest, "error.referrer_id_invalid", nil)
			return
		}
		referrerID = uint(value)
	}

	stats, err := h.ReferralStatsService.StatsFor(c.Request.Context(), referrerID)
	if err != nil {
		respondError(c, response.CodeInternal, "error.referral_fetch_failed", err)
		return
	}
	response.Success(c, stats)
}

// CancelReferralRequest 运营取消推荐请求
type CancelReferralRequest struct {
	Reason string `json:"reason"`
}

// CancelReferral 运营侧取消待结算推荐
func (h *Handler) CancelReferral(c *gin.Context) {
	referralID, ok := paramUint(c, "id", "error.referral_id_invalid")
	if !ok {
		return
	}
	// 请求体可为空，默认使用运营作废原因
	var req CancelReferralRequest
	_ = c.ShouldBindJSON(&req)
	if h.ReferralService == nil {
		respondError(c, response.CodeInternal, "error.save_failed", nil)
		return
	}

	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = constants.ReferralCancelReasonOperatorVoid
	}
	referral, err := h.ReferralService.CancelReferral(referralID, reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "error.referral_not_found", nil)
		case errors.Is(err, service.ErrReferralStateInvalid):
			respondError(c, response.CodeConflict, "error.referral_state_invalid", nil)
		default:
			respondError(c, response.CodeInternal, "error.save_failed", err)
		}
		return
	}
	response.Success(c, gin.H{
		"referral_id":   referral.ID,
		"status":        referral.Status,
		"cancel_reason": referral.CancelReason,
	})
}
