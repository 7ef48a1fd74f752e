package public

import (
	"errors"
	"strconv"
	"strings"

	handlershared "github.com/referral-next/internal/http/handlers/shared"
	"github.com/referral-next/internal/http/response"
	"github.com/referral-next/internal/queue"
	"github.com/referral-next/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ReferralAttributionRequest 推荐归因请求
type ReferralAttributionRequest struct {
	ReferralCode string `json:"referral_code" binding:"required"`
	UserID       uint   `json:"user_id" binding:"required"`
}

// RecordReferralAttribution 记录推荐归因。
// 策略类失败（未知推荐码、自我推荐、重复归因）返回 attributed=false 与原因，
// 不作为接口错误处理，方便注册链路尽力而为地调用。
func (h *Handler) RecordReferralAttribution(c *gin.Context) {
	var req ReferralAttributionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	if h.ReferralService == nil {
		respondError(c, response.CodeInternal, "error.save_failed", nil)
		return
	}

	referral, err := h.ReferralService.RecordReferral(req.ReferralCode, req.UserID)
	if err != nil {
		reason := ""
		switch {
		case errors.Is(err, service.ErrUnknownReferralCode):
			reason = "unknown_code"
		case errors.Is(err, service.ErrSelfReferral):
			reason = "self_referral"
		case errors.Is(err, service.ErrAlreadyReferred):
			reason = "already_referred"
		case errors.Is(err, service.ErrNotFound):
			respondError(c, response.CodeNotFound, "error.user_not_found", nil)
			return
		case errors.Is(err, service.ErrUserDisabled):
			respondError(c, response.CodeBadRequest, "error.user_disabled", nil)
			return
		default:
			respondError(c, response.CodeInternal, "error.save_failed", err)
			return
		}
		response.Success(c, gin.H{
			"attributed": false,
			"reason":     reason,
		})
		return
	}
	response.Success(c, gin.H{
		"attributed":  true,
		"referral_id": referral.ID,
		"referrer_id": referral.ReferrerID,
		"status":      referral.Status,
	})
}

// ReferralAttachOrderRequest 推荐绑定订单请求
type ReferralAttachOrderRequest struct {
	OrderNo string `json:"order_no" binding:"required"`
}

// AttachReferralOrder 将订单号绑定到推荐记录
func (h *Handler) AttachReferralOrder(c *gin.Context) {
	referralID, ok := paramUint(c, "id", "error.referral_id_invalid")
	if !ok {
		return
	}
	var req ReferralAttachOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	if h.ReferralService == nil {
		respondError(c, response.CodeInternal, "error.save_failed", nil)
		return
	}

	if err := h.ReferralService.AttachOrder(referralID, req.OrderNo); err != nil {
		respondReferralOrderError(c, err)
		return
	}
	response.Success(c, gin.H{
		"referral_id": referralID,
		"order_no":    strings.TrimSpace(req.OrderNo),
	})
}

// ReferralSettlementRequest 订单结算通知请求
type ReferralSettlementRequest struct {
	ReferralID uint   `json:"referral_id"`
	OrderNo    string `json:"order_no"`
	Amount     string `json:"amount"`
	Outcome    string `json:"outcome" binding:"required"`
}

// NotifyReferralSettlement 接收订单结算结果。
// 队列可用时异步结算，否则同步落库；终态记录返回 processed=false。
func (h *Handler) NotifyReferralSettlement(c *gin.Context) {
	var req ReferralSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "error.bad_request", err)
		return
	}
	if req.ReferralID == 0 && strings.TrimSpace(req.OrderNo) == "" {
		respondError(c, response.CodeBadRequest, "error.settlement_input_invalid", nil)
		return
	}
	if h.ReferralService == nil {
		respondError(c, response.CodeInternal, "error.settlement_failed", nil)
		return
	}

	amount := decimal.Zero
	if raw := strings.TrimSpace(req.Amount); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			respondError(c, response.CodeBadRequest, "error.settlement_input_invalid", err)
			return
		}
		amount = parsed
	}

	if h.QueueClient.Enabled() {
		if err := h.QueueClient.EnqueueReferralSettlement(queue.ReferralSettlementPayload{
			ReferralID: req.ReferralID,
			OrderNo:    strings.TrimSpace(req.OrderNo),
			Amount:     amount.String(),
			Outcome:    req.Outcome,
		}); err != nil {
			respondError(c, response.CodeInternal, "error.queue_unavailable", err)
			return
		}
		response.Success(c, gin.H{"queued": true})
		return
	}

	referral, err := h.ReferralService.HandleOrderSettlement(req.ReferralID, req.OrderNo, amount, req.Outcome)
	if err != nil {
		if errors.Is(err, service.ErrReferralStateInvalid) {
			response.Success(c, gin.H{
				"processed": false,
				"reason":    "referral_terminal",
			})
			return
		}
		respondReferralSettlementError(c, err)
		return
	}
	response.Success(c, gin.H{
		"processed":    true,
		"referral_id":  referral.ID,
		"status":       referral.Status,
		"bonus_amount": referral.BonusAmount,
	})
}

// GetUserReferralSummary 查询用户推荐摘要
func (h *Handler) GetUserReferralSummary(c *gin.Context) {
	userID, ok := paramUint(c, "user_id", "error.user_id_invalid")
	if !ok {
		return
	}
	if h.ReferralQueryService == nil {
		respondError(c, response.CodeInternal, "error.user_fetch_failed", nil)
		return
	}

	summary, err := h.ReferralQueryService.GetUserSummary(c.Request.Context(), userID)
	if err != nil {
		respondReferralCodeError(c, err)
		return
	}
	response.Success(c, summary)
}

// ListUserReferrals 分页查询用户名下推荐记录
func (h *Handler) ListUserReferrals(c *gin.Context) {
	userID, ok := paramUint(c, "user_id", "error.user_id_invalid")
	if !ok {
		return
	}
	if h.ReferralQueryService == nil {
		respondError(c, response.CodeInternal, "error.user_fetch_failed", nil)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = handlershared.NormalizePagination(page, pageSize)

	rows, total, err := h.ReferralQueryService.ListUserReferrals(userID, page, pageSize, strings.TrimSpace(c.Query("status")))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			response.NotFound(c, "error.user_not_found")
			return
		}
		respondError(c, response.CodeInternal, "error.user_fetch_failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.NewPagination(page, pageSize, total))
}
