package worker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/referral-next/internal/logger"
	"github.com/referral-next/internal/provider"
	"github.com/referral-next/internal/queue"
	"github.com/referral-next/internal/service"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskReferralSettlement, c.handleReferralSettlement)
}

// handleReferralSettlement 消费推荐结算任务。
// 终态记录与缺失记录吞掉错误返回 nil，避免重投递造成重复结算。
func (c *Consumer) handleReferralSettlement(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_referral_settlement_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReferralSettlementPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// 永久损坏的任务重投递不会恢复，按不可重试处理
		logger.Warnw("worker_referral_settlement_unmarshal_failed", "error", err)
		return nil
	}
	if payload.ReferralID == 0 && strings.TrimSpace(payload.OrderNo) == "" {
		logger.Debugw("worker_referral_settlement_skip_invalid_payload")
		return nil
	}
	if c.ReferralService == nil {
		logger.Warnw("worker_referral_settlement_skip_service_nil", "referral_id", payload.ReferralID)
		return nil
	}

	amount := decimal.Zero
	if raw := strings.TrimSpace(payload.Amount); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			logger.Warnw("worker_referral_settlement_amount_invalid",
				"referral_id", payload.ReferralID,
				"amount", payload.Amount,
				"error", err,
			)
			return nil
		}
		amount = parsed
	}

	referral, err := c.ReferralService.HandleOrderSettlement(payload.ReferralID, payload.OrderNo, amount, payload.Outcome)
	if err != nil {
		if errors.Is(err, service.ErrReferralStateInvalid) || errors.Is(err, service.ErrNotFound) {
			logger.Infow("worker_referral_settlement_noop",
				"referral_id", payload.ReferralID,
				"order_no", payload.OrderNo,
				"reason", err.Error(),
			)
			return nil
		}
		if errors.Is(err, service.ErrSettlementInputInvalid) {
			logger.Warnw("worker_referral_settlement_input_invalid",
				"referral_id", payload.ReferralID,
				"outcome", payload.Outcome,
			)
			return nil
		}
		logger.Errorw("worker_referral_settlement_failed",
			"referral_id", payload.ReferralID,
			"order_no", payload.OrderNo,
			"error", err,
		)
		return err
	}
	logger.Infow("worker_referral_settlement_done",
		"referral_id", referral.ID,
		"status", referral.Status,
		"bonus_amount", referral.BonusAmount.String(),
	)
	return nil
}
