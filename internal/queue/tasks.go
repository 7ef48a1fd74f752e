package queue

import (
	"encoding/json"

	"github.com/referral-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskReferralSettlement 推荐结算任务
	TaskReferralSettlement = constants.TaskReferralSettlement
)

// ReferralSettlementPayload 推荐结算任务载荷
type ReferralSettlementPayload struct {
	ReferralID uint   `json:"referral_id"`
	OrderNo    string `json:"order_no"`
	Amount     string `json:"amount"`  // 订单金额，十进制字符串
	Outcome    string `json:"outcome"` // settled / failed
}

// NewReferralSettlementTask 创建推荐结算任务
func NewReferralSettlementTask(payload ReferralSettlementPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReferralSettlement, body), nil
}
