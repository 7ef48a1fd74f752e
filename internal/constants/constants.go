package constants

// 推荐记录状态常量
const (
	ReferralStatusPending   = "pending"
	ReferralStatusCompleted = "completed"
	ReferralStatusCancelled = "cancelled"
)

// 推荐取消原因常量
const (
	ReferralCancelReasonOrderFailed  = "order_failed"
	ReferralCancelReasonOperatorVoid = "operator_void"
)

// 订单结算结果常量
const (
	SettlementOutcomeSettled = "settled"
	SettlementOutcomeFailed  = "failed"
)

// 用户状态常量
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 队列常量
const (
	QueueDefault = "default"

	TaskReferralSettlement = "referral:settlement"
)
