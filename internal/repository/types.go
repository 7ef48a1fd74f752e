package repository

import "github.com/shopspring/decimal"

// ReferralListFilter 推荐记录列表过滤条件
type ReferralListFilter struct {
	Page       int
	PageSize   int
	ReferrerID uint
	Status     string
	Search     string // 大小写不敏感子串匹配（推荐人/被推荐人身份、状态）
}

// ReferralStatsAggregate 推荐统计聚合结果
type ReferralStatsAggregate struct {
	Total      int64
	Pending    int64
	Completed  int64
	Cancelled  int64
	TotalBonus decimal.Decimal
}
