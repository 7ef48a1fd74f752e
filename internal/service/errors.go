package service

import "errors"

// 业务错误定义
var (
	ErrNotFound                = errors.New("record not found")
	ErrUserDisabled            = errors.New("user disabled")
	ErrUnknownReferralCode     = errors.New("unknown referral code")
	ErrSelfReferral            = errors.New("self referral not allowed")
	ErrAlreadyReferred         = errors.New("user already referred")
	ErrReferralStateInvalid    = errors.New("referral state invalid")
	ErrCodeGenerationExhausted = errors.New("referral code generation exhausted")
	ErrSettlementInputInvalid  = errors.New("settlement input invalid")
)
