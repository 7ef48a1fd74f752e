package public

import (
	"errors"

	"github.com/referral-next/internal/http/response"
	"github.com/referral-next/internal/service"

	"github.com/gin-gonic/gin"
)

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var referralCodeErrorRules = []mappedHandlerError{
	{target: service.ErrNotFound, code: response.CodeNotFound, msg: "error.user_not_found"},
	{target: service.ErrUserDisabled, code: response.CodeBadRequest, msg: "error.user_disabled"},
	{target: service.ErrCodeGenerationExhausted, code: response.CodeInternal, msg: "error.referral_code_exhausted"},
}

var referralSettlementErrorRules = []mappedHandlerError{
	{target: service.ErrNotFound, code: response.CodeNotFound, msg: "error.referral_not_found"},
	{target: service.ErrSettlementInputInvalid, code: response.CodeBadRequest, msg: "error.settlement_input_invalid"},
}

var referralOrderErrorRules = []mappedHandlerError{
	{target: service.ErrNotFound, code: response.CodeNotFound, msg: "error.referral_not_found"},
	{target: service.ErrReferralStateInvalid, code: response.CodeConflict, msg: "error.referral_state_invalid"},
	{target: service.ErrSettlementInputInvalid, code: response.CodeBadRequest, msg: "error.order_no_invalid"},
}

func respondReferralCodeError(c *gin.Context, err error) {
	respondWithMappedError(c, err, referralCodeErrorRules, response.CodeInternal, "error.referral_code_failed")
}

func respondReferralSettlementError(c *gin.Context, err error) {
	respondWithMappedError(c, err, referralSettlementErrorRules, response.CodeInternal, "error.settlement_failed")
}

func respondReferralOrderError(c *gin.Context, err error) {
	respondWithMappedError(c, err, referralOrderErrorRules, response.CodeInternal, "error.order_attach_failed")
}
