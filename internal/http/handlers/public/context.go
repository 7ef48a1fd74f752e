package public

import (
	handlershared "github.com/referral-next/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

func paramUint(c *gin.Context, name, invalidMsg string) (uint, bool) {
	return handlershared.ParamUint(c, name, invalidMsg)
}
