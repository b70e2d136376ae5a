package auth

import (
	"net/http"

	errs "WPProject/tools/errs"
	sec "WPProject/tools/security"

	"github.com/gin-gonic/gin"
)

// Handler 开发环境签发令牌。生产走独立的账号服务，
// 这里只在 dev_token_mint 打开时挂路由。
type Handler struct {
	jwt sec.Options
}

func NewHandler(jwt sec.Options) *Handler {
	return &Handler{jwt: jwt}
}

type tokenRequest struct {
	UserID string `form:"user_id" json:"user_id" binding:"required"`
}

// HandlerDevToken POST /api/v1/dev/token
func (h *Handler) HandlerDevToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail("user_id required"))
		return
	}

	token, exp, err := sec.Generate(h.jwt, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"msg": "token generation failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": exp.Unix()})
}
