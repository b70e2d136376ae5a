package queue

import (
	"net/http"

	midsec "WPProject/middleware/security"
	"WPProject/service/identity"
	queuesrv "WPProject/service/queue"
	errs "WPProject/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handler 排队 HTTP 面。user_id 取自 JWT 的 sub，
// 设备标识沿用 User-Agent 头（同账号不同设备可以各占一个槽位）。
type Handler struct {
	engine *queuesrv.Engine
	codec  *identity.Codec
}

func NewHandler(engine *queuesrv.Engine, codec *identity.Codec) *Handler {
	return &Handler{engine: engine, codec: codec}
}

type joinRequest struct {
	FilmID string `form:"film_id" json:"film_id" binding:"required"`
}

// HandlerJoin POST /api/v1/film_together
// 200：{"client_handle": ...}（继续等）或 {"party_id": ..., "member_user_ids": [...]}（当场组队）
// 400 缺设备标识 / 409 重复排队 / 503 存储不可用或竞争过热
func (h *Handler) HandlerJoin(c *gin.Context) {
	var req joinRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail("film_id required"))
		return
	}

	deviceToken := c.Request.UserAgent()
	if deviceToken == "" {
		c.JSON(http.StatusBadRequest, errs.ErrValidation.WithDetail("missing device identifier"))
		return
	}

	id := identity.Identity{
		ContentID:   req.FilmID,
		UserID:      midsec.UserID(c),
		DeviceToken: deviceToken,
	}

	res, err := h.engine.Join(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Formed {
		c.JSON(http.StatusOK, gin.H{
			"party_id":        res.PartyID,
			"member_user_ids": res.MemberUserIDs,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"client_handle": res.Handle})
}

// HandlerLeave DELETE /api/v1/film_together/:handle
func (h *Handler) HandlerLeave(c *gin.Context) {
	handle := c.Param("handle")
	contentID, err := h.codec.DecodeContentID(handle)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.engine.Leave(c.Request.Context(), contentID, handle); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"left": true})
}

func writeError(c *gin.Context, err error) {
	if codeErr, ok := errs.AsCodeError(err); ok {
		c.JSON(errs.HTTPStatus(err), codeErr)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"msg": "internal error"})
}
