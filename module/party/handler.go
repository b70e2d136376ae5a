package party

import (
	"net/http"

	midsec "WPProject/middleware/security"
	partysrv "WPProject/service/party"
	errs "WPProject/tools/errs"

	"github.com/gin-gonic/gin"
)

// Handler 放映厅查询面
type Handler struct {
	manager *partysrv.Manager
}

func NewHandler(manager *partysrv.Manager) *Handler {
	return &Handler{manager: manager}
}

// HandlerFindByID GET /api/v1/party/:party_id
func (h *Handler) HandlerFindByID(c *gin.Context) {
	rec, err := h.manager.FindByID(c.Request.Context(), c.Param("party_id"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errs.ErrStoreUnavailable)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"msg": "party not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// HandlerFindMine GET /api/v1/party/mine —— 按鉴权用户反查所在的放映厅
func (h *Handler) HandlerFindMine(c *gin.Context) {
	rec, err := h.manager.FindByMemberUserID(c.Request.Context(), midsec.UserID(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errs.ErrStoreUnavailable)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"msg": "party not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
