package party

import (
	"context"
	"net"
	"net/http"
	"time"

	"WPProject/logger"
	"WPProject/service/wsconn"
	errs "WPProject/tools/errs"
	ids "WPProject/tools/ids"
	sec "WPProject/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type WSServerConf struct {
	JWT         sec.Options
	IdleTimeout time.Duration // 无消息无 pong 即断开
	SendQueue   int
}

func (c *WSServerConf) norm() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
}

// WSServer 放映厅实时通道入口：ws://host/ws/party/:party_id?token=xxx
type WSServer struct {
	bc      *Broadcaster
	manager *Manager
	conf    WSServerConf
}

func NewWSServer(bc *Broadcaster, manager *Manager, conf WSServerConf) *WSServer {
	conf.norm()
	return &WSServer{bc: bc, manager: manager, conf: conf}
}

// HandleWS 鉴权→校验成员资格→升级→读循环。
// 连接断开（或读超时）后注销注册表条目，session 协程随之结束。
func (s *WSServer) HandleWS(c *gin.Context) {
	partyID := c.Param("party_id")
	userID, err := sec.Verify(s.conf.JWT, c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, errs.ErrTokenExpired.WithDetail(err.Error()))
		return
	}

	rec, err := s.manager.FindByID(c.Request.Context(), partyID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, errs.ErrStoreUnavailable)
		return
	}
	if rec == nil || !memberOf(rec, userID) {
		c.JSON(http.StatusForbidden, errs.ErrValidation.WithDetail("not a member of this party"))
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[party] upgrade websocket error: %v", err)
		return
	}

	client := wsconn.NewClient(ids.GenerateString(), userID, ws, s.conf.SendQueue)
	go client.WritePump()

	ws.SetReadLimit(1 << 20) // 1MB
	_ = ws.SetReadDeadline(time.Now().Add(s.conf.IdleTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.conf.IdleTimeout))
	})

	ctx := c.Request.Context()
	s.bc.HandleConnect(ctx, partyID, client)

	// ---- 读循环：只读，不写；出错即退出 ----
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[party] peer closed conn=%s err=%v", client.ConnID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[party] read timeout conn=%s err=%v", client.ConnID, rerr)
			} else {
				logger.Infof("[party] read err conn=%s err=%v", client.ConnID, rerr)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		_ = ws.SetReadDeadline(time.Now().Add(s.conf.IdleTimeout))

		frame, perr := ParseFrame(data)
		if perr != nil {
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Infof("[party] ParseFrame err conn=%s err=%v sample=%q", client.ConnID, perr, sample)
			continue
		}

		s.bc.HandleFrame(ctx, partyID, client, frame)
	}

	// ---- 退出阶段：请求 context 此时多半已取消，收尾用独立的短超时 ----
	{
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.bc.HandleDisconnect(cleanupCtx, partyID, client)
	}
}

func memberOf(rec *PartyRecord, userID string) bool {
	for _, id := range rec.MemberUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}
