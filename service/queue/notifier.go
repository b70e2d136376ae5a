package queue

import (
	"context"
	"net"
	"net/http"
	"time"

	"WPProject/logger"
	"WPProject/service/broker"
	"WPProject/service/party"
	"WPProject/service/wsconn"
	errs "WPProject/tools/errs"
	ids "WPProject/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type NotifierConf struct {
	IdleTimeout time.Duration
	SendQueue   int
}

func (c *NotifierConf) norm() {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 11 * time.Minute // 略长于队列 TTL
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 16
	}
}

// Notifier 候场通道。入队成功的客户端拿 handle 连上来等通知；
// 组队事件到达时向该 content 的所有候场连接推 party_formed 然后关闭；
// 客户端主动断开视为放弃排队，槽位立即释放（不等 TTL）。
type Notifier struct {
	registry *wsconn.Registry // key = content_id
	engine   *Engine
	codec    HandleDecoder
	conf     NotifierConf
}

// HandleDecoder 只需要解出 content_id 做路由
type HandleDecoder interface {
	DecodeContentID(handle string) (string, error)
}

func NewNotifier(registry *wsconn.Registry, engine *Engine, codec HandleDecoder, conf NotifierConf) *Notifier {
	conf.norm()
	return &Notifier{registry: registry, engine: engine, codec: codec, conf: conf}
}

// HandleWS GET /ws/waiting/:handle
func (n *Notifier) HandleWS(c *gin.Context) {
	handle := c.Param("handle")
	contentID, err := n.codec.DecodeContentID(handle)
	if err != nil {
		c.JSON(errs.HTTPStatus(err), errs.ErrMalformedHandle)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Infof("[waiting] upgrade websocket error: %v", err)
		return
	}

	client := wsconn.NewClient(ids.GenerateString(), "", ws, n.conf.SendQueue)
	go client.WritePump()
	n.registry.Add(contentID, client)
	logger.Infof("[waiting] connected content=%s conn=%s waiting=%d",
		contentID, client.ConnID, n.registry.Count(contentID))

	ws.SetReadLimit(4096)
	_ = ws.SetReadDeadline(time.Now().Add(n.conf.IdleTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(n.conf.IdleTimeout))
	})

	// 候场通道是单向的，入站数据直接丢弃；读出错/对端关闭即收尾
	formed := false
	for {
		if _, _, rerr := ws.ReadMessage(); rerr != nil {
			if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[waiting] read timeout conn=%s", client.ConnID)
			}
			break
		}
		_ = ws.SetReadDeadline(time.Now().Add(n.conf.IdleTimeout))
	}

	select {
	case <-client.Closed():
		// OnPartyFormed 已经推完通知并关闭连接，不算退队
		formed = true
	default:
	}

	n.registry.Remove(contentID, client)
	client.Close()

	if !formed {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := n.engine.Leave(ctx, contentID, handle); err != nil {
			logger.Warnf("[waiting] leave on disconnect failed content=%s: %v", contentID, err)
		}
	}
}

// OnPartyFormed broker 消费回调：通知该 content 的候场连接并断开
func (n *Notifier) OnPartyFormed(ev broker.PartyFormed) error {
	payload := party.BuildPartyFormed(ev.PartyID).Marshal()
	clients := n.registry.ListFor(ev.ContentID)
	for _, c := range clients {
		c.TrySend(payload)
	}
	// 给写协程一点时间把通知刷出去再关
	time.AfterFunc(time.Second, func() {
		for _, c := range clients {
			n.registry.Remove(ev.ContentID, c)
			c.Close()
		}
	})
	logger.Infof("[waiting] party formed party=%s content=%s notified=%d",
		ev.PartyID, ev.ContentID, len(clients))
	return nil
}
