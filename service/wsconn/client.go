package wsconn

import (
	"sync"
	"time"

	"WPProject/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Client 一条已接入的实时连接。
// 出站消息全部经过 Send 队列，由唯一的写协程消费，
// 所以同一连接的投递顺序就是入队顺序。
type Client struct {
	ConnID string // 本进程内唯一连接 ID
	UserID string // 鉴权后的用户 ID
	WS     *websocket.Conn
	Send   chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func NewClient(connID, userID string, ws *websocket.Conn, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	return &Client{
		ConnID: connID,
		UserID: userID,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
}

// TrySend 非阻塞投递；连接已关或队列打满返回 false。
// 慢消费者由调用方摘除，广播循环永远不等它。
func (c *Client) TrySend(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// Close 幂等关闭；写协程看到 closed 后收尾
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.WS != nil {
			_ = c.WS.Close()
		}
	})
}

func (c *Client) Closed() <-chan struct{} { return c.closed }

// WritePump 唯一写者：消费 Send 队列 + 周期 ping。
// 写失败即关连接，由读循环侧触发注销。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			return
		case payload := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debugf("[wsconn] write failed conn=%s: %v", c.ConnID, err)
				return
			}
		case <-ticker.C:
			if err := c.WS.WriteControl(websocket.PingMessage, []byte("ping"),
				time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
