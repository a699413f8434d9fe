package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/haolipeng/firewall_ledger/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 256 // 缓冲满时丢弃
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// DecisionHub 通过 WebSocket 向订阅者实时推送决策，同时作为流水线的 sink
type DecisionHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}
	closed  bool
	ready   chan struct{}
	once    sync.Once
}

type wsClient struct {
	conn   *websocket.Conn
	sendCh chan *types.DecisionResult
}

func NewDecisionHub() *DecisionHub {
	return &DecisionHub{
		clients: make(map[*wsClient]struct{}),
		ready:   make(chan struct{}),
	}
}

// Consume 把收到的决策广播给所有订阅者，结束时断开所有连接
func (h *DecisionHub) Consume(ctx context.Context, in <-chan *types.DecisionResult) error {
	logrus.Info("Starting decision hub")
	h.mu.Lock()
	h.closed = false
	h.mu.Unlock()
	defer h.shutdown()

	h.once.Do(func() { close(h.ready) })

	for {
		select {
		case <-ctx.Done():
			return nil
		case result, ok := <-in:
			if !ok {
				return nil
			}
			if result != nil {
				h.Broadcast(result)
			}
		}
	}
}

func (h *DecisionHub) Ready() <-chan struct{} {
	return h.ready
}

// Broadcast 非阻塞发送，订阅者缓冲满时丢弃该决策
func (h *DecisionHub) Broadcast(result *types.DecisionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.sendCh <- result:
		default:
			logrus.Debug("websocket client buffer full, dropping decision")
		}
	}
}

// Clients 当前订阅者数量
func (h *DecisionHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// HandleWS 升级为 WebSocket 连接并订阅决策
func (h *DecisionHub) HandleWS(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logrus.Warnf("websocket upgrade failed: %v", err)
		return nil
	}

	client := &wsClient{conn: conn, sendCh: make(chan *types.DecisionResult, sendBuffer)}
	if !h.register(client) {
		conn.Close()
		return nil
	}

	go client.writeLoop()
	client.readLoop()
	h.unregister(client)
	return nil
}

func (h *DecisionHub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

// unregister 发送通道只在持锁时关闭
func (h *DecisionHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.sendCh)
	}
}

func (h *DecisionHub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.sendCh)
	}
	logrus.Info("Decision hub stopped")
}

func (c *wsClient) writeLoop() {
	defer c.conn.Close()
	for result := range c.sendCh {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(result); err != nil {
			return
		}
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop 丢弃客户端消息，连接断开时返回
func (c *wsClient) readLoop() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
