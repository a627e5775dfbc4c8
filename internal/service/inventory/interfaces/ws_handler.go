// internal/service/inventory/interfaces/ws_handler.go
package interfaces

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stockhold/internal/pkg/logger"
	"stockhold/internal/service/inventory/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
		return true
	},
}

// StockPushHub 维护所有活跃的库存订阅连接，并负责消息广播。
// 商详页通过它实时看到 "仅剩 N 件" 的变化，不用轮询。
// 实现 port.StockLevelBroadcaster，由应用层在每次成功变更后调用。
type StockPushHub struct {
	clients    map[*pushClient]struct{}
	register   chan *pushClient
	unregister chan *pushClient
	broadcast  chan *domain.StockLevel
	stopCh     chan struct{}
	stopOnce   sync.Once
}

// NewStockPushHub 创建推送中心
func NewStockPushHub() *StockPushHub {
	return &StockPushHub{
		clients:    make(map[*pushClient]struct{}),
		register:   make(chan *pushClient),
		unregister: make(chan *pushClient),
		broadcast:  make(chan *domain.StockLevel, 256),
		stopCh:     make(chan struct{}),
	}
}

// Run 启动 Hub 主循环，所有对 clients 的读写都收敛到这个 goroutine
func (h *StockPushHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			wsConnectedClients.Inc()
			logger.Logger.Debug().Int("products", len(client.products)).Msg("Stock push client registered")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				wsConnectedClients.Dec()
			}
		case level := <-h.broadcast:
			payload, err := json.Marshal(level)
			if err != nil {
				continue
			}
			for client := range h.clients {
				if !client.subscribed(level.ProductID) {
					continue
				}
				select {
				case client.send <- payload:
				default:
					// 写缓冲满说明对端卡死，直接踢掉
					delete(h.clients, client)
					close(client.send)
					wsConnectedClients.Dec()
				}
			}
		case <-h.stopCh:
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
				wsConnectedClients.Dec()
			}
			return
		}
	}
}

// Stop 停止主循环并断开所有客户端
func (h *StockPushHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
}

// BroadcastLevel 把最新库存快照异步推给所有订阅者，满了就丢，推送只是加速器
func (h *StockPushHub) BroadcastLevel(level *domain.StockLevel) {
	select {
	case h.broadcast <- level:
	default:
	}
}

// pushClient 是一个 WebSocket 连接的代表
type pushClient struct {
	hub      *StockPushHub
	conn     *websocket.Conn
	send     chan []byte
	products map[string]struct{} // 空表示订阅全部
}

func (c *pushClient) subscribed(productID string) bool {
	if len(c.products) == 0 {
		return true
	}
	_, ok := c.products[productID]
	return ok
}

// readPump 读取心跳并在连接断开时注销客户端
func (c *pushClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump 把 send channel 中的消息写入 websocket，并周期性发送 ping
func (c *pushClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs 处理 GET /ws/stocks?ids=p1,p2 的订阅请求。
// ids 为空表示订阅全部商品的库存变化。
func (h *StockPushHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	// 1. HTTP 升级为 WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to upgrade stock push connection")
		return
	}

	// 2. 解析订阅的商品集合
	products := make(map[string]struct{})
	if ids := r.URL.Query().Get("ids"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			if id = strings.TrimSpace(id); id != "" {
				products[id] = struct{}{}
			}
		}
	}

	// 3. 创建客户端实例并注册到 Hub
	client := &pushClient{hub: h, conn: conn, send: make(chan []byte, 256), products: products}
	client.hub.register <- client

	// 4. 启动读写 goroutine
	go client.writePump()
	go client.readPump()
}
