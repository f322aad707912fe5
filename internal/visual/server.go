package visual

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// SafeWriter обеспечивает потокобезопасную запись в WebSocket соединение
type SafeWriter struct {
	conn  *websocket.Conn
	mutex sync.Mutex
}

func NewSafeWriter(conn *websocket.Conn) *SafeWriter {
	return &SafeWriter{conn: conn}
}

// WriteJSON потокобезопасно записывает JSON данные в соединение
func (w *SafeWriter) WriteJSON(v interface{}) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.conn.WriteJSON(v)
}

// Close закрывает WebSocket соединение
func (w *SafeWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.conn.Close()
}

// Hub раздает состояние зеркала сцены всем подключенным клиентам
type Hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*SafeWriter]bool

	// OnConnect вызывается для каждого нового клиента; симуляция
	// шлет ему create-сообщения всей сцены
	OnConnect func(w *SafeWriter)
}

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*SafeWriter]bool),
	}
}

// HandleWS принимает новое WebSocket соединение
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Visual] upgrade: %v", err)
		return
	}
	client := NewSafeWriter(conn)
	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	log.Printf("[Visual] client connected, total=%d", h.ClientCount())

	if h.OnConnect != nil {
		h.OnConnect(client)
	}

	// читаем до отключения клиента; входящих сообщений зеркало не ждет
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(client)
				return
			}
		}
	}()
}

func (h *Hub) drop(client *SafeWriter) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.Close()
	log.Printf("[Visual] client disconnected, total=%d", h.ClientCount())
}

// Broadcast шлет сообщение всем клиентам; отвалившиеся отключаются
func (h *Hub) Broadcast(v interface{}) {
	h.mu.RLock()
	clients := make([]*SafeWriter, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		if err := c.WriteJSON(v); err != nil {
			h.drop(c)
		}
	}
}

// ClientCount возвращает число подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
