package wsserver

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/marmos91/fsx/internal/logger"
	"github.com/marmos91/fsx/pkg/fspath"
	"github.com/marmos91/fsx/pkg/watch"
)

// frame is one outbound protocol message.
type frame struct {
	Type      string `json:"type"`
	Path      string `json:"path,omitempty"`
	Recursive bool   `json:"recursive,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Handler upgrades /watch requests and runs the per-connection read loop.
type Handler struct {
	registry *watch.Registry
	upgrader websocket.Upgrader
}

// NewHandler creates the watch endpoint handler.
func NewHandler(registry *watch.Registry) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// wsConn adapts a gorilla connection to watch.Conn. Gorilla allows one
// concurrent writer, so writes are serialized here.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Watch handles GET /watch. The path query parameter is the initial
// subscription; recursive=true widens it to the whole subtree.
func (h *Handler) Watch(w http.ResponseWriter, r *http.Request) {
	rawPath := r.URL.Query().Get("path")
	if rawPath == "" {
		writeJSONError(w, http.StatusBadRequest, watch.ErrMissingPath)
		return
	}
	if _, err := fspath.Normalize(rawPath); err != nil {
		writeJSONError(w, http.StatusBadRequest, watch.ErrInvalidPath)
		return
	}

	if status, ok := checkUpgradeHeaders(w, r); !ok {
		w.WriteHeader(status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	wc := &wsConn{conn: conn}
	defer func() {
		h.registry.RemoveConnection(wc)
		conn.Close()
	}()

	recursive := r.URL.Query().Get("recursive") == "true"
	initial, _ := json.Marshal(map[string]any{
		"type":      "subscribe",
		"path":      rawPath,
		"recursive": recursive,
	})
	h.respond(wc, h.registry.HandleMessage(wc, string(initial)))

	h.readLoop(wc, conn)
}

// readLoop dispatches inbound frames until the peer closes. Any close code
// ends the loop; cleanup is the caller's deferred RemoveConnection.
func (h *Handler) readLoop(wc *wsConn, conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("watch connection closed abnormally", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		h.respond(wc, h.registry.HandleMessage(wc, string(data)))
	}
}

// respond maps a registry response to an outbound frame.
func (h *Handler) respond(wc *wsConn, resp watch.Response) {
	f := frame{Path: resp.Path, Recursive: resp.Recursive}
	switch {
	case !resp.Success:
		f.Type = "error"
		f.Error = resp.Error
	case resp.Type == "subscribe":
		f.Type = "subscribed"
	default:
		f.Type = "unsubscribed"
	}

	payload, err := json.Marshal(f)
	if err != nil {
		return
	}
	if err := wc.WriteMessage(payload); err != nil {
		logger.Debug("watch response write failed", "error", err)
	}
}

// checkUpgradeHeaders validates the RFC 6455 handshake preconditions so
// non-upgrade requests get the right status before gorilla takes over.
func checkUpgradeHeaders(w http.ResponseWriter, r *http.Request) (int, bool) {
	if !websocket.IsWebSocketUpgrade(r) {
		w.Header().Set("Upgrade", "websocket")
		w.Header().Set("Connection", "Upgrade")
		return http.StatusUpgradeRequired, false
	}
	if r.Header.Get("Sec-WebSocket-Key") == "" {
		return http.StatusBadRequest, false
	}
	if r.Header.Get("Sec-WebSocket-Version") != "13" {
		w.Header().Set("Sec-WebSocket-Version", "13")
		return http.StatusBadRequest, false
	}
	return 0, true
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(frame{Type: "error", Error: code})
}
