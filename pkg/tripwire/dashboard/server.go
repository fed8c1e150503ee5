// Package dashboard serves a live view of handler firings over HTTP and
// WebSocket. It observes an engine through its firing observer hook and
// never touches the dispatch path beyond that.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chosenoffset/tripwire/pkg/tripwire"
)

const (
	maxClients   = 100
	recentSize   = 200
	firingBuffer = 256
)

// Server is the dashboard HTTP server. Firing records arrive on a buffered
// channel and are dropped when the dashboard cannot keep up, so a slow
// browser never stalls dispatch.
type Server struct {
	engine   *tripwire.Engine
	port     int
	server   *http.Server
	upgrader websocket.Upgrader

	clientsMutex sync.RWMutex
	clients      map[*websocket.Conn]bool

	firings chan tripwire.FiringRecord
	stop    chan struct{}

	mutex  sync.RWMutex
	recent []tripwire.FiringRecord
}

// NewServer creates a dashboard for an engine listening on the given port.
func NewServer(engine *tripwire.Engine, port int) *Server {
	return &Server{
		engine: engine,
		port:   port,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return origin == fmt.Sprintf("http://localhost:%d", port) ||
					origin == fmt.Sprintf("http://127.0.0.1:%d", port)
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*websocket.Conn]bool),
		firings: make(chan tripwire.FiringRecord, firingBuffer),
		stop:    make(chan struct{}),
	}
}

// Start installs the firing observer and serves until Stop. It blocks, so
// call it from its own goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/handlers", s.handleHandlers)
	mux.HandleFunc("/api/firings", s.handleFirings)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: mux,
	}

	s.engine.SetObserver(s.record)
	go s.broadcast()

	return s.server.ListenAndServe()
}

// Stop detaches the observer and shuts the server down.
func (s *Server) Stop() error {
	s.engine.SetObserver(nil)
	close(s.stop)
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(ctx)
	}
	return nil
}

// record runs on the dispatching goroutine and must not block.
func (s *Server) record(rec tripwire.FiringRecord) {
	select {
	case s.firings <- rec:
	default:
		// Drop if the dashboard cannot keep up.
	}
}

func (s *Server) broadcast() {
	for {
		select {
		case rec := <-s.firings:
			s.mutex.Lock()
			s.recent = append(s.recent, rec)
			if len(s.recent) > recentSize {
				s.recent = s.recent[len(s.recent)-recentSize:]
			}
			s.mutex.Unlock()
			s.send("firing", rec)
		case <-s.stop:
			return
		}
	}
}

func (s *Server) send(msgType string, data any) {
	payload, err := json.Marshal(map[string]any{"type": msgType, "data": data})
	if err != nil {
		return
	}

	s.clientsMutex.Lock()
	defer s.clientsMutex.Unlock()
	for conn := range s.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.clientsMutex.Lock()
	if len(s.clients) >= maxClients {
		s.clientsMutex.Unlock()
		http.Error(w, "too many clients", http.StatusServiceUnavailable)
		return
	}
	s.clientsMutex.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.clientsMutex.Lock()
	s.clients[conn] = true
	s.clientsMutex.Unlock()

	// Drain the read side to notice disconnects.
	go func() {
		defer func() {
			s.clientsMutex.Lock()
			delete(s.clients, conn)
			s.clientsMutex.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

type handlerInfo struct {
	ID     string   `json:"id"`
	State  string   `json:"state"`
	Fired  uint64   `json:"fired"`
	Points []string `json:"points"`
}

func (s *Server) handleHandlers(w http.ResponseWriter, r *http.Request) {
	handlers := s.engine.Handlers()
	out := make([]handlerInfo, 0, len(handlers))
	for _, h := range handlers {
		info := handlerInfo{
			ID:    h.ID(),
			State: h.State().String(),
			Fired: h.FireCount(),
		}
		for _, p := range h.Points() {
			info.Points = append(info.Points, p.String())
		}
		out = append(out, info)
	}
	writeJSON(w, out)
}

func (s *Server) handleFirings(w http.ResponseWriter, r *http.Request) {
	s.mutex.RLock()
	out := make([]tripwire.FiringRecord, len(s.recent))
	copy(out, s.recent)
	s.mutex.RUnlock()
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "data": data})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	html := `<!DOCTYPE html>
<html>
<head>
    <title>Tripwire Dashboard</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; background: #f5f5f5; }
        .header { background: #2c3e50; color: white; padding: 20px; border-radius: 5px; margin-bottom: 20px; }
        .grid { display: grid; grid-template-columns: 1fr 1fr; gap: 20px; }
        .card { background: white; padding: 20px; border-radius: 5px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .firing { padding: 8px; margin: 4px 0; border-left: 4px solid #3498db; background: #ecf0f1; font-family: monospace; font-size: 0.9em; }
        .firings-list { max-height: 500px; overflow-y: auto; }
        .timestamp { font-size: 0.8em; color: #7f8c8d; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 8px; border-bottom: 1px solid #ecf0f1; }
        .state-active { color: #2ecc71; font-weight: bold; }
        .state-disabled { color: #f39c12; font-weight: bold; }
    </style>
</head>
<body>
    <div class="header">
        <h1>Tripwire Dashboard</h1>
        <p>Live handler firings and registry state</p>
    </div>

    <div class="grid">
        <div class="card">
            <h3>Handlers</h3>
            <table>
                <thead><tr><th>ID</th><th>State</th><th>Fired</th><th>Points</th></tr></thead>
                <tbody id="handlers-body">
                    <tr><td colspan="4">Loading...</td></tr>
                </tbody>
            </table>
        </div>

        <div class="card">
            <h3>Recent Firings</h3>
            <div class="firings-list" id="firings-list">
                <div class="firing">Waiting for firings...</div>
            </div>
        </div>
    </div>

    <script>
        const ws = new WebSocket('ws://' + location.host + '/ws');

        ws.onmessage = function(event) {
            const msg = JSON.parse(event.data);
            if (msg.type === 'firing') {
                addFiring(msg.data);
            }
        };

        function addFiring(rec) {
            const list = document.getElementById('firings-list');
            const div = document.createElement('div');
            div.className = 'firing';
            div.innerHTML =
                '<div>' + rec.unit + ' ' + rec.kind +
                (rec.line ? ':' + rec.line : '') +
                ' &rarr; ' + rec.handler_id + '</div>' +
                '<div class="timestamp">' + new Date(rec.time).toLocaleTimeString() + '</div>';
            list.insertBefore(div, list.firstChild);
            while (list.children.length > 50) {
                list.removeChild(list.lastChild);
            }
        }

        function refreshHandlers() {
            fetch('/api/handlers')
                .then(r => r.json())
                .then(resp => {
                    const body = document.getElementById('handlers-body');
                    const rows = (resp.data || []).map(h =>
                        '<tr><td>' + h.id + '</td>' +
                        '<td class="state-' + h.state.toLowerCase() + '">' + h.state + '</td>' +
                        '<td>' + h.fired + '</td>' +
                        '<td>' + (h.points || []).join('<br>') + '</td></tr>');
                    body.innerHTML = rows.join('') || '<tr><td colspan="4">No handlers registered</td></tr>';
                });
        }

        refreshHandlers();
        setInterval(refreshHandlers, 2000);
    </script>
</body>
</html>`
	w.Header().Set("Content-Type", "text/html")
	w.Write([]byte(html))
}
