package relay

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"clinichat/pkg/types"
)

var upgrader = websocket.Upgrader{
	// Development relay, all origins allowed.
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// Handler exposes the relay over HTTP: the WebSocket endpoint, a health
// check, and a development stub for the account profile endpoint so the
// terminal client can run without the real backend.
type Handler struct {
	relay  *Relay
	store  *Store // nil when the event log is disabled
	router *http.ServeMux
}

func NewHandler(relay *Relay, store *Store) *Handler {
	h := &Handler{
		relay:  relay,
		store:  store,
		router: http.NewServeMux(),
	}
	h.router.HandleFunc("/ws", h.handleChannel)
	h.router.HandleFunc("/health", h.handleHealth)
	h.router.HandleFunc("/api/users/me", h.handleProfileStub)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// handleChannel validates the identity carried in the query string, upgrades,
// and pumps inbound frames into the relay until the client drops.
func (h *Handler) handleChannel(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	role, err := types.ParseRole(q.Get("role"))
	if err != nil {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}
	identity := types.Identity{
		UserID:      q.Get("userId"),
		DisplayName: q.Get("displayName"),
		Role:        role,
	}
	if err := identity.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("relay: upgrade failed: %v", err)
		return
	}

	c := newConn(ws, identity)
	h.relay.attach(c)
	defer func() {
		h.relay.detach(c)
		c.close()
	}()

	for {
		data, err := c.read()
		if err != nil {
			return
		}
		h.relay.dispatch(c, data)
	}
}

type healthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	EventLog    string         `json:"eventLog"`
	Connections map[string]int `json:"connections"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "healthy",
		Timestamp:   time.Now(),
		EventLog:    "disabled",
		Connections: h.relay.Stats(),
	}
	if h.store != nil {
		resp.EventLog = "healthy"
		if err := h.store.HealthCheck(); err != nil {
			resp.Status = "unhealthy"
			resp.EventLog = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// handleProfileStub mimics the account service's profile endpoint for local
// runs: ?email=&fullName=&role= are echoed back in the real response shape.
func (h *Handler) handleProfileStub(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email := q.Get("email")
	if email == "" {
		email = "dev@clinic.local"
	}
	fullName := q.Get("fullName")
	if fullName == "" {
		fullName = "Dev User"
	}
	role := q.Get("role")
	if role == "" {
		role = string(types.RolePatient)
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":       1,
		"email":    email,
		"fullName": fullName,
		"roleDto":  map[string]string{"name": role},
	})
}
