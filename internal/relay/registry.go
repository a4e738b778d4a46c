package relay

import (
	"log"
	"sync"

	"clinichat/pkg/types"
)

// registry tracks connected clients by userId and by role side. Reads vastly
// outnumber writes during routing, hence the RWMutex.
type registry struct {
	mu     sync.RWMutex
	byUser map[string]*conn
}

func newRegistry() *registry {
	return &registry{byUser: make(map[string]*conn)}
}

// register installs the connection, replacing any existing one for the same
// userId. The displaced connection is closed asynchronously so a client
// reconnecting over a half-dead socket is never blocked on its own corpse.
func (r *registry) register(c *conn) {
	userID := c.identity.UserID

	r.mu.Lock()
	existing := r.byUser[userID]
	r.byUser[userID] = c
	r.mu.Unlock()

	if existing != nil {
		go func() {
			existing.close()
			log.Printf("relay: replaced connection for %s", userID)
		}()
	}
}

// unregister removes the connection only if it is still the registered one,
// so a replaced connection's cleanup never evicts its successor. Reports
// whether this call removed the current registration.
func (r *registry) unregister(c *conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byUser[c.identity.UserID] != c {
		return false
	}
	delete(r.byUser, c.identity.UserID)
	return true
}

func (r *registry) get(userID string) (*conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byUser[userID]
	return c, ok
}

// side returns every connection on the given role side (staff side includes
// both STAFF and DOCTOR).
func (r *registry) side(staffSide bool) []*conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*conn
	for _, c := range r.byUser {
		if c.identity.Role.StaffSide() == staffSide {
			out = append(out, c)
		}
	}
	return out
}

// stats is exposed by the health endpoint.
func (r *registry) stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	patients, staff := 0, 0
	for _, c := range r.byUser {
		if c.identity.Role == types.RolePatient {
			patients++
		} else {
			staff++
		}
	}
	return map[string]int{
		"total_connections": len(r.byUser),
		"patients":          patients,
		"staff":             staff,
	}
}
