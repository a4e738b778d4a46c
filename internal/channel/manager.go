package channel

import (
	"context"
	"log"
	"net/url"
	"sync"
	"time"

	"clinichat/pkg/types"
)

// StatusListener is invoked on every up/down transition of the channel.
// It is guaranteed at least one invocation once the initial connection
// attempt resolves.
type StatusListener func(connected bool)

// FrameHandler receives each inbound raw frame in arrival order.
type FrameHandler func(data []byte)

// Manager owns the one logical bidirectional channel for the process.
// Multiple UI surfaces share a single Manager; each registers its own
// listeners and must filter events relevant to it. Connect is idempotent,
// transport failures are retried transparently, and callers only ever
// observe the connected flag.
type Manager struct {
	transport Transport
	baseURL   string
	retry     *RetryPolicy

	mu              sync.Mutex
	identity        types.Identity
	started         bool
	closed          bool
	connected       bool
	resolved        bool
	conn            Conn
	statusListeners []StatusListener
	frameHandler    FrameHandler
	done            chan struct{}

	writeMu sync.Mutex
}

// NewManager creates a channel manager dialing baseURL (a ws:// or wss://
// endpoint). A nil retry policy selects the defaults.
func NewManager(transport Transport, baseURL string, retry *RetryPolicy) *Manager {
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Manager{
		transport: transport,
		baseURL:   baseURL,
		retry:     retry,
	}
}

// Connect registers the identity and establishes the underlying channel.
// Idempotent: calling again with the same identity is a no-op; a different
// identity is rejected because the identity is immutable for the channel's
// lifetime.
func (m *Manager) Connect(identity types.Identity) error {
	if err := identity.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrManagerClosed
	}
	if m.started {
		if m.identity == identity {
			return nil
		}
		return ErrIdentityMismatch
	}

	m.identity = identity
	m.started = true
	m.done = make(chan struct{})

	go m.run(m.done)
	return nil
}

// OnStatusChange registers a connectivity listener. If the initial connection
// attempt has already resolved the listener is invoked immediately with the
// current status.
func (m *Manager) OnStatusChange(fn StatusListener) {
	m.mu.Lock()
	m.statusListeners = append(m.statusListeners, fn)
	resolved, current := m.resolved, m.connected
	m.mu.Unlock()

	if resolved {
		fn(current)
	}
}

// OnFrame registers the inbound frame handler. The event router owns this
// hook; frames are delivered synchronously in arrival order, which preserves
// per-sender ordering end to end.
func (m *Manager) OnFrame(fn FrameHandler) {
	m.mu.Lock()
	m.frameHandler = fn
	m.mu.Unlock()
}

// Connected reports the current channel status.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Identity returns the registered identity. Zero value before Connect.
func (m *Manager) Identity() types.Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.identity
}

// Send writes a raw frame to the channel. Returns ErrNotConnected when the
// channel is down; callers gate sends on the connected flag, so there is no
// queuing or replay.
func (m *Manager) Send(data []byte) error {
	m.mu.Lock()
	if !m.connected || m.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected
	}
	conn := m.conn
	m.mu.Unlock()

	// Serialize writes: the transport permits one concurrent writer.
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(data)
}

// Teardown stops the reconnect loop and closes the connection. The manager
// cannot be reused afterwards; intended for tests and surface unmount.
func (m *Manager) Teardown() {
	m.mu.Lock()
	if !m.started || m.closed {
		m.closed = true
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.done)
	conn := m.conn
	m.conn = nil
	m.connected = false
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// run is the connect/read/reconnect loop. One goroutine per manager.
func (m *Manager) run(done chan struct{}) {
	attempt := 0
	for {
		select {
		case <-done:
			return
		default:
		}

		conn, err := m.transport.Dial(context.Background(), m.dialURL())
		if err != nil {
			attempt++
			m.setStatus(false)
			delay := m.retry.NextDelay(attempt)
			log.Printf("channel: dial failed (attempt %d), retrying in %s: %v", attempt, delay, err)
			select {
			case <-time.After(delay):
				continue
			case <-done:
				return
			}
		}

		attempt = 0
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.conn = conn
		m.mu.Unlock()
		m.setStatus(true)

		m.readLoop(conn, done)

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		m.setStatus(false)

		select {
		case <-done:
			return
		default:
			// Fall through to redial.
		}
	}
}

// readLoop delivers inbound frames until the connection drops.
func (m *Manager) readLoop(conn Conn, done chan struct{}) {
	defer func() { _ = conn.Close() }()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				log.Printf("channel: read failed, reconnecting: %v", err)
			}
			return
		}

		m.mu.Lock()
		handler := m.frameHandler
		m.mu.Unlock()
		if handler != nil {
			handler(data)
		}
	}
}

// setStatus records the status and notifies listeners on transitions. The
// first resolution always notifies, even when the attempt failed, so the UI
// can leave its "connecting" state.
func (m *Manager) setStatus(connected bool) {
	m.mu.Lock()
	if m.resolved && m.connected == connected {
		m.mu.Unlock()
		return
	}
	m.connected = connected
	m.resolved = true
	listeners := make([]StatusListener, len(m.statusListeners))
	copy(listeners, m.statusListeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(connected)
	}
}

// dialURL carries the identity as query parameters, registering it with the
// channel service at handshake time.
func (m *Manager) dialURL() string {
	m.mu.Lock()
	id := m.identity
	m.mu.Unlock()

	q := url.Values{}
	q.Set("userId", id.UserID)
	q.Set("displayName", id.DisplayName)
	q.Set("role", string(id.Role))
	return m.baseURL + "?" + q.Encode()
}
