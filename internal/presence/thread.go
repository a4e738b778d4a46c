package presence

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"clinichat/pkg/types"
)

// DefaultDedupWindow is the receipt-time tolerance used to collapse an echoed
// or duplicate chat event with its original. Tunable via config.
const DefaultDedupWindow = 1000 * time.Millisecond

// Thread is the append-only message list for one open session. Messages are
// never mutated after creation and the whole list is discarded when the
// session ends. Inbound messages pass a deduplication check: an event whose
// content and senderId match an existing message received within the dedup
// window is dropped. This guards against a message echoing back to its own
// sender over a broadcast-style channel; sent messages are appended
// optimistically and never reconciled against an echo.
type Thread struct {
	mu     sync.Mutex
	window time.Duration
	msgs   []types.Message
}

// NewThread creates an empty thread. window <= 0 selects the default.
func NewThread(window time.Duration) *Thread {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	return &Thread{window: window}
}

// AppendLocal appends an optimistic local message on send.
func (t *Thread) AppendLocal(content string, sender types.Identity, now time.Time) types.Message {
	msg := types.Message{
		ID:         uuid.New().String(),
		Content:    content,
		SenderID:   sender.UserID,
		SenderName: sender.DisplayName,
		Timestamp:  now,
		IsOwn:      true,
	}
	t.mu.Lock()
	t.msgs = append(t.msgs, msg)
	t.mu.Unlock()
	return msg
}

// Receive appends a message derived from an inbound CHAT event, unless the
// dedup check classifies it as a duplicate. Duplicates are a normal-path
// concern, not an error. A gap of exactly the window is kept.
func (t *Thread) Receive(ev types.ChannelEvent, now time.Time) (types.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := len(t.msgs) - 1; i >= 0; i-- {
		existing := t.msgs[i]
		if now.Sub(existing.Timestamp) >= t.window {
			break
		}
		if existing.Content == ev.Content && existing.SenderID == ev.SenderID {
			return types.Message{}, false
		}
	}

	msg := types.Message{
		ID:         uuid.New().String(),
		Content:    ev.Content,
		SenderID:   ev.SenderID,
		SenderName: ev.SenderName,
		Timestamp:  now,
		IsOwn:      false,
	}
	t.msgs = append(t.msgs, msg)
	return msg, true
}

// Messages returns a copy of the thread in append order.
func (t *Thread) Messages() []types.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the message count.
func (t *Thread) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.msgs)
}

// Clear discards the thread.
func (t *Thread) Clear() {
	t.mu.Lock()
	t.msgs = nil
	t.mu.Unlock()
}
