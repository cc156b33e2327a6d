package sync

import (
	stdsync "sync"

	"github.com/google/uuid"

	"github.com/wachbuch/roster-mirror/internal/roster"
)

// Operation names carried in change events.
const (
	OpPublic      = "public"
	OpPrivate     = "private"
	OpMasterData  = "masterdata"
	OpCredentials = "credentials"
	OpCleanup     = "cleanup"
)

// Event describes one finished coordinator operation, success or not.
type Event struct {
	Operation string
	Outcome   roster.FetchOutcome
}

// Notifier fans events out to subscribed observers. Delivery is
// synchronous and in the coordinator's goroutine: observers must return
// quickly and must not call back into the coordinator.
type Notifier struct {
	mu        stdsync.RWMutex
	observers map[uuid.UUID]func(Event)
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{observers: make(map[uuid.UUID]func(Event))}
}

// Subscribe registers an observer and returns the handle to drop it.
func (n *Notifier) Subscribe(fn func(Event)) uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := uuid.New()
	n.observers[id] = fn
	return id
}

// Unsubscribe removes an observer. Unknown handles are a no-op.
func (n *Notifier) Unsubscribe(id uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.observers, id)
}

func (n *Notifier) notify(ev Event) {
	n.mu.RLock()
	observers := make([]func(Event), 0, len(n.observers))
	for _, fn := range n.observers {
		observers = append(observers, fn)
	}
	n.mu.RUnlock()

	for _, fn := range observers {
		fn(ev)
	}
}
