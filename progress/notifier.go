package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"crewportal/api/models"
)

type EventKind string

const (
	EventVisitRecorded EventKind = "visit_recorded"
	EventAcknowledged  EventKind = "acknowledged"
)

// Event is a typed progress-change notification carrying a refreshed
// breakdown for the affected user.
type Event struct {
	UserID    string                    `json:"userId"`
	Kind      EventKind                 `json:"kind"`
	At        time.Time                 `json:"at"`
	Breakdown *models.ProgressBreakdown `json:"breakdown"`
}

// Notifier fans ledger and gate mutations out to subscribers keyed by user
// id. Each subscription drains its own ordered queue, so one user's events
// arrive at each subscriber in publish order; no ordering is promised across
// users. Queues are unbounded: a slow subscriber delays only its own
// delivery, never the writer that published the event.
type Notifier struct {
	mu   sync.Mutex
	subs map[string]map[string]*Subscription
}

func NewNotifier() *Notifier {
	return &Notifier{subs: make(map[string]map[string]*Subscription)}
}

// Subscribe registers a callback for one user's events. The callback runs on
// a dedicated goroutine owned by the subscription. Release the subscription
// with Close when the client session ends.
func (n *Notifier) Subscribe(userID string, fn func(Event)) *Subscription {
	s := &Subscription{
		id:       uuid.New().String(),
		userID:   userID,
		notifier: n,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}

	n.mu.Lock()
	if n.subs[userID] == nil {
		n.subs[userID] = make(map[string]*Subscription)
	}
	n.subs[userID][s.id] = s
	n.mu.Unlock()

	go s.run(fn)
	return s
}

// Publish delivers the event to every current subscriber for the event's
// user. Publish never blocks; events for a closed subscription are dropped.
func (n *Notifier) Publish(ev Event) {
	n.mu.Lock()
	targets := make([]*Subscription, 0, len(n.subs[ev.UserID]))
	for _, s := range n.subs[ev.UserID] {
		targets = append(targets, s)
	}
	n.mu.Unlock()

	for _, s := range targets {
		s.enqueue(ev)
	}
}

func (n *Notifier) remove(s *Subscription) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if m := n.subs[s.userID]; m != nil {
		delete(m, s.id)
		if len(m) == 0 {
			delete(n.subs, s.userID)
		}
	}
}

// Subscription is a handle for one subscriber of one user's event stream.
// Pending events sit in an in-memory queue drained by the subscription's
// goroutine in arrival order.
type Subscription struct {
	id       string
	userID   string
	notifier *Notifier

	mu      sync.Mutex
	pending []Event

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) run(fn func(Event)) {
	for {
		select {
		case <-s.wake:
		case <-s.done:
			return
		}
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			ev := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			fn(ev)
		}
	}
}

// Close releases the subscription. Safe to call multiple times and from
// within the subscription's own callback.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.notifier.remove(s)
		close(s.done)
	})
}
