package events

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// subscriberBuffer bounds each subscriber channel; a slow consumer drops
// events rather than blocking publishers.
const subscriberBuffer = 64

// Service is an in-process pub/sub bus for job lifecycle events.
type Service struct {
	mu          sync.RWMutex
	subscribers map[int]chan *models.Event
	nextID      int
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[int]chan *models.Event),
		logger:      logger,
	}
}

// Publish delivers an event to all subscribers without blocking. Events
// to saturated subscribers are dropped.
func (s *Service) Publish(event *models.Event) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Warn().
				Int("subscriber", id).
				Str("event_type", string(event.Type)).
				Msg("Subscriber buffer full, dropping event")
		}
	}
}

// Subscribe registers a new subscriber and returns its channel plus an
// unsubscribe function. The channel is closed on unsubscribe.
func (s *Service) Subscribe() (<-chan *models.Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan *models.Event, subscriberBuffer)
	s.subscribers[id] = ch

	s.logger.Debug().Int("subscriber", id).Msg("Event subscriber registered")

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}
