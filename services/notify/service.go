// Package notify fans presentation-layer notifications out to subscribers
// (the SSE stream, primarily). Delivery is fire-and-forget: a slow subscriber
// loses notifications rather than blocking the pipeline.
package notify

import (
	"sync"

	"github.com/techmailbox/shipmail/dto"
	"github.com/techmailbox/shipmail/interfaces"
	"github.com/techmailbox/shipmail/internal/logger"
	"github.com/techmailbox/shipmail/internal/utils"
)

const subscriberBuffer = 64

type Service struct {
	log logger.Logger

	mu          sync.RWMutex
	subscribers map[string]chan dto.Notification
}

func NewService(log logger.Logger) *Service {
	return &Service{
		log:         log,
		subscribers: make(map[string]chan dto.Notification),
	}
}

// Subscribe registers a new listener and returns its id and channel. The
// channel is closed on Unsubscribe.
func (s *Service) Subscribe() (string, <-chan dto.Notification) {
	id := utils.GenerateNanoIDWithPrefix("sub", 8)
	ch := make(chan dto.Notification, subscriberBuffer)

	s.mu.Lock()
	s.subscribers[id] = ch
	s.mu.Unlock()

	return id, ch
}

func (s *Service) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		delete(s.subscribers, id)
		close(ch)
	}
}

func (s *Service) RowInserted(view string, row interface{}) {
	s.publish(dto.Notification{Type: dto.NotificationRowInserted, View: view, Row: row, At: utils.Now()})
}

func (s *Service) RowUpdated(view string, row interface{}) {
	s.publish(dto.Notification{Type: dto.NotificationRowUpdated, View: view, Row: row, At: utils.Now()})
}

func (s *Service) DocumentSaved(event dto.DocumentSaved) {
	s.publish(dto.Notification{Type: dto.NotificationDocumentSaved, Document: &event, At: utils.Now()})
}

func (s *Service) Log(level string, message string) {
	s.publish(dto.Notification{Type: dto.NotificationLog, Level: level, Message: message, At: utils.Now()})
}

func (s *Service) publish(n dto.Notification) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, ch := range s.subscribers {
		select {
		case ch <- n:
		default:
			s.log.Warnf("notification dropped for slow subscriber %s", id)
		}
	}
}

var _ interfaces.Notifier = (*Service)(nil)
