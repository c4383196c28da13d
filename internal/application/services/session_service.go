package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/torrecontrole/sentinela/internal/core/domain/refresh"
	"github.com/torrecontrole/sentinela/internal/core/ports"
)

var ErrSessionNotFound = errors.New("session not found")

const subscriberBuffer = 4

// Session is one open dashboard: its own refresh coordinator, the field
// monitor feeding it, and the SSE subscribers receiving its results.
type Session struct {
	ID          uuid.UUID
	Actor       string
	CreatedAt   time.Time
	Coordinator *RefreshCoordinator
	Fields      *FieldMonitor

	mu          sync.Mutex
	subscribers map[int]chan refresh.Result
	nextSubID   int
	latest      *refresh.Result
	lastSeen    time.Time
	closed      bool
}

// Subscribe returns a channel receiving every delivered result and a function
// that cancels the subscription. A subscriber that falls behind misses
// results rather than blocking the coordinator. The channel is closed when
// the subscription is cancelled or the session is closed.
func (s *Session) Subscribe() (<-chan refresh.Result, func()) {
	ch := make(chan refresh.Result, subscriberBuffer)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

// Latest returns the last result handed to subscribers.
func (s *Session) Latest() (refresh.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return refresh.Result{}, false
	}
	return *s.latest, true
}

func (s *Session) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Session) publish(res refresh.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.latest = &res
	for _, ch := range s.subscribers {
		select {
		case ch <- res:
		default:
		}
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscribers) > 0 {
		return 0
	}
	return now.Sub(s.lastSeen)
}

func (s *Session) close() {
	s.Coordinator.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

// SessionService keeps the open sessions of the process.
type SessionService struct {
	cfg      RefreshConfig
	source   ports.DatasetReloader
	notifier ports.NotificationService
	logger   *logrus.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

func NewSessionService(cfg RefreshConfig, source ports.DatasetReloader, notifier ports.NotificationService, logger *logrus.Logger) *SessionService {
	return &SessionService{
		cfg:      cfg,
		source:   source,
		notifier: notifier,
		logger:   logger,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Create opens a session for actor. autoRefresh sets the initial opt-in state.
func (s *SessionService) Create(ctx context.Context, actor string, autoRefresh bool) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:          uuid.New(),
		Actor:       actor,
		CreatedAt:   now,
		subscribers: make(map[int]chan refresh.Result),
		lastSeen:    now,
	}

	coord, err := NewRefreshCoordinator(s.cfg, s.source, sess.publish, s.notifier, s.logger)
	if err != nil {
		return nil, err
	}
	sess.Coordinator = coord
	sess.Fields = NewFieldMonitor(coord.NotifyTyping)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	total := len(s.sessions)
	s.mu.Unlock()

	if autoRefresh {
		coord.Enable(true)
	}
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"session_id": sess.ID, "actor": actor, "auto_refresh": autoRefresh, "sessions": total}).Info("session opened")
	}
	return sess, nil
}

func (s *SessionService) Get(id uuid.UUID) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(time.Now())
	return sess, nil
}

func (s *SessionService) Close(id uuid.UUID) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.close()
	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{"session_id": id, "actor": sess.Actor}).Info("session closed")
	}
	return nil
}

func (s *SessionService) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[uuid.UUID]*Session)
	s.mu.Unlock()
	for _, sess := range all {
		sess.close()
	}
}

func (s *SessionService) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ReapIdle closes sessions without subscribers that were not used for maxIdle.
func (s *SessionService) ReapIdle(maxIdle time.Duration) int {
	now := time.Now()
	var idle []uuid.UUID
	s.mu.RLock()
	for id, sess := range s.sessions {
		if sess.idleSince(now) >= maxIdle {
			idle = append(idle, id)
		}
	}
	s.mu.RUnlock()

	n := 0
	for _, id := range idle {
		if err := s.Close(id); err == nil {
			n++
		}
	}
	return n
}

// Run reaps idle sessions every interval until ctx is done.
func (s *SessionService) Run(ctx context.Context, every, maxIdle time.Duration) {
	if every <= 0 || maxIdle <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.ReapIdle(maxIdle); n > 0 && s.logger != nil {
				s.logger.WithFields(logrus.Fields{"closed": n}).Info("closed idle sessions")
			}
		}
	}
}
