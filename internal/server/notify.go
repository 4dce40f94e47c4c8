package server

import "time"

// NoticeKind names a lifecycle event.
type NoticeKind string

const (
	NoticeWindowCreated  NoticeKind = "window-created"
	NoticeWindowShown    NoticeKind = "window-shown"
	NoticeCloseRequested NoticeKind = "close-requested"
	NoticeStreamEnded    NoticeKind = "stream-ended"
)

// Notice is sent to subscribers when something happens to the server or
// one of its windows.
type Notice struct {
	Kind   NoticeKind `json:"kind"`
	Window uint32     `json:"window,omitempty"`
	Time   time.Time  `json:"time"`
}

// Subscribe adds a listener for notices. The channel is closed by
// Unsubscribe or Shutdown.
func (s *WindowServer) Subscribe() chan Notice {
	ch := make(chan Notice, 10)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() == Destroyed {
		close(ch)
		return ch
	}
	s.listeners = append(s.listeners, ch)
	return ch
}

// Unsubscribe removes a listener
func (s *WindowServer) Unsubscribe(ch chan Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, listener := range s.listeners {
		if listener == ch {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

// notify fans n out to every listener without blocking.
func (s *WindowServer) notify(n Notice) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, listener := range s.listeners {
		select {
		case listener <- n:
		default:
			// Skip if channel is full
		}
	}
}

func (s *WindowServer) closeListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.listeners {
		close(ch)
	}
	s.listeners = nil
}
