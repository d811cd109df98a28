package taskevent

import "sync"

// DefaultReplayLen is the number of past events a late subscriber can catch
// up on before starting to receive live events.
const DefaultReplayLen = 256

// Stream broadcasts Events to any number of subscribers and keeps a bounded
// replay log so a subscriber that attaches mid-task can catch up. Each
// subscriber gets its own channel buffered to 64 events (grounded on the
// teacher's ChanSink/BackpressureSink fan-out pattern) so a slow consumer
// cannot stall the loop: Publish drops an event for a subscriber whose
// buffer is full. This is a known limitation recorded in DESIGN.md rather
// than true backpressure.
type Stream struct {
	mu          sync.Mutex
	replayLen   int
	replay      []Event
	subscribers map[int]chan Event
	nextSubID   int
	closed      bool
}

// NewStream creates a Stream with the given replay buffer length. A
// non-positive length falls back to DefaultReplayLen.
func NewStream(replayLen int) *Stream {
	if replayLen <= 0 {
		replayLen = DefaultReplayLen
	}
	return &Stream{
		replayLen:   replayLen,
		subscribers: make(map[int]chan Event),
	}
}

// Publish appends ev to the replay log and fans it out to every live
// subscriber. Safe for concurrent use.
func (s *Stream) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.replay = append(s.replay, ev)
	if len(s.replay) > s.replayLen {
		s.replay = s.replay[len(s.replay)-s.replayLen:]
	}
	for _, ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Subscriber is behind; drop rather than block the loop. The
			// replay buffer lets it resync on reconnect.
		}
	}
}

// Subscribe returns a channel of live events plus the replay buffer
// available at attach time (oldest first). Callers should drain replay
// before reading from the channel. Call the returned cancel func to detach.
func (s *Stream) Subscribe() (ch <-chan Event, replay []Event, cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	c := make(chan Event, 64)
	s.subscribers[id] = c

	replayCopy := make([]Event, len(s.replay))
	copy(replayCopy, s.replay)

	return c, replayCopy, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

// Close detaches every subscriber and marks the stream closed to further
// publishes.
func (s *Stream) Close() {
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
