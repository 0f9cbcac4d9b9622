// Package output fans out the output of a running execution.
//
// Every line is always recorded on the bounded transcript and then offered to
// the live subscribers. Delivery to subscribers never blocks the producer: each
// subscriber has a buffered channel and when it is full the oldest pending
// event is dropped to make room for the new one (drop-oldest). The final event
// is always delivered.
package output

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/slok/scriptrun/internal/log"
	"github.com/slok/scriptrun/internal/model"
)

const (
	// DefaultMaxTranscriptBytes is the default transcript size bound.
	DefaultMaxTranscriptBytes = 1024 * 1024
	// DefaultSubscriberBuffer is the default number of live events buffered per subscriber.
	DefaultSubscriberBuffer = 256
)

// MultiplexerConfig is the configuration of the multiplexer.
type MultiplexerConfig struct {
	MaxTranscriptBytes int
	SubscriberBuffer   int
	Logger             log.Logger
	// TimeNow is used to timestamp lines.
	TimeNow func() time.Time
}

func (c *MultiplexerConfig) defaults() error {
	if c.MaxTranscriptBytes < 0 {
		return fmt.Errorf("max transcript bytes can't be negative")
	}
	if c.MaxTranscriptBytes == 0 {
		c.MaxTranscriptBytes = DefaultMaxTranscriptBytes
	}
	if c.SubscriberBuffer < 0 {
		return fmt.Errorf("subscriber buffer can't be negative")
	}
	if c.SubscriberBuffer == 0 {
		c.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	if c.TimeNow == nil {
		c.TimeNow = time.Now
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "output.Multiplexer"})
	return nil
}

// Multiplexer records the output of one execution and fans it out to subscribers.
// It's safe for concurrent use.
type Multiplexer struct {
	mu         sync.Mutex
	transcript *Transcript
	subs       map[uint64]*Subscription
	nextSubID  uint64
	seq        int
	final      *model.ExecutionResult
	buffer     int
	timeNow    func() time.Time
	logger     log.Logger
}

// NewMultiplexer returns a new multiplexer.
func NewMultiplexer(cfg MultiplexerConfig) (*Multiplexer, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Multiplexer{
		transcript: NewTranscript(cfg.MaxTranscriptBytes),
		subs:       map[uint64]*Subscription{},
		buffer:     cfg.SubscriberBuffer,
		timeNow:    cfg.TimeNow,
		logger:     cfg.Logger,
	}, nil
}

// Publish records a line and offers it to the subscribers. Lines published
// after Close are ignored.
func (m *Multiplexer) Publish(stream model.Stream, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.final != nil {
		return
	}

	m.seq++
	line := model.OutputLine{
		Seq:    m.seq,
		Stream: stream,
		Text:   strings.ToValidUTF8(text, "�"),
		Time:   m.timeNow().UTC(),
	}
	m.transcript.Append(line)

	for _, s := range m.subs {
		l := line
		s.offer(model.Event{Line: &l})
	}
}

// Snapshot returns the transcript so far.
func (m *Multiplexer) Snapshot() (lines []model.OutputLine, truncated bool, dropped int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.transcript.Lines(), m.transcript.Truncated(), m.transcript.Dropped()
}

// Subscribe attaches a new subscriber. The subscriber receives the retained
// transcript first and then the live lines with no gap. If the multiplexer is
// already closed it receives the transcript and the final event.
func (m *Multiplexer) Subscribe() *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	backfill := m.transcript.Lines()
	s := &Subscription{
		mux: m,
		ch:  make(chan model.Event, len(backfill)+m.buffer+1),
	}
	for i := range backfill {
		s.ch <- model.Event{Line: &backfill[i]}
	}

	if m.final != nil {
		s.ch <- model.Event{Final: m.final}
		s.closed = true
		close(s.ch)
		return s
	}

	m.nextSubID++
	s.id = m.nextSubID
	m.subs[s.id] = s

	return s
}

// Close delivers the final result to all the subscribers and detaches them.
// Only the first call has effect.
func (m *Multiplexer) Close(final model.ExecutionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.final != nil {
		return
	}
	m.final = &final

	for id, s := range m.subs {
		s.offer(model.Event{Final: m.final})
		s.closed = true
		close(s.ch)
		delete(m.subs, id)
		if s.dropped > 0 {
			m.logger.Debugf("Subscriber %d dropped %d events", id, s.dropped)
		}
	}
}

// Subscribers returns the number of attached subscribers.
func (m *Multiplexer) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Replay returns an already closed subscription with the transcript and the
// final event of a finished execution.
func Replay(final model.ExecutionResult) *Subscription {
	s := &Subscription{
		ch:     make(chan model.Event, len(final.Transcript)+1),
		closed: true,
	}
	for i := range final.Transcript {
		l := final.Transcript[i]
		s.ch <- model.Event{Line: &l}
	}
	s.ch <- model.Event{Final: &final}
	close(s.ch)

	return s
}

// Subscription is a live view of an execution output.
type Subscription struct {
	id      uint64
	mux     *Multiplexer
	ch      chan model.Event
	dropped int
	closed  bool
}

// Events returns the events channel, it's closed after the final event or
// when the subscription is closed.
func (s *Subscription) Events() <-chan model.Event { return s.ch }

// Close detaches the subscriber, it never blocks on the producer and doesn't
// affect the execution.
func (s *Subscription) Close() {
	if s.mux == nil {
		return
	}
	s.mux.mu.Lock()
	defer s.mux.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	delete(s.mux.subs, s.id)
	close(s.ch)
}

// offer must be called with the multiplexer lock held.
func (s *Subscription) offer(ev model.Event) {
	ev.Dropped = s.dropped
	select {
	case s.ch <- ev:
		return
	default:
	}

	// Full, drop the oldest pending event.
	select {
	case <-s.ch:
		s.dropped++
		ev.Dropped = s.dropped
	default:
	}

	select {
	case s.ch <- ev:
	default:
		s.dropped++
	}
}
