package output_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/output"
)

func newMux(t *testing.T, cfg output.MultiplexerConfig) *output.Multiplexer {
	t.Helper()
	m, err := output.NewMultiplexer(cfg)
	require.NoError(t, err)
	return m
}

func collect(t *testing.T, s *output.Subscription) (lines []string, final *model.ExecutionResult) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return lines, final
			}
			if ev.Line != nil {
				lines = append(lines, ev.Line.Text)
			}
			if ev.Final != nil {
				final = ev.Final
			}
		case <-timeout:
			t.Fatal("timeout waiting for subscription events")
		}
	}
}

func TestNewMultiplexer(t *testing.T) {
	tests := map[string]struct {
		cfg    output.MultiplexerConfig
		expErr bool
	}{
		"Default configuration should be valid.":  {cfg: output.MultiplexerConfig{}},
		"Negative transcript size should fail.":   {cfg: output.MultiplexerConfig{MaxTranscriptBytes: -1}, expErr: true},
		"Negative subscriber buffer should fail.": {cfg: output.MultiplexerConfig{SubscriberBuffer: -1}, expErr: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := output.NewMultiplexer(test.cfg)
			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMultiplexerLiveSubscriber(t *testing.T) {
	assert := assert.New(t)
	m := newMux(t, output.MultiplexerConfig{})

	s := m.Subscribe()
	m.Publish(model.StreamStdout, "a")
	m.Publish(model.StreamStderr, "b")
	m.Close(model.ExecutionResult{ID: "x", Status: model.ExecutionStatusCompleted})

	lines, final := collect(t, s)
	assert.Equal([]string{"a", "b"}, lines)
	require.NotNil(t, final)
	assert.Equal(model.ExecutionStatusCompleted, final.Status)
	assert.Equal(0, m.Subscribers())
}

func TestMultiplexerLateSubscriberGetsBackfill(t *testing.T) {
	assert := assert.New(t)
	m := newMux(t, output.MultiplexerConfig{})

	m.Publish(model.StreamStdout, "1")
	m.Publish(model.StreamStdout, "2")
	s := m.Subscribe()
	m.Publish(model.StreamStdout, "3")
	m.Close(model.ExecutionResult{Status: model.ExecutionStatusFailed})

	lines, final := collect(t, s)
	assert.Equal([]string{"1", "2", "3"}, lines)
	require.NotNil(t, final)
	assert.Equal(model.ExecutionStatusFailed, final.Status)
}

func TestMultiplexerSubscribeAfterClose(t *testing.T) {
	assert := assert.New(t)
	m := newMux(t, output.MultiplexerConfig{})

	m.Publish(model.StreamStdout, "1")
	m.Close(model.ExecutionResult{Status: model.ExecutionStatusCompleted})
	m.Publish(model.StreamStdout, "ignored")

	lines, final := collect(t, m.Subscribe())
	assert.Equal([]string{"1"}, lines)
	require.NotNil(t, final)
}

func TestMultiplexerSlowSubscriberDoesNotBlock(t *testing.T) {
	assert := assert.New(t)
	m := newMux(t, output.MultiplexerConfig{SubscriberBuffer: 4})

	s := m.Subscribe()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			m.Publish(model.StreamStdout, fmt.Sprintf("%d", i))
		}
		m.Close(model.ExecutionResult{Status: model.ExecutionStatusCompleted})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked by a slow subscriber")
	}

	var (
		got     []string
		final   *model.ExecutionResult
		dropped int
	)
	for ev := range s.Events() {
		if ev.Line != nil {
			got = append(got, ev.Line.Text)
		}
		if ev.Final != nil {
			final = ev.Final
		}
		dropped = ev.Dropped
	}

	// Drop oldest: only the newest lines survive and the final event is always there.
	require.NotNil(t, final)
	assert.LessOrEqual(len(got), 4)
	assert.Equal("999", got[len(got)-1])
	assert.Greater(dropped, 0)

	// The transcript is complete regardless of the subscriber.
	lines, truncated, _ := m.Snapshot()
	assert.Len(lines, 1000)
	assert.False(truncated)
}

func TestMultiplexerSubscriptionClose(t *testing.T) {
	assert := assert.New(t)
	m := newMux(t, output.MultiplexerConfig{})

	s := m.Subscribe()
	assert.Equal(1, m.Subscribers())

	s.Close()
	s.Close()
	assert.Equal(0, m.Subscribers())

	_, ok := <-s.Events()
	assert.False(ok)

	// Output keeps flowing after the subscriber is gone.
	m.Publish(model.StreamStdout, "x")
	lines, _, _ := m.Snapshot()
	assert.Len(lines, 1)
}

func TestMultiplexerConcurrentPublishers(t *testing.T) {
	assert := assert.New(t)
	m := newMux(t, output.MultiplexerConfig{})

	var wg sync.WaitGroup
	for _, stream := range []model.Stream{model.StreamStdout, model.StreamStderr} {
		wg.Add(1)
		go func(stream model.Stream) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				m.Publish(stream, "x")
			}
		}(stream)
	}
	wg.Wait()

	lines, _, _ := m.Snapshot()
	assert.Len(lines, 200)
	for i, l := range lines {
		assert.Equal(i+1, l.Seq)
	}
}

func TestReplay(t *testing.T) {
	final := model.ExecutionResult{
		ID:     "id-1",
		Status: model.ExecutionStatusCompleted,
		Transcript: []model.OutputLine{
			{Seq: 1, Stream: model.StreamStdout, Text: "a"},
			{Seq: 2, Stream: model.StreamStdout, Text: "b"},
		},
	}

	s := output.Replay(final)
	lines, got := collect(t, s)

	assert.Equal(t, []string{"a", "b"}, lines)
	require.NotNil(t, got)
	assert.Equal(t, "id-1", got.ID)

	// Closing a replay is a noop.
	s.Close()
}
