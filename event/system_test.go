package event

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestSystem(t *testing.T) {
	t.Parallel()

	t.Run("subscribe", func(t *testing.T) {
		t.Parallel()
		es := NewSystem(10, testLogger())

		require.Len(t, es.subscribers, 0)

		s1id, s1ch := es.Subscribe(DocumentOpened)
		assert.Equal(t, uint64(1), s1id)
		assert.NotNil(t, s1ch)
		assert.Len(t, es.subscribers, 1)
		assert.Len(t, es.subscribers[DocumentOpened], 1)

		s2id, s2ch := es.Subscribe(DocumentOpened, IndexingDone)
		assert.Equal(t, uint64(2), s2id)
		assert.NotNil(t, s2ch)
		assert.Len(t, es.subscribers[DocumentOpened], 2)
		assert.Len(t, es.subscribers[IndexingDone], 1)
	})

	t.Run("subscribe/panic", func(t *testing.T) {
		t.Parallel()
		es := NewSystem(10, testLogger())
		assert.PanicsWithValue(t, "must subscribe to at least 1 event type", func() {
			es.Subscribe()
		})
	})

	t.Run("emit and receive", func(t *testing.T) {
		t.Parallel()
		es := NewSystem(10, testLogger())

		_, ch := es.Subscribe(DocumentOpened, DocumentChanged)

		var deliveredMu sync.Mutex
		delivered := map[Type]int{}
		for _, et := range []Type{DocumentOpened, DocumentChanged, DocumentClosed} {
			et := et
			es.Emit(&Event{Type: et, Data: "file:///x.pl", Done: func() {
				deliveredMu.Lock()
				delivered[et]++
				deliveredMu.Unlock()
			}})
		}

		var got []Type
		timeout := time.After(5 * time.Second)
		for len(got) < 2 {
			select {
			case ev := <-ch:
				got = append(got, ev.Type)
				assert.Equal(t, "file:///x.pl", ev.Data)
			case <-timeout:
				t.Fatal("events not delivered")
			}
		}
		assert.ElementsMatch(t, []Type{DocumentOpened, DocumentChanged}, got)

		// Done fires even with no subscriber for the type
		require.Eventually(t, func() bool {
			deliveredMu.Lock()
			defer deliveredMu.Unlock()
			return delivered[DocumentClosed] == 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("emit and wait", func(t *testing.T) {
		t.Parallel()
		es := NewSystem(1, testLogger())
		_, ch := es.Subscribe(IndexingDone)

		go func() {
			ev := <-ch
			assert.Equal(t, 42, ev.Data)
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, es.EmitAndWait(ctx, &Event{Type: IndexingDone, Data: 42}))
	})

	t.Run("emit and wait times out on stuck subscriber", func(t *testing.T) {
		t.Parallel()
		es := NewSystem(0, testLogger())
		_, _ = es.Subscribe(Exit) // never drained, zero buffer

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		err := es.EmitAndWait(ctx, &Event{Type: Exit})
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("unsubscribe closes channel", func(t *testing.T) {
		t.Parallel()
		es := NewSystem(10, testLogger())
		id, ch := es.Subscribe(DocumentOpened)
		es.Unsubscribe(id)
		_, open := <-ch
		assert.False(t, open)
	})
}
