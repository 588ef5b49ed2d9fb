package message

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMsg struct {
	producer int
	seq      int
}

func TestQueueFIFOSingleProducer(t *testing.T) {
	q := NewQueue()

	for i := 0; i < 100; i++ {
		q.Push(&testMsg{seq: i})
	}

	for i := 0; i < 100; i++ {
		msg, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, msg.(*testMsg).seq)
	}

	_, ok := q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueuePerProducerOrderAcrossThreads(t *testing.T) {
	const producers = 8
	const perProducer = 500

	q := NewQueue()
	var wg sync.WaitGroup

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(&testMsg{producer: p, seq: i})
			}
		}(p)
	}
	wg.Wait()

	lastSeq := make(map[int]int)
	for p := 0; p < producers; p++ {
		lastSeq[p] = -1
	}

	count := 0
	for {
		msg, ok := q.Pop()
		if !ok {
			break
		}
		m := msg.(*testMsg)
		require.Greater(t, m.seq, lastSeq[m.producer],
			"producer %d out of order", m.producer)
		lastSeq[m.producer] = m.seq
		count++
	}

	assert.Equal(t, producers*perProducer, count)
}

func TestQueueWakeCollapses(t *testing.T) {
	q := NewQueue()

	q.Push(&testMsg{seq: 0})
	q.Push(&testMsg{seq: 1})
	q.Push(&testMsg{seq: 2})

	// One wake token may stand for several pushes; draining after a single
	// receive must still observe every message.
	<-q.Wake()
	n := 0
	for {
		if _, ok := q.Pop(); !ok {
			break
		}
		n++
	}
	assert.Equal(t, 3, n)

	select {
	case <-q.Wake():
		// A leftover token is fine, the drain loop above already emptied it.
	default:
	}
}

func TestQueuePopEmpty(t *testing.T) {
	q := NewQueue()
	msg, ok := q.Pop()
	assert.Nil(t, msg)
	assert.False(t, ok)
}
