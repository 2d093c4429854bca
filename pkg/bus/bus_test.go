package bus

import (
	"sync"
	"testing"
	"time"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish_FiltersBySeverity(t *testing.T) {
	b := New(1024)

	var mu sync.Mutex
	var received []argusmodel.Event
	done := make(chan struct{}, 10)

	unsub := b.Subscribe(Filter{
		Severities: map[argusmodel.Severity]struct{}{argusmodel.SeverityUrgent: {}},
	}, func(e argusmodel.Event) error {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	defer unsub()

	b.Publish(argusmodel.Event{Type: "cpu_high", Severity: argusmodel.SeverityNotable})
	b.Publish(argusmodel.Event{Type: "cpu_critical", Severity: argusmodel.SeverityUrgent})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for handler")
	}

	time.Sleep(20 * time.Millisecond) // let any second (unwanted) delivery land
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, "cpu_critical", received[0].Type)
}

func TestPublish_HandlerPanicDoesNotBlockOthers(t *testing.T) {
	b := New(1024)
	var count int
	var mu sync.Mutex
	done := make(chan struct{}, 2)

	b.Subscribe(Filter{}, func(e argusmodel.Event) error {
		done <- struct{}{}
		panic("boom")
	})
	b.Subscribe(Filter{}, func(e argusmodel.Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	b.Publish(argusmodel.Event{Type: "x"})

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("timed out")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestRingBuffer_DropsOldest(t *testing.T) {
	b := New(1024)
	for i := 0; i < 1030; i++ {
		b.Publish(argusmodel.Event{Type: "tick"})
	}
	recent := b.Recent(0)
	assert.Len(t, recent, 1024)
}

func TestPerSubscriberFIFO(t *testing.T) {
	b := New(1024)
	var mu sync.Mutex
	var seq []int
	done := make(chan struct{})

	b.Subscribe(Filter{}, func(e argusmodel.Event) error {
		n, _ := e.Value("n")
		mu.Lock()
		seq = append(seq, int(n))
		if len(seq) == 5 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	for i := 0; i < 5; i++ {
		b.Publish(argusmodel.Event{Data: map[string]any{"n": float64(i)}})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seq)
}
