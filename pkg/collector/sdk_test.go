package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
	"github.com/codeready-toolchain/argus/pkg/bus"
	"github.com/codeready-toolchain/argus/pkg/classify"
	"github.com/codeready-toolchain/argus/pkg/store"
)

func TestSDKCollector_IngestDeployEvent(t *testing.T) {
	b := bus.New(1024)
	ms := store.NewMemStore()
	c := NewSDKCollector(b, ms, classify.New(nil))

	c.Ingest(context.Background(), "t1", IngestEvent{
		Type:    "deploy",
		Service: "checkout",
		Data: map[string]any{
			"version": "1.2.3",
			"git_sha": "abc123",
			"env":     "prod",
		},
	})

	window := store.Window{Since: time.Now().Add(-time.Hour), Until: time.Now().Add(time.Hour)}
	history, err := ms.QueryDeployHistory(context.Background(), "checkout", window)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "1.2.3", history[0].Version)
}

func TestSDKCollector_IngestPublishesEventToBus(t *testing.T) {
	b := bus.New(1024)
	ms := store.NewMemStore()
	c := NewSDKCollector(b, ms, classify.New(nil))

	received := make(chan argusmodel.Event, 1)
	unsub := b.Subscribe(bus.Filter{}, func(e argusmodel.Event) error {
		received <- e
		return nil
	})
	defer unsub()

	c.Ingest(context.Background(), "t1", IngestEvent{Type: "invocation_start", Service: "checkout", Data: map[string]any{}})

	select {
	case e := <-received:
		assert.Equal(t, "invocation_start", e.Type)
		assert.Equal(t, "t1", e.Tenant)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
