package notify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHubDeliversToRegisteredClient(t *testing.T) {
	h := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	c := &Client{hub: h, send: make(chan []byte, 1), principalID: 1}
	h.register <- c

	h.Publish(NewEvent(EventUsageLimitReached, 1, "usage limit exceeded", nil))

	select {
	case payload := <-c.send:
		require.Contains(t, string(payload), string(EventUsageLimitReached))
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestHubShutdownReleasesDetachingClients(t *testing.T) {
	h := NewHub(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	c := &Client{hub: h, send: make(chan []byte, 1), principalID: 1}
	h.register <- c

	cancel()

	// Shutdown closes registered send channels; wait for it.
	select {
	case _, ok := <-c.send:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("hub did not shut down")
	}

	// A client detaching after shutdown must not block on the
	// unregister channel nobody services anymore.
	detached := make(chan struct{})
	go func() {
		c.detach()
		close(detached)
	}()

	select {
	case <-detached:
	case <-time.After(time.Second):
		t.Fatal("detach blocked after hub shutdown")
	}
}

func TestHubPublishNeverBlocks(t *testing.T) {
	h := NewHub(zap.NewNop())

	// Nobody is running the hub; saturate the buffer and keep going.
	for i := 0; i < 300; i++ {
		h.Publish(NewEvent(EventOverageCharged, 1, "usage over plan limit billed at overage rate", nil))
	}
}
