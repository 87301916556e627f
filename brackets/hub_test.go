package brackets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_JoinAndLeave(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan struct{})
	go hub.Run(done)
	defer close(done)

	client := &Client{Hub: hub, Send: make(chan []byte, 1), Room: "tournament_1"}
	require.True(t, hub.Join(client))
	require.Eventually(t, func() bool { return hub.RoomSize("tournament_1") == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish(1, EventMatchUpdated, map[string]int{"match_id": 3})
	assert.Len(t, client.Send, 1)

	hub.leave(client)
	require.Eventually(t, func() bool { return hub.RoomSize("tournament_1") == 0 }, time.Second, 5*time.Millisecond)
	client.Mu.Lock()
	assert.True(t, client.IsClosed)
	client.Mu.Unlock()
}

func TestHub_StoppedHubDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	done := make(chan struct{})
	returned := make(chan struct{})
	go func() {
		hub.Run(done)
		close(returned)
	}()
	close(done)
	<-returned

	client := &Client{Hub: hub, Send: make(chan []byte, 1), Room: "tournament_2"}
	result := make(chan bool, 1)
	go func() {
		joined := hub.Join(client)
		hub.leave(client)
		result <- joined
	}()

	select {
	case joined := <-result:
		assert.False(t, joined)
	case <-time.After(time.Second):
		t.Fatal("Join blocked after the hub stopped")
	}
	assert.Zero(t, hub.RoomSize("tournament_2"))
}
