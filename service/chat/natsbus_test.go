package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"RoomChat/service/natsx"

	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/stretchr/testify/require"
)

func runNats(t *testing.T) string {
	t.Helper()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s.ClientURL()
}

func newNatsBus(t *testing.T, url, name string) *NatsBus {
	t.Helper()
	client, err := natsx.NewNatsxClient(natsx.NatsxConfig{Servers: []string{url}, Name: name}, natsx.NatsxRecover())
	require.NoError(t, err)
	bus := NewNatsBus(client, "test")
	t.Cleanup(func() {
		_ = bus.Close()
		_ = client.Close()
	})
	return bus
}

func TestNatsBusGroupRefCount(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	bus := newNatsBus(t, runNats(t), "n1")
	a, b := &sink{}, &sink{}

	req.NoError(bus.Attach(ctx, "n1!a", a))
	req.NoError(bus.Attach(ctx, "n1!b", b))
	req.NoError(bus.Subscribe(ctx, "r1", "n1!a"))
	req.NoError(bus.Subscribe(ctx, "r1", "n1!b"))
	req.Equal(1, bus.Groups())

	req.NoError(bus.PublishToGroup(ctx, "r1", Event{Command: CmdNewMessage, Payload: []byte(`{}`)}))
	req.Eventually(func() bool { return a.len() == 1 && b.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	req.NoError(bus.Unsubscribe(ctx, "r1", "n1!a"))
	req.Equal(1, bus.Groups())
	req.NoError(bus.Detach(ctx, "n1!b"))
	req.Zero(bus.Groups())
}

func TestNatsBusConcurrentFirstSubscribersShareOneSubscription(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	client, err := natsx.NewNatsxClient(natsx.NatsxConfig{Servers: []string{runNats(t)}, Name: "n1"})
	req.NoError(err)
	bus := NewNatsBus(client, "test")
	t.Cleanup(func() {
		_ = bus.Close()
		_ = client.Close()
	})

	handles := []string{"n1!a", "n1!b", "n1!c", "n1!d"}
	sinks := make([]*sink, len(handles))
	for i, h := range handles {
		sinks[i] = &sink{}
		req.NoError(bus.Attach(ctx, h, sinks[i]))
	}

	var wg sync.WaitGroup
	errCh := make(chan error, len(handles))
	for _, h := range handles {
		wg.Add(1)
		go func(h string) {
			defer wg.Done()
			errCh <- bus.Subscribe(ctx, "r1", h)
		}(h)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		req.NoError(err)
	}
	req.Equal(1, bus.Groups())
	req.Equal(len(handles)+1, client.Subscriptions())

	// every subscriber returned after the group subscription went live
	req.NoError(bus.PublishToGroup(ctx, "r1", Event{Command: CmdNewMessage, Payload: []byte(`{}`)}))
	req.Eventually(func() bool {
		for _, s := range sinks {
			if s.len() != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNatsBusLocalBookkeepingDoesNotWaitOnBroker(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	ns := natsserver.RunServer(&opts)
	t.Cleanup(ns.Shutdown)

	client, err := natsx.NewNatsxClient(natsx.NatsxConfig{Servers: []string{ns.ClientURL()}, Name: "n", Timeout: time.Second})
	req.NoError(err)
	bus := NewNatsBus(client, "test")
	t.Cleanup(func() {
		_ = bus.Close()
		_ = client.Close()
	})

	req.NoError(bus.Attach(ctx, "n!a", &sink{}))
	req.NoError(bus.Attach(ctx, "n!b", &sink{}))
	req.NoError(bus.Subscribe(ctx, "g", "n!a"))
	req.NoError(bus.Subscribe(ctx, "g", "n!b"))

	// with the broker gone this attach waits out the flush timeout
	ns.Shutdown()
	slow := make(chan error, 1)
	go func() { slow <- bus.Attach(ctx, "n!slow", &sink{}) }()
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	req.NoError(bus.Unsubscribe(ctx, "g", "n!b"))
	req.NoError(bus.Detach(ctx, "n!b"))
	elapsed := time.Since(start)
	req.True(elapsed < 300*time.Millisecond, "local unsubscribe took %s", elapsed)
	req.Equal(1, bus.Groups())

	select {
	case err := <-slow:
		req.Error(err)
		req.False(bus.Registry().attached("n!slow"))
	case <-time.After(5 * time.Second):
		req.Fail("attach never returned")
	}
}

func TestNatsBusAcrossNodes(t *testing.T) {
	req := require.New(t)
	url := runNats(t)
	h := newHarness(t)
	srv1 := h.server(newNatsBus(t, url, "n1"), nil, "n1")
	srv2 := h.server(newNatsBus(t, url, "n2"), nil, "n2")

	a, b, c := h.user(t, "alice"), h.user(t, "bob"), h.user(t, "carol")
	roomR := h.room(t, a, b, c)
	other := h.room(t, c)

	sessA, recA := connect(t, srv1, a, roomR)
	_, recB := connect(t, srv2, b, roomR)
	_, recC := connect(t, srv2, c, other)

	send(t, sessA, InboundFrame{Command: CmdNewMessage, Message: "hi"})

	req.Eventually(func() bool {
		return recB.count(t, CmdNewMessage) == 1 && recB.count(t, CmdChatsListMessage) == 1 &&
			recC.count(t, CmdChatsListMessage) == 1 && recA.count(t, CmdNewMessage) == 1
	}, 3*time.Second, 10*time.Millisecond)

	// give stray deliveries a moment to show up
	time.Sleep(100 * time.Millisecond)
	req.Zero(recA.count(t, CmdChatsListMessage))
	req.Zero(recC.count(t, CmdNewMessage))
	req.Equal("hi", recC.last(t)["message"].(map[string]any)["content"])
}
