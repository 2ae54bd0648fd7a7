package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/mwindels/steadyum-go/internal/transport"
	"github.com/stretchr/testify/require"
)

type pingHandler struct{}

func (pingHandler) HandlePublish(key string, payload []byte) error { return nil }
func (pingHandler) HandleQuery(key string) ([]byte, error)         { return []byte("ok"), nil }

func startPingServer(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	n := transport.NewNode(pingHandler{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.ServeListener(ctx, listener)
	}()
	t.Cleanup(func() { cancel(); <-done })
	return listener.Addr().String()
}

func TestLeastPicksLowestTaskCount(t *testing.T) {
	addrA := startPingServer(t)
	addrB := startPingServer(t)
	client := transport.NewNode(pingHandler{})
	t.Cleanup(func() { client.Close() })

	p := New[string](client, nil)
	p.Add(addrA, "a")
	p.Add(addrB, "b")
	t.Cleanup(p.Destroy)

	p.Touch(addrA)
	addr, meta, err := p.Least()
	require.NoError(t, err)
	require.Equal(t, addrB, addr)
	require.Equal(t, "b", meta)
}

func TestRemoveEvicts(t *testing.T) {
	addrA := startPingServer(t)
	client := transport.NewNode(pingHandler{})
	t.Cleanup(func() { client.Close() })

	evicted := make(chan string, 1)
	p := New[string](client, func(addr string, meta string) { evicted <- addr })
	p.Add(addrA, "a")
	t.Cleanup(p.Destroy)

	p.Remove(addrA)
	require.Equal(t, 0, p.Size())
	select {
	case got := <-evicted:
		require.Equal(t, addrA, got)
	case <-time.After(time.Second):
		t.Fatal("onEvict was not called")
	}
}
