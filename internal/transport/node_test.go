package transport

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu        sync.Mutex
	published map[string][]byte
	answers   map[string][]byte
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{published: make(map[string][]byte), answers: make(map[string][]byte)}
}

func (h *recordingHandler) HandlePublish(key string, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published[key] = payload
	return nil
}

func (h *recordingHandler) HandleQuery(key string) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.answers[key], nil
}

func startNode(t *testing.T, handler Handler) (*Node, string) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	n := NewNode(handler)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		n.ServeListener(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return n, listener.Addr().String()
}

func TestPublishDeliversToHandler(t *testing.T) {
	handler := newRecordingHandler()
	_, addr := startNode(t, handler)

	client := NewNode(newRecordingHandler())
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, client.PublishTo(ctx, addr, "runner/abc", []byte("hello")))

	require.Eventually(t, func() bool {
		handler.mu.Lock()
		defer handler.mu.Unlock()
		return string(handler.published["runner/abc"]) == "hello"
	}, time.Second, 10*time.Millisecond)
}

func TestQueryReturnsHandlerAnswer(t *testing.T) {
	handler := newRecordingHandler()
	handler.answers["steadyum/watch/x?y"] = []byte("watchset")
	_, addr := startNode(t, handler)

	client := NewNode(newRecordingHandler())
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := client.QueryFrom(ctx, addr, "steadyum/watch/x?y")
	require.NoError(t, err)
	require.Equal(t, "watchset", string(got))
}
