package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/mwindels/steadyum-go/internal/codec"
)

// envelope packs a routing key alongside its payload so a single
// wrapperspb.BytesValue can carry both over the wire.
type envelope struct {
	Key     string
	Payload []byte
}

// Handler answers inbound publishes and queries addressed to this node,
// keyed by the wire-schema strings of spec.md §6.2.
type Handler interface {
	// HandlePublish delivers a command-queue message (e.g. runner/{uuid}).
	HandlePublish(key string, payload []byte) error
	// HandleQuery answers a queryable get (e.g. steadyum/watch/{uuid}?{region}).
	HandleQuery(key string) ([]byte, error)
}

// Node is a gRPC-backed transport endpoint: it serves inbound Publish/Query
// calls via Handler, and dials peers to make outbound ones, caching
// connections by address the way the teacher's workers pool keys
// connections by address (master/pool/pool.go).
type Node struct {
	handler Handler

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn

	server *grpc.Server
}

// NewNode constructs a transport endpoint backed by handler.
func NewNode(handler Handler) *Node {
	return &Node{handler: handler, conns: make(map[string]*grpc.ClientConn)}
}

// Serve starts a gRPC server on addr and blocks until it stops or ctx is
// canceled, mirroring newRegistrar's server.Serve(listener) loop.
func (n *Node) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen on %q: %w", addr, err)
	}
	return n.ServeListener(ctx, listener)
}

// ServeListener is like Serve but accepts an already-bound listener, which
// lets tests bind an ephemeral port before the address is known.
func (n *Node) ServeListener(ctx context.Context, listener net.Listener) error {
	n.server = grpc.NewServer()
	RegisterTransportServer(n.server, n)

	errCh := make(chan error, 1)
	go func() { errCh <- n.server.Serve(listener) }()

	select {
	case <-ctx.Done():
		n.server.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Stop gracefully stops the server, if running.
func (n *Node) Stop() {
	if n.server != nil {
		n.server.GracefulStop()
	}
}

// Publish implements TransportServer by unpacking the envelope and
// delegating to the Handler.
func (n *Node) Publish(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	var env envelope
	if err := codec.Decode(in.GetValue(), &env); err != nil {
		return nil, fmt.Errorf("transport: decode envelope: %w", err)
	}
	if err := n.handler.HandlePublish(env.Key, env.Payload); err != nil {
		return nil, err
	}
	return &emptypb.Empty{}, nil
}

// Query implements TransportServer by unpacking the envelope and
// delegating to the Handler.
func (n *Node) Query(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	var env envelope
	if err := codec.Decode(in.GetValue(), &env); err != nil {
		return nil, fmt.Errorf("transport: decode envelope: %w", err)
	}
	answer, err := n.handler.HandleQuery(env.Key)
	if err != nil {
		return nil, err
	}
	return &wrapperspb.BytesValue{Value: answer}, nil
}

func (n *Node) dial(addr string) (*grpc.ClientConn, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if conn, ok := n.conns[addr]; ok {
		return conn, nil
	}
	conn, err := grpc.Dial(addr, grpc.WithInsecure())
	if err != nil {
		return nil, fmt.Errorf("transport: dial %q: %w", addr, err)
	}
	n.conns[addr] = conn
	return conn, nil
}

// PublishTo sends payload to key at the peer listening on addr.
func (n *Node) PublishTo(ctx context.Context, addr, key string, payload []byte) error {
	conn, err := n.dial(addr)
	if err != nil {
		return err
	}
	body, err := codec.Encode(envelope{Key: key, Payload: payload})
	if err != nil {
		return fmt.Errorf("transport: encode envelope: %w", err)
	}
	_, err = NewTransportClient(conn).Publish(ctx, &wrapperspb.BytesValue{Value: body})
	return err
}

// QueryFrom asks the peer listening on addr to answer key, returning its
// raw payload.
func (n *Node) QueryFrom(ctx context.Context, addr, key string) ([]byte, error) {
	conn, err := n.dial(addr)
	if err != nil {
		return nil, err
	}
	body, err := codec.Encode(envelope{Key: key})
	if err != nil {
		return nil, fmt.Errorf("transport: encode envelope: %w", err)
	}
	resp, err := NewTransportClient(conn).Query(ctx, &wrapperspb.BytesValue{Value: body})
	if err != nil {
		return nil, err
	}
	return resp.GetValue(), nil
}

// Close tears down every cached outbound connection.
func (n *Node) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	var firstErr error
	for addr, conn := range n.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(n.conns, addr)
	}
	return firstErr
}
