// Package pool provides a heartbeat-monitored, least-busy-first registry of
// peers, adapted from the teacher's master/pool/pool.go worker pool. A
// Child uses it to track its Region Workers; the Master does not use it.
// It gives the same thing the teacher's pool gave its tracing workers: a
// live connection per peer, automatic eviction on missed
// heartbeats, and a way to pick the least-loaded peer when an assignment
// has no more specific placement rule.
package pool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mwindels/steadyum-go/internal/transport"
)

// HeartbeatFrequency controls how often heartbeats are sent to each peer.
const HeartbeatFrequency = 500 * time.Millisecond

// HeartbeatTimeout controls how long a heartbeat is waited on before the
// peer is assumed to be disconnected.
const HeartbeatTimeout = 1000 * time.Millisecond

// heartbeatKey is the well-known query key every peer answers to prove
// liveness, standing in for the teacher's dedicated Heartbeat RPC.
const heartbeatKey = "steadyum/heartbeat"

// entry is one tracked peer.
type entry[T any] struct {
	addr  string
	meta  T
	tasks uint
	index int

	stop chan struct{}
}

// Pool is a threadsafe, heartbeat-monitored registry of peers of metadata
// type T (a Child stores the scene ID each of its workers serves).
type Pool[T any] struct {
	mu        sync.RWMutex
	heap      []*entry[T]
	addresses map[string]*entry[T]
	node      *transport.Node

	onEvict func(addr string, meta T)
}

// New creates an empty pool that dials peers through node and calls onEvict
// (if non-nil) whenever a peer is removed, whether by explicit Remove or by
// missed heartbeats.
func New[T any](node *transport.Node, onEvict func(addr string, meta T)) *Pool[T] {
	return &Pool[T]{
		addresses: make(map[string]*entry[T]),
		node:      node,
		onEvict:   onEvict,
	}
}

// Size returns the number of live peers.
func (p *Pool[T]) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.heap)
}

func (p *Pool[T]) swap(i, j int) {
	p.heap[i], p.heap[j] = p.heap[j], p.heap[i]
	p.heap[i].index = i
	p.heap[j].index = j
}

func (p *Pool[T]) bubbleUp(e *entry[T]) {
	for i := e.index; i > 0; {
		parent := (i - 1) / 2
		if p.heap[i].tasks < p.heap[parent].tasks {
			p.swap(i, parent)
			i = parent
		} else {
			break
		}
	}
}

func (p *Pool[T]) bubbleDown(e *entry[T]) {
	n := len(p.heap)
	for i := e.index; ; {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && p.heap[left].tasks < p.heap[smallest].tasks {
			smallest = left
		}
		if right < n && p.heap[right].tasks < p.heap[smallest].tasks {
			smallest = right
		}
		if smallest == i {
			break
		}
		p.swap(i, smallest)
		i = smallest
	}
}

// Add registers a peer at addr with the given metadata, starting its
// heartbeat monitor. A peer already present is left unchanged.
func (p *Pool[T]) Add(addr string, meta T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.addresses[addr]; exists {
		return
	}
	e := &entry[T]{addr: addr, meta: meta, index: len(p.heap), stop: make(chan struct{})}
	p.addresses[addr] = e
	p.heap = append(p.heap, e)
	p.bubbleUp(e)
	go p.heartbeat(e)
}

// Remove evicts the peer at addr, if present.
func (p *Pool[T]) Remove(addr string) {
	p.mu.Lock()
	e, exists := p.addresses[addr]
	if !exists {
		p.mu.Unlock()
		return
	}
	close(e.stop)
	p.removeLocked(addr, e)
	p.mu.Unlock()

	if p.onEvict != nil {
		p.onEvict(addr, e.meta)
	}
}

// removeLocked assumes p.mu is held and addr/e are present.
func (p *Pool[T]) removeLocked(addr string, e *entry[T]) {
	last := len(p.heap) - 1
	p.swap(e.index, last)
	p.heap = p.heap[:last]
	delete(p.addresses, addr)
	if e.index < len(p.heap) {
		p.bubbleDown(p.heap[e.index])
	}
}

func (p *Pool[T]) heartbeat(e *entry[T]) {
	for {
		select {
		case <-e.stop:
			return
		case <-time.After(HeartbeatFrequency):
			ctx, cancel := context.WithTimeout(context.Background(), HeartbeatTimeout)
			_, err := p.node.QueryFrom(ctx, e.addr, heartbeatKey)
			cancel()
			if err != nil {
				log.Printf("pool: heartbeat to %q failed: %v\n", e.addr, err)
				p.Remove(e.addr)
				return
			}
		}
	}
}

// Least returns the address and metadata of the least-busy peer, used when
// an assignment has no more specific placement rule than load balancing.
func (p *Pool[T]) Least() (addr string, meta T, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.heap) == 0 {
		return "", meta, fmt.Errorf("pool: empty")
	}
	return p.heap[0].addr, p.heap[0].meta, nil
}

// Touch increments a peer's task count and rebalances the heap, reserving
// it as busier than otherwise-equal peers until Release is called.
func (p *Pool[T]) Touch(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.addresses[addr]; ok {
		e.tasks++
		p.bubbleDown(e)
	}
}

// Release decrements a peer's task count and rebalances the heap.
func (p *Pool[T]) Release(addr string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.addresses[addr]; ok && e.tasks > 0 {
		e.tasks--
		p.bubbleUp(e)
	}
}

// All returns every currently registered address.
func (p *Pool[T]) All() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.heap))
	for _, e := range p.heap {
		out = append(out, e.addr)
	}
	return out
}

// Destroy stops every heartbeat monitor without notifying onEvict.
func (p *Pool[T]) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.heap {
		close(e.stop)
	}
	p.heap = nil
	p.addresses = make(map[string]*entry[T])
}
