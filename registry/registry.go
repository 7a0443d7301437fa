// File: registry/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Registry is the process-wide (explicit-instance, never a singleton)
// table of attached Endpoints, keyed by (remoteNode, role). Lookup is
// sharded by an FNV32 hash of the key, to keep a single global mutex
// from serializing every endpoint's control-plane traffic.

package registry

import (
	"context"
	"encoding/binary"
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/ivshmsg/arena"
	"github.com/momentics/ivshmsg/core/shmem"
	"github.com/momentics/ivshmsg/endpoint"
	"github.com/momentics/ivshmsg/port"
	"github.com/momentics/ivshmsg/protocol"
	"github.com/momentics/ivshmsg/socket"
)

// ShardCount is the number of independent lock domains the endpoint
// table is split across.
const ShardCount = 16

// MaxEndpoint bounds the total number of endpoints a Registry will
// hold at once, across all shards.
const MaxEndpoint = 256

// DefaultRequestTimeout bounds Request when ctx carries no deadline.
const DefaultRequestTimeout = 10 * time.Second

type key struct {
	remoteNode uint32
	role       port.Role
}

func (k key) shard() int {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], k.remoteNode)
	binary.LittleEndian.PutUint32(b[4:8], uint32(k.role))
	h := fnv.New32a()
	h.Write(b[:])
	return int(h.Sum32()) % ShardCount
}

type shard struct {
	mu  sync.RWMutex
	eps map[key]*endpoint.Endpoint
}

// reqState serializes Request calls against one endpoint: rbmsg_hd
// carries a single payload_off field shared by every message type, so
// there is no spare field to use as a free-floating correlator between
// concurrent in-flight requests. One request in flight per endpoint at
// a time, tracked here, is the simple and correct alternative.
//
// mu and fieldMu are deliberately separate: mu is held for the whole
// duration of a Request call (including its blocking wait), while
// fieldMu only ever guards the single pointer read/write in waiting —
// sharing one mutex would let the poller goroutine's interceptAdd
// deadlock against the very Request call it needs to unblock.
type reqState struct {
	mu      sync.Mutex
	fieldMu sync.Mutex
	waiting chan shmem.Message // non-nil only while a Request call is in flight
}

// Registry holds every Endpoint a process has attached, plus the
// per-endpoint request state Request uses to turn req/add into a
// synchronous call.
type Registry struct {
	shards [ShardCount]shard
	count  atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc

	reqMu    sync.Mutex
	reqState map[*endpoint.Endpoint]*reqState
}

// New creates an empty Registry. The returned Registry owns a
// background context used to Attach every Endpoint it creates; call
// Close to tear all of them down.
func New() *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		ctx:      ctx,
		cancel:   cancel,
		reqState: make(map[*endpoint.Endpoint]*reqState),
	}
	for i := range r.shards {
		r.shards[i].eps = make(map[key]*endpoint.Endpoint)
	}
	return r
}

// Close detaches every attached endpoint and stops their pollers.
func (r *Registry) Close() {
	r.cancel()
	for i := range r.shards {
		r.shards[i].mu.Lock()
		for _, ep := range r.shards[i].eps {
			ep.Detach()
		}
		r.shards[i].eps = make(map[key]*endpoint.Endpoint)
		r.shards[i].mu.Unlock()
	}
}

// CreateEndpoint builds an Endpoint over region (with arena a on the
// Host side, nil on the Guest), installs the built-in control-protocol
// handlers plus Registry's own add interceptor (which Request relies
// on), attaches its poller, and stores it under (remoteNode, role).
func (r *Registry) CreateEndpoint(region *shmem.Region, a *arena.Arena, role port.Role, localNode, remoteNode uint32) (*endpoint.Endpoint, error) {
	if r.count.Load() >= MaxEndpoint {
		return nil, ErrTooManyEndpoints
	}
	k := key{remoteNode: remoteNode, role: role}
	sh := &r.shards[k.shard()]

	sh.mu.Lock()
	if _, exists := sh.eps[k]; exists {
		sh.mu.Unlock()
		return nil, ErrEndpointExists
	}
	ep := endpoint.New(region, a, role, localNode, remoteNode)
	protocol.InstallDefaultHandlers(ep)
	ep.RegisterHandler(endpoint.SysNamespace, protocol.MsgAdd, r.interceptAdd)
	sh.eps[k] = ep
	sh.mu.Unlock()

	r.count.Add(1)
	ep.Attach(r.ctx)
	return ep, nil
}

// Lookup returns the endpoint attached for (remoteNode, role), if any.
func (r *Registry) Lookup(remoteNode uint32, role port.Role) (*endpoint.Endpoint, bool) {
	k := key{remoteNode: remoteNode, role: role}
	sh := &r.shards[k.shard()]
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	ep, ok := sh.eps[k]
	return ep, ok
}

// Detach tears down and forgets the endpoint for (remoteNode, role).
func (r *Registry) Detach(remoteNode uint32, role port.Role) {
	k := key{remoteNode: remoteNode, role: role}
	sh := &r.shards[k.shard()]
	sh.mu.Lock()
	ep, ok := sh.eps[k]
	if ok {
		delete(sh.eps, k)
	}
	sh.mu.Unlock()
	if ok {
		ep.Detach()
		r.count.Add(-1)
	}
}

// CreateSocket finds the endpoint for (remoteNode, role) and allocates
// a socket in namespaceIndex on it.
func (r *Registry) CreateSocket(remoteNode uint32, role port.Role, name string, namespaceIndex int) (*socket.Socket, error) {
	ep, ok := r.Lookup(remoteNode, role)
	if !ok {
		return nil, ErrEndpointNotFound
	}
	return ep.AllocSocket(name, namespaceIndex)
}

// RegisterHandler installs h for (namespaceIndex, msgType) on the
// endpoint attached for (remoteNode, role).
func (r *Registry) RegisterHandler(remoteNode uint32, role port.Role, namespaceIndex int, msgType uint32, h endpoint.Handler) error {
	ep, ok := r.Lookup(remoteNode, role)
	if !ok {
		return ErrEndpointNotFound
	}
	return ep.RegisterHandler(namespaceIndex, msgType, h)
}

// stateFor returns (creating if needed) the reqState tracking ep.
func (r *Registry) stateFor(ep *endpoint.Endpoint) *reqState {
	r.reqMu.Lock()
	defer r.reqMu.Unlock()
	rs, ok := r.reqState[ep]
	if !ok {
		rs = &reqState{}
		r.reqState[ep] = rs
	}
	return rs
}

// Request asks the Host attached as (remoteNode, role) to allocate size
// bytes, blocking until the matching add arrives, ctx is cancelled, or
// DefaultRequestTimeout elapses (when ctx carries no deadline). It
// turns the asynchronous req/add exchange into a single synchronous
// call for application code that does not want to register its own
// add handler. Only one Request can be in flight per endpoint at a
// time; concurrent callers serialize on rs.mu.
func (r *Registry) Request(ctx context.Context, remoteNode uint32, role port.Role, size int) (uint32, error) {
	ep, ok := r.Lookup(remoteNode, role)
	if !ok {
		return 0, ErrEndpointNotFound
	}

	rs := r.stateFor(ep)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	ch := make(chan shmem.Message, 1)
	rs.fieldMu.Lock()
	rs.waiting = ch
	rs.fieldMu.Unlock()
	defer func() {
		rs.fieldMu.Lock()
		rs.waiting = nil
		rs.fieldMu.Unlock()
	}()

	ep.SysPort().Send(shmem.Message{
		SrcNode:    ep.LocalNode(),
		MsgType:    protocol.MsgReq,
		PayloadLen: int64(size),
	})

	waitCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, DefaultRequestTimeout)
		defer cancel()
	}
	select {
	case msg := <-ch:
		return msg.PayloadOff, nil
	case <-waitCtx.Done():
		return 0, waitCtx.Err()
	}
}

// interceptAdd is installed in place of protocol's default add handler
// so Request's single in-flight waiter (if any) gets serviced; an add
// arriving with no pending Request call is logged and dropped, the same
// as protocol's own default handler would do.
func (r *Registry) interceptAdd(ep *endpoint.Endpoint, sock *socket.Socket, msg shmem.Message) error {
	rs := r.stateFor(ep)
	rs.fieldMu.Lock()
	ch := rs.waiting
	rs.fieldMu.Unlock()
	if ch != nil {
		select {
		case ch <- msg:
		default:
		}
		return nil
	}
	log.Printf("ivshmsg: registry: add received with no pending request: offset=%d len=%d", msg.PayloadOff, msg.PayloadLen)
	return nil
}
