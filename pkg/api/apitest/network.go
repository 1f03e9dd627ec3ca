// Package apitest runs worker services on in-memory listeners so clients,
// controllers and orchestrators can be tested without opening sockets.
package apitest

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"

	"github.com/cuemby/flock/pkg/api"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

type endpoint struct {
	lis    *bufconn.Listener
	server *api.Server
	done   chan struct{}
}

// Network maps host:port addresses to in-memory worker services
type Network struct {
	mu        sync.Mutex
	endpoints map[string]*endpoint
}

// NewNetwork creates an empty network
func NewNetwork() *Network {
	return &Network{endpoints: make(map[string]*endpoint)}
}

// Serve starts a worker service reachable at addr, replacing any existing one
func (n *Network) Serve(addr string, cfg api.Config) *api.Server {
	n.Stop(addr)

	lis := bufconn.Listen(bufSize)
	srv := api.NewServer(cfg)
	ep := &endpoint{lis: lis, server: srv, done: make(chan struct{})}

	n.mu.Lock()
	n.endpoints[addr] = ep
	n.mu.Unlock()

	go func() {
		defer close(ep.done)
		_ = srv.Serve(lis)
	}()

	// Honour Shutdown requests the way the worker binary does
	go func() {
		select {
		case <-srv.Done():
			n.stop(addr, ep)
		case <-ep.done:
		}
	}()

	return srv
}

// Stop stops the service at addr if one is running
func (n *Network) Stop(addr string) {
	n.stop(addr, nil)
}

// stop removes the endpoint at addr; a non-nil want only matches that endpoint
func (n *Network) stop(addr string, want *endpoint) {
	n.mu.Lock()
	ep, ok := n.endpoints[addr]
	if ok && (want == nil || ep == want) {
		delete(n.endpoints, addr)
	} else {
		ok = false
	}
	n.mu.Unlock()

	if !ok {
		return
	}
	ep.server.Stop()
	_ = ep.lis.Close()
	<-ep.done
}

// Running reports whether a service is registered at addr
func (n *Network) Running(addr string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.endpoints[addr]
	return ok
}

// Server returns the service at addr, or nil
func (n *Network) Server(addr string) *api.Server {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ep, ok := n.endpoints[addr]; ok {
		return ep.server
	}
	return nil
}

// Dial connects to the service at addr or fails like a refused TCP dial
func (n *Network) Dial(ctx context.Context, addr string) (net.Conn, error) {
	n.mu.Lock()
	ep, ok := n.endpoints[addr]
	n.mu.Unlock()

	if !ok {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: fmt.Errorf("%s: %w", addr, syscall.ECONNREFUSED)}
	}
	return ep.lis.DialContext(ctx)
}

// Close stops every service
func (n *Network) Close() {
	n.mu.Lock()
	addrs := make([]string, 0, len(n.endpoints))
	for addr := range n.endpoints {
		addrs = append(addrs, addr)
	}
	n.mu.Unlock()

	for _, addr := range addrs {
		n.Stop(addr)
	}
}
