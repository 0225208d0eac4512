package network

import (
	"net"
	"sync"
)

// maxDatagramSize bounds a realtime datagram. Snapshots for a two-player
// match are well under this.
const maxDatagramSize = 64 * 1024

// RealtimeChannel is the unreliable, sequenced UDP side. Clients send
// InputCmd datagrams; the server fans snapshot bytes back to every address
// that has spoken.
type RealtimeChannel struct {
	conn *net.UDPConn

	mu    sync.Mutex
	peers map[string]*net.UDPAddr
}

// ListenRealtime binds the realtime socket.
func ListenRealtime(addr string) (*RealtimeChannel, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &RealtimeChannel{
		conn:  conn,
		peers: make(map[string]*net.UDPAddr),
	}, nil
}

// Addr returns the bound address.
func (r *RealtimeChannel) Addr() net.Addr { return r.conn.LocalAddr() }

// Recv blocks for one datagram and remembers the sender so broadcasts reach
// it.
func (r *RealtimeChannel) Recv() ([]byte, *net.UDPAddr, error) {
	buf := make([]byte, maxDatagramSize)
	n, addr, err := r.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	r.peers[addr.String()] = addr
	r.mu.Unlock()

	return buf[:n], addr, nil
}

// Broadcast sends the same bytes to every known peer. The payload is shared
// verbatim; per-peer variation is forbidden by the snapshot contract.
func (r *RealtimeChannel) Broadcast(data []byte) {
	r.mu.Lock()
	peers := make([]*net.UDPAddr, 0, len(r.peers))
	for _, addr := range r.peers {
		peers = append(peers, addr)
	}
	r.mu.Unlock()

	for _, addr := range peers {
		// Drops are acceptable on the unreliable channel.
		_, _ = r.conn.WriteToUDP(data, addr)
	}
}

// Forget removes a peer from the broadcast set.
func (r *RealtimeChannel) Forget(addr *net.UDPAddr) {
	r.mu.Lock()
	delete(r.peers, addr.String())
	r.mu.Unlock()
}

// Close closes the socket.
func (r *RealtimeChannel) Close() error { return r.conn.Close() }
