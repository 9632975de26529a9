// Package network handles peer-to-peer communication over TCP, framed with
// an authenticated-encrypted session (session.go) rather than length-prefixed
// plaintext, per spec §4.J.
package network

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/tolelom/irohad/crypto"
)

// MsgType labels a network message.
type MsgType string

const (
	MsgHello      MsgType = "hello"
	MsgTx         MsgType = "tx"
	MsgBlock      MsgType = "block"
	MsgGetBlocks  MsgType = "get_blocks"
	MsgBlocks     MsgType = "blocks"
	MsgConsensus  MsgType = "consensus"
)

// Message is the envelope for all P2P communication.
type Message struct {
	Type    MsgType         `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Peer represents a connected, session-encrypted remote node.
type Peer struct {
	ID       string
	Addr     string
	Identity crypto.PublicKey

	conn    net.Conn
	session *session
	mu      sync.Mutex
	closed  bool
}

// newPeer wraps an established, already-handshaken connection as a Peer.
func newPeer(id, addr string, conn net.Conn, sess *session, identity crypto.PublicKey) *Peer {
	return &Peer{ID: id, Addr: addr, Identity: identity, conn: conn, session: sess}
}

// Connect dials addr, performs the session handshake under localIdentity,
// and returns a connected Peer. id is a human-readable label for logging;
// the peer's cryptographic identity is always the handshake-verified
// Identity field, never the caller-supplied id.
func Connect(id, addr string, localIdentity crypto.PrivateKey) (*Peer, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	sess, remoteIdentity, err := handshake(conn, localIdentity)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake with %s: %w", addr, err)
	}
	return newPeer(id, addr, conn, sess, remoteIdentity), nil
}

// Accept performs the responder side of the session handshake over an
// already-accepted connection.
func Accept(conn net.Conn, localIdentity crypto.PrivateKey) (*Peer, error) {
	sess, remoteIdentity, err := handshake(conn, localIdentity)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake from %s: %w", conn.RemoteAddr(), err)
	}
	addr := conn.RemoteAddr().String()
	return newPeer(remoteIdentity.Address(), addr, conn, sess, remoteIdentity), nil
}

// Send writes a length-prefixed, session-sealed JSON message to the peer.
func (p *Peer) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("peer %s closed", p.ID)
	}
	sealed, err := p.session.seal(data)
	if err != nil {
		return fmt.Errorf("seal message: %w", err)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(sealed)))
	if _, err := p.conn.Write(header[:]); err != nil {
		return err
	}
	_, err = p.conn.Write(sealed)
	return err
}

// Receive reads, authenticates, and decrypts the next framed message.
// A 30-second read deadline prevents a stalled peer from blocking
// indefinitely.
func (p *Peer) Receive() (Message, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var header [4]byte
	if _, err := io.ReadFull(p.conn, header[:]); err != nil {
		return Message{}, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > 32*1024*1024 { // 32 MB safety limit
		return Message{}, fmt.Errorf("message too large: %d bytes", length)
	}
	sealed := make([]byte, length)
	if _, err := io.ReadFull(p.conn, sealed); err != nil {
		return Message{}, err
	}
	plaintext, err := p.session.open(sealed)
	if err != nil {
		return Message{}, fmt.Errorf("open sealed message: %w", err)
	}
	var msg Message
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Close terminates the peer connection.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.conn.Close()
	}
}
