package network

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"net"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/tolelom/irohad/crypto"
)

func newSHA256() hash.Hash { return sha256.New() }

// session wraps an established TCP connection with an authenticated,
// encrypted framing layer, replacing the teacher's optional TLS transport
// (network/peer.go) per spec §4.J: peers are identified by long-term
// ed25519 public key rather than an X.509 certificate chain, and the link
// is always encrypted rather than TLS-optional.
//
// Handshake: both sides generate an ephemeral X25519 key pair, sign the
// ephemeral public key with their long-term ed25519 identity key, and
// exchange (ephemeral pubkey, signature, identity pubkey). Each side
// verifies the peer's signature, computes the X25519 shared secret, and
// derives two directional AEAD keys from it with unsalted HKDF under the
// labels "a_to_b" and "b_to_a". Each side compares the two ephemeral
// public keys byte-wise to decide which label is its send key, so both
// ends agree on the assignment independent of dial direction.
type session struct {
	conn net.Conn

	sendKey [32]byte
	recvKey [32]byte
	sendSeq uint64
	recvSeq uint64
}

type handshakeMsg struct {
	Ephemeral [32]byte
	Signature []byte
	Identity  crypto.PublicKey
}

func writeHandshake(conn net.Conn, msg handshakeMsg) error {
	var buf []byte
	buf = append(buf, msg.Ephemeral[:]...)
	buf = appendLenPrefixed(buf, msg.Signature)
	buf = appendLenPrefixed(buf, msg.Identity)
	var lenHdr [4]byte
	binary.BigEndian.PutUint32(lenHdr[:], uint32(len(buf)))
	if _, err := conn.Write(lenHdr[:]); err != nil {
		return err
	}
	_, err := conn.Write(buf)
	return err
}

func readHandshake(conn net.Conn) (handshakeMsg, error) {
	var lenHdr [4]byte
	if _, err := io.ReadFull(conn, lenHdr[:]); err != nil {
		return handshakeMsg{}, err
	}
	n := binary.BigEndian.Uint32(lenHdr[:])
	if n > 4096 {
		return handshakeMsg{}, fmt.Errorf("handshake message too large: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return handshakeMsg{}, err
	}
	var msg handshakeMsg
	if len(buf) < 32 {
		return handshakeMsg{}, fmt.Errorf("handshake message truncated")
	}
	copy(msg.Ephemeral[:], buf[:32])
	rest := buf[32:]
	sig, rest, err := takeLenPrefixed(rest)
	if err != nil {
		return handshakeMsg{}, err
	}
	msg.Signature = sig
	ident, _, err := takeLenPrefixed(rest)
	if err != nil {
		return handshakeMsg{}, err
	}
	msg.Identity = crypto.PublicKey(ident)
	return msg, nil
}

func appendLenPrefixed(buf []byte, b []byte) []byte {
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(b)))
	buf = append(buf, hdr[:]...)
	return append(buf, b...)
}

func takeLenPrefixed(buf []byte) (value []byte, rest []byte, err error) {
	if len(buf) < 2 {
		return nil, nil, fmt.Errorf("truncated length-prefixed field")
	}
	n := binary.BigEndian.Uint16(buf[:2])
	buf = buf[2:]
	if len(buf) < int(n) {
		return nil, nil, fmt.Errorf("truncated length-prefixed field body")
	}
	return buf[:n], buf[n:], nil
}

// handshake performs the mutual X25519 key exchange over conn, authenticated
// by identity, and returns a session ready for Seal/Open framing. remoteKey
// receives the peer's verified long-term identity key so the caller can
// check it against the expected peer address book.
func handshake(conn net.Conn, identity crypto.PrivateKey) (*session, crypto.PublicKey, error) {
	var ephPriv [32]byte
	if _, err := rand.Read(ephPriv[:]); err != nil {
		return nil, nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	var ephPub [32]byte
	curve25519.ScalarBaseMult(&ephPub, &ephPriv)

	sig := ed25519.Sign(ed25519.PrivateKey(identity), ephPub[:])
	local := handshakeMsg{Ephemeral: ephPub, Signature: sig, Identity: identity.Public()}

	type result struct {
		msg handshakeMsg
		err error
	}
	remoteCh := make(chan result, 1)
	go func() {
		msg, err := readHandshake(conn)
		remoteCh <- result{msg, err}
	}()
	if err := writeHandshake(conn, local); err != nil {
		return nil, nil, fmt.Errorf("send handshake: %w", err)
	}
	res := <-remoteCh
	if res.err != nil {
		return nil, nil, fmt.Errorf("receive handshake: %w", res.err)
	}
	remote := res.msg

	if !ed25519.Verify(ed25519.PublicKey(remote.Identity), remote.Ephemeral[:], remote.Signature) {
		return nil, nil, fmt.Errorf("peer handshake signature invalid")
	}

	var shared [32]byte
	sharedSlice, err := curve25519.X25519(ephPriv[:], remote.Ephemeral[:])
	if err != nil {
		return nil, nil, fmt.Errorf("compute shared secret: %w", err)
	}
	copy(shared[:], sharedSlice)

	// Derive directional keys keyed by ephemeral-pubkey ordering so both
	// sides agree on which key encrypts which direction regardless of who
	// dialed.
	aToB, bToA := "a_to_b", "b_to_a"
	localIsA := lessBytes(ephPub[:], remote.Ephemeral[:])

	sendLabel, recvLabel := aToB, bToA
	if !localIsA {
		sendLabel, recvLabel = bToA, aToB
	}

	sendKey, err := deriveKey(shared[:], sendLabel)
	if err != nil {
		return nil, nil, err
	}
	recvKey, err := deriveKey(shared[:], recvLabel)
	if err != nil {
		return nil, nil, err
	}

	return &session{conn: conn, sendKey: sendKey, recvKey: recvKey}, remote.Identity, nil
}

func lessBytes(a, b []byte) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func deriveKey(secret []byte, label string) ([32]byte, error) {
	var key [32]byte
	r := hkdf.New(newSHA256, secret, nil, []byte("irohad-p2p-session-"+label))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return key, fmt.Errorf("derive %s key: %w", label, err)
	}
	return key, nil
}

// seal encrypts plaintext with the session's send key and an
// ever-incrementing nonce counter (safe because each session's send key is
// only ever used by one side in one direction).
func (s *session) seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(s.sendKey[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	binary.BigEndian.PutUint64(nonce[aead.NonceSize()-8:], s.sendSeq)
	s.sendSeq++
	return aead.Seal(nil, nonce, plaintext, nil), nil
}

// open decrypts ciphertext with the session's receive key, enforcing strict
// sequential nonce order so a replayed or reordered frame is rejected.
func (s *session) open(ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(s.recvKey[:])
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	binary.BigEndian.PutUint64(nonce[aead.NonceSize()-8:], s.recvSeq)
	s.recvSeq++
	return aead.Open(nil, nonce, ciphertext, nil)
}
