package handshake

import (
	"crypto/cipher"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// sealedStream wraps an io.ReadWriteCloser with a length-prefixed
// ChaCha20-Poly1305 AEAD framing, one nonce counter per direction. Both
// sides derive the same symmetric key from the handshake's DH step, so the
// two counters never need to be exchanged — they start at zero and a
// correctly-ordered reliable transport keeps them in lockstep.
type sealedStream struct {
	io.Closer
	r io.Reader
	w io.Writer

	aead cipher.AEAD

	writeMu  sync.Mutex
	writeSeq uint64
	readSeq  uint64
}

func newSealedStream(rwc io.ReadWriteCloser, key [32]byte) (*sealedStream, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("handshake: chacha20poly1305: %w", err)
	}
	return &sealedStream{Closer: rwc, r: rwc, w: rwc, aead: aead}, nil
}

func nonceFor(seq uint64, size int) []byte {
	nonce := make([]byte, size)
	binary.LittleEndian.PutUint64(nonce[:8], seq)
	return nonce
}

// WriteFrame seals and writes one plaintext frame, length-prefixed (u32 LE)
// over the ciphertext length.
func (s *sealedStream) WriteFrame(plaintext []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	nonce := nonceFor(s.writeSeq, s.aead.NonceSize())
	s.writeSeq++
	ciphertext := s.aead.Seal(nil, nonce, plaintext, nil)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(ciphertext)))
	if _, err := s.w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := s.w.Write(ciphertext)
	return err
}

// ReadFrame reads and opens the next sealed frame. Not safe for concurrent
// use by multiple readers (mirrors the single-loop-ownership model the
// rest of Mercury's transport types use).
func (s *sealedStream) ReadFrame() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	ciphertext := make([]byte, n)
	if _, err := io.ReadFull(s.r, ciphertext); err != nil {
		return nil, err
	}
	nonce := nonceFor(s.readSeq, s.aead.NonceSize())
	s.readSeq++
	return s.aead.Open(nil, nonce, ciphertext, nil)
}
