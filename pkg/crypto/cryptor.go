// Package crypto implements the cryptographic context for a vault: an
// AES-256-GCM cryptor whose keys are derived from a passphrase via scrypt
// and persisted in a masterkey file next to the vault's ciphertext.
//
// The cryptor owns its key material and supports irreversible secure
// erasure; after EraseSensitiveMaterial every cipher operation fails with
// ErrErased. Erasure zeroizes the key bytes in place rather than merely
// dropping references, so the material does not linger on the heap waiting
// for the collector.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"
	"sync"
)

const (
	// KeySize is the AES-256 key size in bytes.
	KeySize = 32

	// ChunkSize is the plaintext chunk size for file content encryption.
	ChunkSize = 32 * 1024

	nonceSize = 12
	tagSize   = 16
	magicSize = 4
	// Per file: magic, header nonce, sealed file key.
	headerSize = magicSize + nonceSize + KeySize + tagSize
	// Per chunk: nonce plus GCM tag.
	chunkOverhead = nonceSize + tagSize
	// Whole-file HMAC-SHA256 trailer, checked when integrity
	// verification is enabled.
	trailerSize = sha256.Size
)

var fileMagic = [magicSize]byte{'C', 'S', 'K', '1'}

var (
	// ErrErased indicates a cipher operation on an erased cryptor.
	ErrErased = errors.New("crypto: key material has been erased")

	// ErrCorrupt indicates ciphertext that fails authentication or does not
	// parse as the vault file format.
	ErrCorrupt = errors.New("crypto: corrupt or tampered ciphertext")
)

// Cryptor holds a vault's key material and encrypts/decrypts file content.
// It is safe for concurrent use.
type Cryptor struct {
	mu     sync.RWMutex
	encKey []byte
	macKey []byte
	erased bool
}

// NewCryptor takes ownership of the given encryption and MAC keys.
// Both must be KeySize bytes. The caller must not retain the slices.
func NewCryptor(encKey, macKey []byte) (*Cryptor, error) {
	if len(encKey) != KeySize || len(macKey) != KeySize {
		return nil, fmt.Errorf("crypto: keys must be %d bytes", KeySize)
	}
	return &Cryptor{encKey: encKey, macKey: macKey}, nil
}

// NewRandomCryptor generates fresh random key material.
func NewRandomCryptor() (*Cryptor, error) {
	encKey := make([]byte, KeySize)
	macKey := make([]byte, KeySize)
	if _, err := rand.Read(encKey); err != nil {
		return nil, fmt.Errorf("crypto: generating encryption key: %w", err)
	}
	if _, err := rand.Read(macKey); err != nil {
		return nil, fmt.Errorf("crypto: generating mac key: %w", err)
	}
	return &Cryptor{encKey: encKey, macKey: macKey}, nil
}

// EraseSensitiveMaterial zeroizes all key material. It is idempotent and
// never fails for an already-erased cryptor.
func (c *Cryptor) EraseSensitiveMaterial() {
	c.mu.Lock()
	defer c.mu.Unlock()
	zero(c.encKey)
	zero(c.macKey)
	c.erased = true
}

// Erased reports whether the key material has been erased.
func (c *Cryptor) Erased() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.erased
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

func aead(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// newFileHeader generates a random per-file key and the serialized header.
func (c *Cryptor) newFileHeader() (fileKey, headerNonce, header []byte, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.erased {
		return nil, nil, nil, ErrErased
	}

	fileKey = make([]byte, KeySize)
	if _, err := rand.Read(fileKey); err != nil {
		return nil, nil, nil, fmt.Errorf("crypto: generating file key: %w", err)
	}
	headerNonce = make([]byte, nonceSize)
	if _, err := rand.Read(headerNonce); err != nil {
		return nil, nil, nil, fmt.Errorf("crypto: generating header nonce: %w", err)
	}

	gcm, err := aead(c.encKey)
	if err != nil {
		return nil, nil, nil, err
	}
	sealed := gcm.Seal(nil, headerNonce, fileKey, fileMagic[:])

	header = make([]byte, 0, headerSize)
	header = append(header, fileMagic[:]...)
	header = append(header, headerNonce...)
	header = append(header, sealed...)
	return fileKey, headerNonce, header, nil
}

// openFileHeader parses and unseals a serialized file header.
func (c *Cryptor) openFileHeader(header []byte) (fileKey, headerNonce []byte, err error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.erased {
		return nil, nil, ErrErased
	}

	if len(header) != headerSize || [magicSize]byte(header[:magicSize]) != fileMagic {
		return nil, nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	headerNonce = header[magicSize : magicSize+nonceSize]

	gcm, err := aead(c.encKey)
	if err != nil {
		return nil, nil, err
	}
	fileKey, err = gcm.Open(nil, headerNonce, header[magicSize+nonceSize:], fileMagic[:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: header authentication failed", ErrCorrupt)
	}
	return fileKey, headerNonce, nil
}

func (c *Cryptor) newTrailerMAC() (hash.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.erased {
		return nil, ErrErased
	}
	return hmac.New(sha256.New, c.macKey), nil
}

// chunkAAD binds a chunk to its position in this particular file.
func chunkAAD(headerNonce []byte, index uint64) []byte {
	aad := make([]byte, len(headerNonce)+8)
	copy(aad, headerNonce)
	binary.BigEndian.PutUint64(aad[len(headerNonce):], index)
	return aad
}

// PlaintextSize converts a ciphertext file size to the plaintext size it
// encodes, for directory listings. Returns 0 for sizes too small to be a
// valid vault file.
func PlaintextSize(ciphertextSize int64) int64 {
	payload := ciphertextSize - headerSize - trailerSize
	if payload <= 0 {
		return 0
	}
	fullChunks := payload / (ChunkSize + chunkOverhead)
	rest := payload - fullChunks*(ChunkSize+chunkOverhead)
	if rest > 0 {
		rest -= chunkOverhead
		if rest < 0 {
			rest = 0
		}
	}
	return fullChunks*ChunkSize + rest
}

// CiphertextSize converts a plaintext size to the on-disk ciphertext size.
func CiphertextSize(plaintextSize int64) int64 {
	fullChunks := plaintextSize / ChunkSize
	rest := plaintextSize % ChunkSize
	size := int64(headerSize) + fullChunks*(ChunkSize+chunkOverhead) + int64(trailerSize)
	if rest > 0 {
		size += rest + chunkOverhead
	}
	return size
}

// encrypter streams plaintext into the chunked vault file format.
type encrypter struct {
	dst         io.Writer
	gcm         cipher.AEAD
	headerNonce []byte
	mac         hash.Hash
	buf         []byte
	index       uint64
	closed      bool
}

// NewEncrypter returns a WriteCloser encrypting everything written to it
// into dst. Close flushes the final chunk and appends the integrity
// trailer; the output is incomplete until Close returns nil.
func (c *Cryptor) NewEncrypter(dst io.Writer) (io.WriteCloser, error) {
	mac, err := c.newTrailerMAC()
	if err != nil {
		return nil, err
	}
	fileKey, headerNonce, header, err := c.newFileHeader()
	if err != nil {
		return nil, err
	}
	gcm, err := aead(fileKey)
	zero(fileKey)
	if err != nil {
		return nil, err
	}

	e := &encrypter{
		dst:         dst,
		gcm:         gcm,
		headerNonce: headerNonce,
		mac:         mac,
		buf:         make([]byte, 0, ChunkSize),
	}
	if err := e.writeMACed(header); err != nil {
		return nil, err
	}
	return e, nil
}

// writeMACed writes bytes that participate in the whole-file MAC.
func (e *encrypter) writeMACed(p []byte) error {
	e.mac.Write(p)
	_, err := e.dst.Write(p)
	return err
}

func (e *encrypter) Write(p []byte) (int, error) {
	if e.closed {
		return 0, errors.New("crypto: write after close")
	}
	total := len(p)
	for len(p) > 0 {
		n := ChunkSize - len(e.buf)
		if n > len(p) {
			n = len(p)
		}
		e.buf = append(e.buf, p[:n]...)
		p = p[n:]
		if len(e.buf) == ChunkSize {
			if err := e.flushChunk(); err != nil {
				return 0, err
			}
		}
	}
	return total, nil
}

func (e *encrypter) flushChunk() error {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("crypto: generating chunk nonce: %w", err)
	}
	sealed := e.gcm.Seal(nonce, nonce, e.buf, chunkAAD(e.headerNonce, e.index))
	e.index++
	e.buf = e.buf[:0]
	return e.writeMACed(sealed)
}

// Close flushes buffered plaintext and writes the HMAC trailer. The trailer
// covers the header and every chunk but not itself.
func (e *encrypter) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if len(e.buf) > 0 {
		if err := e.flushChunk(); err != nil {
			return err
		}
	}
	_, err := e.dst.Write(e.mac.Sum(nil))
	return err
}

// decrypter streams plaintext out of the chunked vault file format.
type decrypter struct {
	src         io.Reader // raw, positioned after the body
	body        io.Reader // limited to header+chunks, teed into mac
	gcm         cipher.AEAD
	headerNonce []byte
	mac         hash.Hash
	verify      bool
	plain       []byte
	index       uint64
	err         error
}

// NewDecrypter returns a reader producing the plaintext of the vault file
// ciphertext read from src. ciphertextSize must be the total on-disk size so
// the integrity trailer can be separated from chunk data. Chunk-level
// authentication always happens; when verify is true the whole-file HMAC
// trailer is additionally checked and a mismatch surfaces as ErrCorrupt at
// the end of the stream.
func (c *Cryptor) NewDecrypter(src io.Reader, ciphertextSize int64, verify bool) (io.Reader, error) {
	if ciphertextSize < headerSize+trailerSize {
		return nil, fmt.Errorf("%w: file too small", ErrCorrupt)
	}

	mac, err := c.newTrailerMAC()
	if err != nil {
		return nil, err
	}
	body := io.TeeReader(io.LimitReader(src, ciphertextSize-trailerSize), mac)

	header := make([]byte, headerSize)
	if _, err := io.ReadFull(body, header); err != nil {
		return nil, fmt.Errorf("%w: short header", ErrCorrupt)
	}
	fileKey, headerNonce, err := c.openFileHeader(header)
	if err != nil {
		return nil, err
	}
	gcm, err := aead(fileKey)
	zero(fileKey)
	if err != nil {
		return nil, err
	}

	return &decrypter{
		src:         src,
		body:        body,
		gcm:         gcm,
		headerNonce: headerNonce,
		mac:         mac,
		verify:      verify,
	}, nil
}

func (d *decrypter) Read(p []byte) (int, error) {
	for len(d.plain) == 0 && d.err == nil {
		d.fillChunk()
	}
	if len(d.plain) > 0 {
		n := copy(p, d.plain)
		d.plain = d.plain[n:]
		return n, nil
	}
	return 0, d.err
}

func (d *decrypter) fillChunk() {
	sealed := make([]byte, chunkOverhead+ChunkSize)
	n, err := io.ReadFull(d.body, sealed)
	if n == 0 {
		if err == io.EOF {
			d.finish()
		} else {
			d.err = err
		}
		return
	}
	if n < chunkOverhead {
		d.err = fmt.Errorf("%w: truncated chunk", ErrCorrupt)
		return
	}
	sealed = sealed[:n]

	nonce := sealed[:nonceSize]
	plain, err := d.gcm.Open(nil, nonce, sealed[nonceSize:], chunkAAD(d.headerNonce, d.index))
	if err != nil {
		d.err = fmt.Errorf("%w: chunk %d authentication failed", ErrCorrupt, d.index)
		return
	}
	d.index++
	d.plain = plain
}

// finish consumes the trailer and, when verification is on, compares it to
// the computed whole-file MAC.
func (d *decrypter) finish() {
	d.err = io.EOF
	trailer := make([]byte, trailerSize)
	if _, err := io.ReadFull(d.src, trailer); err != nil {
		if d.verify {
			d.err = fmt.Errorf("%w: missing integrity trailer", ErrCorrupt)
		}
		return
	}
	if d.verify && !hmac.Equal(trailer, d.mac.Sum(nil)) {
		d.err = fmt.Errorf("%w: file integrity check failed", ErrCorrupt)
	}
}
