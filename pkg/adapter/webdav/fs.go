package webdav

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	xwebdav "golang.org/x/net/webdav"

	"github.com/caskfs/caskfs/pkg/crypto"
)

// cryptoFS exposes a vault's ciphertext directory as a plaintext
// webdav.FileSystem.
//
// File names pass through unchanged; file content is transparently
// encrypted and decrypted with the vault's cryptor. Masterkey files are
// hidden from the decrypted view so key material never crosses the serving
// boundary. Reads decrypt the sequential chunk stream; non-sequential Seek
// restarts the stream, which is adequate for the mostly-linear access
// patterns of OS WebDAV clients. Writes spool plaintext to a temp file and
// encrypt into place on Close.
type cryptoFS struct {
	root    string
	cryptor *crypto.Cryptor
	verify  bool
}

func newCryptoFS(root string, cryptor *crypto.Cryptor, verify bool) *cryptoFS {
	return &cryptoFS{root: root, cryptor: cryptor, verify: verify}
}

// resolve maps a WebDAV path to a ciphertext path, rejecting escapes.
func (c *cryptoFS) resolve(name string) (string, error) {
	name = path.Clean("/" + name)
	if strings.Contains(name, "..") {
		return "", os.ErrInvalid
	}
	return filepath.Join(c.root, filepath.FromSlash(name)), nil
}

func isMasterKeyName(name string) bool {
	ok, _ := path.Match(crypto.MasterKeyGlob, path.Base(name))
	return ok
}

func (c *cryptoFS) Mkdir(_ context.Context, name string, perm os.FileMode) error {
	p, err := c.resolve(name)
	if err != nil {
		return err
	}
	return os.Mkdir(p, perm)
}

func (c *cryptoFS) RemoveAll(_ context.Context, name string) error {
	p, err := c.resolve(name)
	if err != nil {
		return err
	}
	if isMasterKeyName(name) {
		return os.ErrPermission
	}
	return os.RemoveAll(p)
}

func (c *cryptoFS) Rename(_ context.Context, oldName, newName string) error {
	if isMasterKeyName(oldName) || isMasterKeyName(newName) {
		return os.ErrPermission
	}
	oldPath, err := c.resolve(oldName)
	if err != nil {
		return err
	}
	newPath, err := c.resolve(newName)
	if err != nil {
		return err
	}
	return os.Rename(oldPath, newPath)
}

func (c *cryptoFS) Stat(_ context.Context, name string) (os.FileInfo, error) {
	p, err := c.resolve(name)
	if err != nil {
		return nil, err
	}
	if isMasterKeyName(name) {
		return nil, os.ErrNotExist
	}
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	return plainInfo{info}, nil
}

func (c *cryptoFS) OpenFile(_ context.Context, name string, flag int, perm os.FileMode) (xwebdav.File, error) {
	p, err := c.resolve(name)
	if err != nil {
		return nil, err
	}
	if isMasterKeyName(name) {
		return nil, os.ErrNotExist
	}

	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return c.openForWrite(p, flag, perm)
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		return &dirFile{File: f}, nil
	}
	return &readFile{
		fs:   c,
		f:    f,
		info: plainInfo{info},
	}, nil
}

func (c *cryptoFS) openForWrite(p string, flag int, perm os.FileMode) (xwebdav.File, error) {
	if flag&os.O_APPEND != 0 {
		// Appending would require re-encrypting from the last partial
		// chunk; WebDAV clients upload whole files.
		return nil, os.ErrInvalid
	}
	if flag&os.O_CREATE == 0 {
		if _, err := os.Stat(p); err != nil {
			return nil, err
		}
	}
	if flag&os.O_EXCL != 0 {
		if _, err := os.Stat(p); err == nil {
			return nil, os.ErrExist
		}
	}

	spool, err := os.CreateTemp(filepath.Dir(p), ".caskfs-upload-*")
	if err != nil {
		return nil, err
	}
	if perm.Perm() == 0 {
		perm = 0o644
	}
	return &writeFile{
		fs:    c,
		dst:   p,
		perm:  perm,
		spool: spool,
	}, nil
}

// plainInfo wraps ciphertext FileInfo, reporting plaintext sizes.
type plainInfo struct {
	fs.FileInfo
}

func (p plainInfo) Size() int64 {
	if p.FileInfo.IsDir() {
		return p.FileInfo.Size()
	}
	return crypto.PlaintextSize(p.FileInfo.Size())
}

// dirFile is a directory handle; listings hide masterkey files and report
// plaintext sizes.
type dirFile struct {
	*os.File
}

func (d *dirFile) Readdir(count int) ([]os.FileInfo, error) {
	infos, err := d.File.Readdir(count)
	out := make([]os.FileInfo, 0, len(infos))
	for _, info := range infos {
		if isMasterKeyName(info.Name()) {
			continue
		}
		out = append(out, plainInfo{info})
	}
	return out, err
}

func (d *dirFile) Write([]byte) (int, error) {
	return 0, os.ErrInvalid
}

// readFile decrypts a vault file on the fly.
type readFile struct {
	fs   *cryptoFS
	f    *os.File
	info plainInfo

	dec io.Reader
	pos int64
}

func (r *readFile) ensureDecrypter() error {
	if r.dec != nil {
		return nil
	}
	if _, err := r.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	dec, err := r.fs.cryptor.NewDecrypter(r.f, r.info.FileInfo.Size(), r.fs.verify)
	if err != nil {
		return err
	}
	r.dec = dec
	r.pos = 0
	return nil
}

func (r *readFile) Read(p []byte) (int, error) {
	if err := r.ensureDecrypter(); err != nil {
		return 0, err
	}
	n, err := r.dec.Read(p)
	r.pos += int64(n)
	return n, err
}

func (r *readFile) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		target = r.info.Size() + offset
	default:
		return 0, os.ErrInvalid
	}
	if target < 0 {
		return 0, os.ErrInvalid
	}

	// Backward seeks restart the chunk stream; forward seeks discard.
	if r.dec == nil || target < r.pos {
		r.dec = nil
		if err := r.ensureDecrypter(); err != nil {
			return 0, err
		}
	}
	if target > r.pos {
		if _, err := io.CopyN(io.Discard, r, target-r.pos); err != nil && err != io.EOF {
			return 0, err
		}
	}
	r.pos = target
	return target, nil
}

func (r *readFile) Readdir(int) ([]os.FileInfo, error) {
	return nil, os.ErrInvalid
}

func (r *readFile) Stat() (os.FileInfo, error) {
	return r.info, nil
}

func (r *readFile) Write([]byte) (int, error) {
	return 0, os.ErrPermission
}

func (r *readFile) Close() error {
	return r.f.Close()
}

// writeFile spools plaintext and encrypts into place on Close.
type writeFile struct {
	fs    *cryptoFS
	dst   string
	perm  os.FileMode
	spool *os.File
	err   error
}

func (w *writeFile) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	return w.spool.Write(p)
}

func (w *writeFile) Read([]byte) (int, error) {
	return 0, os.ErrPermission
}

func (w *writeFile) Seek(offset int64, whence int) (int64, error) {
	return w.spool.Seek(offset, whence)
}

func (w *writeFile) Readdir(int) ([]os.FileInfo, error) {
	return nil, os.ErrInvalid
}

func (w *writeFile) Stat() (os.FileInfo, error) {
	info, err := w.spool.Stat()
	if err != nil {
		return nil, err
	}
	// The spool holds plaintext, so its size is already the logical size.
	return info, nil
}

// Close encrypts the spooled plaintext into the destination and removes the
// spool. The destination is written via a temp file and rename so readers
// never observe a half-encrypted file.
func (w *writeFile) Close() error {
	spoolName := w.spool.Name()
	defer os.Remove(spoolName)
	defer w.spool.Close()

	if w.err != nil {
		return w.err
	}
	if _, err := w.spool.Seek(0, io.SeekStart); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.dst), ".caskfs-seal-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc, err := w.fs.cryptor.NewEncrypter(tmp)
	if err != nil {
		tmp.Close()
		return err
	}
	if _, err := io.Copy(enc, w.spool); err != nil {
		tmp.Close()
		return fmt.Errorf("webdav: encrypting upload: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("webdav: sealing upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), w.perm.Perm()); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), w.dst)
}
