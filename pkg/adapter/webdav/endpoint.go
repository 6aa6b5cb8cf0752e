// Package webdav implements the vault serving endpoint: a loopback WebDAV
// server exposing a vault's decrypted view to the local OS.
//
// The endpoint binds 127.0.0.1 only. Remote access is not a goal; the
// WebDAV surface exists solely so the operating system can mount it.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	xwebdav "golang.org/x/net/webdav"

	"github.com/caskfs/caskfs/internal/logger"
	"github.com/caskfs/caskfs/pkg/crypto"
	"github.com/caskfs/caskfs/pkg/vault"
)

// DefaultShutdownTimeout bounds graceful HTTP shutdown on Stop.
const DefaultShutdownTimeout = 5 * time.Second

// Config holds factory-wide endpoint settings.
type Config struct {
	// BindHost is the loopback address to bind. Defaults to 127.0.0.1.
	BindHost string

	// Port is the TCP port to listen on. 0 picks an ephemeral port, which
	// is the normal mode: every vault gets its own endpoint.
	Port int

	// ShutdownTimeout bounds graceful shutdown. Zero means
	// DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.BindHost == "" {
		c.BindHost = "127.0.0.1"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// Factory creates serving endpoints. It implements vault.EndpointFactory.
type Factory struct {
	cfg Config
}

// NewFactory returns a Factory with the given configuration.
func NewFactory(cfg Config) *Factory {
	cfg.applyDefaults()
	return &Factory{cfg: cfg}
}

// Create builds an endpoint serving the decrypted view of the vault at path
// under /<mountName>/. The crypto context must be the vault's; the endpoint
// holds it only for cipher operations and never erases it itself.
func (f *Factory) Create(path string, verifyIntegrity bool, cc vault.CryptoContext, mountName string) (vault.Endpoint, error) {
	cryptor, ok := cc.(*crypto.Cryptor)
	if !ok {
		return nil, fmt.Errorf("webdav: unsupported crypto context %T", cc)
	}
	if mountName == "" {
		return nil, fmt.Errorf("webdav: empty mount name")
	}
	return &Endpoint{
		cfg:       f.cfg,
		fs:        newCryptoFS(path, cryptor, verifyIntegrity),
		mountName: mountName,
	}, nil
}

// Endpoint is one running WebDAV server bound to a single vault.
// It implements vault.Endpoint.
type Endpoint struct {
	cfg       Config
	fs        *cryptoFS
	mountName string

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
	addr     *url.URL
	running  bool
	gen      int // incremented per Start, so a stale serve goroutine cannot clear a restart
}

// Start binds the listener and begins serving. It returns once the listener
// is accepting; serving continues on a background goroutine until Stop.
func (e *Endpoint) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	bind := net.JoinHostPort(e.cfg.BindHost, fmt.Sprintf("%d", e.cfg.Port))
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("webdav: binding %s: %w", bind, err)
	}

	prefix := "/" + e.mountName
	handler := &xwebdav.Handler{
		Prefix:     prefix,
		FileSystem: e.fs,
		LockSystem: xwebdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logger.Debug("webdav request failed", "method", r.Method, "url", r.URL.Path, "error", err)
			}
		},
	}
	e.server = &http.Server{Handler: handler}
	e.listener = listener
	e.addr = &url.URL{
		Scheme: "http",
		Host:   listener.Addr().String(),
		Path:   prefix + "/",
	}
	e.running = true
	e.gen++

	gen := e.gen
	server := e.server
	addr := e.addr.String()
	go func() {
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("webdav server terminated", "address", addr, "error", err)
		}
		e.mu.Lock()
		if e.gen == gen {
			e.running = false
		}
		e.mu.Unlock()
	}()

	logger.Info("webdav endpoint serving", "address", e.addr.String())
	return nil
}

// Stop gracefully shuts the server down. Stopping a never-started or already
// stopped endpoint is a no-op.
func (e *Endpoint) Stop() {
	e.mu.Lock()
	server := e.server
	timeout := e.cfg.ShutdownTimeout
	e.server = nil
	e.running = false
	e.mu.Unlock()

	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("webdav graceful shutdown timed out, closing", "error", err)
		_ = server.Close()
	}
}

// IsRunning reports whether the endpoint is serving.
func (e *Endpoint) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Address returns the endpoint's URL. Only valid while running.
func (e *Endpoint) Address() *url.URL {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addr
}
