package vault

import "net/url"

// CryptoContext holds the key material used to encrypt and decrypt a vault's
// contents. The vault owns one context for its entire lifetime and erases it
// on every stop; the context is never replaced, only re-derived by the layer
// that unlocks the vault.
type CryptoContext interface {
	// EraseSensitiveMaterial irreversibly zeroizes all key material held by
	// the context. It is idempotent and must not fail for an already-erased
	// context.
	EraseSensitiveMaterial()
}

// Endpoint is a running file-serving instance exposing a vault's decrypted
// view over a loopback protocol.
type Endpoint interface {
	// Start binds the endpoint and begins serving. It returns an error if
	// the endpoint cannot bind or is already stopped for good.
	Start() error

	// Stop shuts the endpoint down. Stopping a never-started or already
	// stopped endpoint is a no-op.
	Stop()

	// IsRunning reports whether the endpoint is currently serving.
	IsRunning() bool

	// Address returns the URL clients (and the OS mounter) use to reach the
	// endpoint. Only valid while running.
	Address() *url.URL
}

// EndpointFactory creates serving endpoints bound to a vault's ciphertext
// directory and crypto context.
type EndpointFactory interface {
	Create(path string, verifyIntegrity bool, crypto CryptoContext, mountName string) (Endpoint, error)
}

// MountHandle represents an established OS-level mount.
type MountHandle interface {
	// Unmount releases the OS mount. On failure the mount is assumed to
	// still be in place and the caller may retry.
	Unmount() error
}

// Mounter attaches a serving endpoint's address to the OS filesystem.
type Mounter interface {
	Mount(address *url.URL, label string) (MountHandle, error)
}

// ShutdownRegistry accumulates cleanup tasks to run once at process exit.
// Register returns a deregister function; calling it after the registry has
// drained (or calling it twice) is a harmless no-op.
type ShutdownRegistry interface {
	Register(name string, task func()) (deregister func())
}

// MasterKeyProbe reports whether a directory holds recognizable key-material
// files. I/O failures propagate to the caller.
type MasterKeyProbe func(dir string) (bool, error)
