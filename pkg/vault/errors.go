package vault

import "errors"

var (
	// ErrInvalidVaultPath indicates the supplied path is not an existing
	// directory with the reserved vault extension.
	ErrInvalidVaultPath = errors.New("not a valid vault directory")

	// ErrEmptyMountName indicates a mount name normalized to the empty string.
	ErrEmptyMountName = errors.New("mount name is empty after normalization")

	// ErrVaultServing indicates an operation that requires a locked vault was
	// attempted while a serving endpoint is active.
	ErrVaultServing = errors.New("vault is currently serving")

	// ErrNotServing indicates an operation that requires a running serving
	// endpoint was attempted while the vault is locked.
	ErrNotServing = errors.New("vault has no running serving endpoint")
)
