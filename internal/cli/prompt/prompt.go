// Package prompt wraps the interactive terminal prompts the vault commands
// need: passphrase entry, locked-vault selection, and destructive-action
// confirmation.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt with Ctrl+C.
var ErrAborted = errors.New("aborted")

// ErrPassphraseMismatch is returned when a new passphrase and its
// confirmation differ.
var ErrPassphraseMismatch = errors.New("passphrases do not match")

// minPassphraseLength is enforced only when creating a vault; unlocking
// accepts whatever the vault was created with.
const minPassphraseLength = 8

// IsAborted reports whether the user cancelled the prompt.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

// wrapError maps promptui's interrupt and abort errors to ErrAborted.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Password prompts for a masked passphrase.
func Password(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Mask:  '*',
	}
	result, err := p.Run()
	return result, wrapError(err)
}

// NewPassphrase prompts for the passphrase of a new vault, with a repeat
// prompt to catch typos before the masterkey is derived from it.
func NewPassphrase() (string, error) {
	p := promptui.Prompt{
		Label: "Vault passphrase",
		Mask:  '*',
		Validate: func(input string) error {
			if len(input) < minPassphraseLength {
				return fmt.Errorf("passphrase must be at least %d characters", minPassphraseLength)
			}
			return nil
		},
	}
	passphrase, err := p.Run()
	if err != nil {
		return "", wrapError(err)
	}

	confirm, err := Password("Repeat passphrase")
	if err != nil {
		return "", err
	}
	if passphrase != confirm {
		return "", ErrPassphraseMismatch
	}
	return passphrase, nil
}

// Confirm asks a yes/no question, defaulting to no. Ctrl+C aborts.
func Confirm(label string) (bool, error) {
	p := promptui.Prompt{
		Label:     fmt.Sprintf("%s [y/N]", label),
		IsConfirm: true,
	}

	result, err := p.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, ErrAborted
		}
		// promptui reports a "no" answer as ErrAbort
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		return false, err
	}

	answer := strings.ToLower(result)
	return answer == "y" || answer == "yes", nil
}

// ConfirmWithForce skips the prompt when force is set, for -f/--force flags.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label)
}
