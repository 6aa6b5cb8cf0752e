package vault

import "time"

// Metrics receives vault lifecycle observations.
//
// A nil Metrics is valid and results in zero overhead; the vault guards every
// call. The Prometheus implementation lives in pkg/metrics so this package
// stays free of any metrics backend dependency.
type Metrics interface {
	// SetUnlocked records the unlocked state of a vault by mount name.
	SetUnlocked(mountName string, unlocked bool)

	// ObserveStart records a StartServer attempt.
	ObserveStart(duration time.Duration, ok bool)

	// ObserveStop records a completed StopServer.
	ObserveStop(duration time.Duration)

	// ObserveMount records a Mount attempt.
	ObserveMount(duration time.Duration, ok bool)

	// ObserveUnmount records an Unmount attempt.
	ObserveUnmount(duration time.Duration, ok bool)
}

func observeStart(m Metrics, start time.Time, ok bool) {
	if m != nil {
		m.ObserveStart(time.Since(start), ok)
	}
}

func observeStop(m Metrics, start time.Time) {
	if m != nil {
		m.ObserveStop(time.Since(start))
	}
}

func observeMount(m Metrics, start time.Time, ok bool) {
	if m != nil {
		m.ObserveMount(time.Since(start), ok)
	}
}

func observeUnmount(m Metrics, start time.Time, ok bool) {
	if m != nil {
		m.ObserveUnmount(time.Since(start), ok)
	}
}

func setUnlocked(m Metrics, mountName string, unlocked bool) {
	if m != nil {
		m.SetUnlocked(mountName, unlocked)
	}
}
