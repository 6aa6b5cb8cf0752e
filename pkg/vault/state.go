package vault

// State describes the lifecycle position of a vault.
//
// A vault starts Locked. StartServer moves it to Serving, Mount to Mounted.
// The reverse transitions are Unmount (Mounted -> Serving) and StopServer
// (Serving or Mounted -> Locked; StopServer unmounts first if needed).
type State int

const (
	// StateLocked means no serving endpoint is active and key material is
	// erased or not yet loaded into cipher state.
	StateLocked State = iota

	// StateServing means a serving endpoint is running but no OS mount
	// points at it.
	StateServing

	// StateMounted means a serving endpoint is running and an OS mount is
	// attached to its address.
	StateMounted
)

func (s State) String() string {
	switch s {
	case StateLocked:
		return "locked"
	case StateServing:
		return "serving"
	case StateMounted:
		return "mounted"
	default:
		return "unknown"
	}
}

// StateListener receives vault state transitions.
//
// Listeners are invoked synchronously after a transition has fully completed
// and after the vault mutex has been released, so they only ever observe
// consistent post-transition state and may read the vault's accessors
// (State, MountName, Unlocked). The delivered State is the snapshot taken at
// the end of the transition; a concurrent operation may already have moved
// the vault on by the time the listener reads it. Listeners should not call
// back into the lifecycle operations (StartServer, StopServer, Mount,
// Unmount); a listener that triggers a transition recurses into itself.
type StateListener func(v *Vault, s State)
