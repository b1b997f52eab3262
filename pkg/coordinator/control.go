package coordinator

// Reason tells why control moved.
type Reason string

const (
	ReasonInitial      Reason = "initial"
	ReasonPass         Reason = "pass"
	ReasonHostOverride Reason = "host_override"
	ReasonHolderLeft   Reason = "holder_left"
)

// Transition is a successful control change.
type Transition struct {
	Holder  string
	Reason  Reason
	Version uint64
}

// Arbiter is the control state of a room: either unclaimed or held
// by exactly one participant. Every change bumps the version.
// It is not safe for concurrent use, the room serializes access.
type Arbiter struct {
	holder  string
	version uint64
}

func (a *Arbiter) Holder() string          { return a.holder }
func (a *Arbiter) Version() uint64         { return a.version }
func (a *Arbiter) Held() bool              { return a.holder != "" }
func (a *Arbiter) IsHolder(id string) bool { return a.holder != "" && a.holder == id }

func (a *Arbiter) set(holder string, reason Reason) Transition {
	a.holder = holder
	a.version++
	return Transition{Holder: holder, Reason: reason, Version: a.version}
}

// Open hands unclaimed control to the host.
func (a *Arbiter) Open(hostId string) (Transition, bool) {
	if a.Held() {
		return Transition{}, false
	}
	return a.set(hostId, ReasonInitial), true
}

// Pass moves control from its holder to another present participant.
// A non-nil version must match the current one.
func (a *Arbiter) Pass(requester, target string, version *uint64, present func(string) bool) (Transition, error) {
	if !a.IsHolder(requester) {
		return Transition{}, authorizationError("only the controller can pass control")
	}
	if version != nil && *version != a.version {
		return Transition{}, conflictError("stale control version %d, current is %d", *version, a.version)
	}
	if target == "" {
		return Transition{}, protocolError("target_user_id is required")
	}
	if target == a.holder {
		return Transition{}, conflictError("%v already has control", target)
	}
	if !present(target) {
		return Transition{}, notFoundError("participant %v is not in the room", target)
	}
	return a.set(target, ReasonPass), nil
}

// HostOverride gives control to the host unconditionally.
func (a *Arbiter) HostOverride(caller, hostId string) (Transition, error) {
	if caller == "" || caller != hostId {
		return Transition{}, authorizationError("only the host can take control")
	}
	return a.set(caller, ReasonHostOverride), nil
}

// RequestNotify validates an advisory control request.
func (a *Arbiter) RequestNotify(requester string) error {
	if a.IsHolder(requester) {
		return conflictError("you already have control")
	}
	return nil
}

// Departed reassigns control when its holder leaves:
// back to the host when present, unclaimed otherwise.
func (a *Arbiter) Departed(id, hostId string, hostPresent bool) (Transition, bool) {
	if !a.IsHolder(id) {
		return Transition{}, false
	}
	next := ""
	if hostPresent && hostId != id {
		next = hostId
	}
	return a.set(next, ReasonHolderLeft), true
}

// Reset drops control without a transition, used on room close.
func (a *Arbiter) Reset() { a.holder = "" }
