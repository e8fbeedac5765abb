package hostcap

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Func is a single host-mediated operation. Failures are always reported as
// a typed *Error, never panics across the boundary.
type Func func(ctx context.Context, args map[string]any) (any, *Error)

// Op declares one operation of a capability: its name within the capability's
// namespace, the category bit a handle must carry, and the implementation.
type Op struct {
	Name     string
	Requires Category
	Func     Func
}

// Capability is the structural contract for host-side functionality callable
// from a guest. Any type with this shape qualifies; there is no required
// ancestry. Operations are addressed as "<capability>.<op>".
type Capability interface {
	// Name returns the namespace the capability's operations mount under.
	Name() string

	// Ops enumerates the operations and their required categories.
	Ops() []Op
}

// Handle is an opaque, capability-scoped token a guest holds against a
// broker-owned grant slot. It packs a slot index and a generation counter:
// the guest's reference is lookup-only and never extends the grant's
// lifetime. A generation mismatch after revocation surfaces as HandleExpired
// rather than dangling access. The zero Handle is always invalid.
type Handle uint64

func makeHandle(index, gen uint32) Handle {
	return Handle(uint64(index)<<32 | uint64(gen))
}

func (h Handle) split() (index, gen uint32) {
	return uint32(h >> 32), uint32(h)
}

// String returns the handle as a fixed-width hex token for wire use.
func (h Handle) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// ParseHandle parses a token produced by Handle.String.
func ParseHandle(s string) (Handle, error) {
	var v uint64
	if _, err := fmt.Sscanf(s, "%x", &v); err != nil || len(s) != 16 {
		return 0, fmt.Errorf("invalid handle %q", s)
	}
	return Handle(v), nil
}

type slot struct {
	gen  uint32
	cats Category
	live bool
}

// Broker owns the grant table and mediates every guest call into host
// capabilities. It enforces category checks per invocation and keeps handle
// validation and the operation call in a single critical section, so a
// concurrent Revoke either happens before validation (the call fails
// HandleExpired) or after the call completes, never in between.
type Broker struct {
	mu        sync.RWMutex
	ops       map[string]Op
	grantable Category
	slots     []slot
	free      []uint32
	closed    bool
	log       zerolog.Logger
}

// BrokerOption configures a Broker at creation time.
type BrokerOption func(*Broker)

// WithLogger attaches a structured logger for grant lifecycle events.
func WithLogger(log zerolog.Logger) BrokerOption {
	return func(b *Broker) {
		b.log = log
	}
}

// NewBroker creates a Broker willing to grant at most the given categories.
func NewBroker(grantable Category, opts ...BrokerOption) *Broker {
	b := &Broker{
		ops:       make(map[string]Op),
		grantable: grantable,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mount registers every operation of the capability under its namespace.
// Mounting is host-side setup, not a guest-reachable path, so collisions are
// plain errors.
func (b *Broker) Mount(c Capability) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, op := range c.Ops() {
		key := c.Name() + "." + op.Name
		if _, exists := b.ops[key]; exists {
			return fmt.Errorf("operation %q already mounted", key)
		}
		if op.Func == nil {
			return fmt.Errorf("operation %q has no implementation", key)
		}
		b.ops[key] = op
	}
	return nil
}

// Ops lists the mounted operation names with their required categories.
func (b *Broker) Ops() map[string]Category {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]Category, len(b.ops))
	for name, op := range b.ops {
		out[name] = op.Requires
	}
	return out
}

// Issue creates a handle restricted to the requested categories intersected
// with what the broker is willing to grant. The result never carries more
// than was requested.
func (b *Broker) Issue(requested Category) (Handle, *Error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, Errf(HandleExpired, "", "broker closed")
	}

	granted := requested & b.grantable

	var index uint32
	if n := len(b.free); n > 0 {
		index = b.free[n-1]
		b.free = b.free[:n-1]
		b.slots[index].cats = granted
		b.slots[index].live = true
	} else {
		// Generations start at 1 so the zero Handle never matches a slot.
		b.slots = append(b.slots, slot{gen: 1, cats: granted, live: true})
		index = uint32(len(b.slots) - 1)
	}

	h := makeHandle(index, b.slots[index].gen)
	b.log.Debug().Str("handle", h.String()).Str("granted", granted.String()).Msg("handle issued")
	return h, nil
}

// Invoke validates the handle and its category for op, then performs the
// operation. The read lock is held across the call: revocation is
// linearizable with in-flight invokes.
func (b *Broker) Invoke(ctx context.Context, h Handle, op string, args map[string]any) (any, *Error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cats, err := b.lookupLocked(h, op)
	if err != nil {
		return nil, err
	}

	o, ok := b.ops[op]
	if !ok {
		return nil, Errf(NotFound, op, "unknown operation")
	}
	if !cats.Contains(o.Requires) {
		return nil, Errf(PermissionDenied, op, "handle lacks category %s", o.Requires)
	}

	return o.Func(ctx, args)
}

// Grants returns the categories a live handle carries.
func (b *Broker) Grants(h Handle) (Category, *Error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lookupLocked(h, "")
}

// lookupLocked resolves a handle to its granted categories. Callers hold at
// least the read lock.
func (b *Broker) lookupLocked(h Handle, op string) (Category, *Error) {
	if b.closed {
		return 0, Errf(HandleExpired, op, "broker closed")
	}

	index, gen := h.split()
	if int(index) >= len(b.slots) {
		return 0, Errf(HandleExpired, op, "unknown handle")
	}
	s := b.slots[index]
	if !s.live || s.gen != gen {
		return 0, Errf(HandleExpired, op, "handle revoked")
	}
	return s.cats, nil
}

// Revoke invalidates the handle. Idempotent: revoking an already-revoked or
// unknown handle is a no-op. Subsequent invokes fail with HandleExpired.
func (b *Broker) Revoke(h Handle) {
	b.mu.Lock()
	defer b.mu.Unlock()

	index, gen := h.split()
	if int(index) >= len(b.slots) {
		return
	}
	s := &b.slots[index]
	if !s.live || s.gen != gen {
		return
	}

	s.live = false
	s.cats = 0
	// Bump the generation so a reissued slot never revives the old token.
	s.gen++
	b.free = append(b.free, index)
	b.log.Debug().Str("handle", h.String()).Msg("handle revoked")
}

// Close revokes every outstanding handle and stops issuance. Used for host
// teardown; guests observing a closed broker see HandleExpired.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for i := range b.slots {
		if b.slots[i].live {
			b.slots[i].live = false
			b.slots[i].cats = 0
			b.slots[i].gen++
		}
	}
	b.free = nil
}
