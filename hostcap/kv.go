package hostcap

import (
	"context"
	"sync"

	"github.com/caffeineduck/rvmhost/result"
)

const (
	DefaultKVMaxKeySize   = 256
	DefaultKVMaxValueSize = 64 * 1024
	DefaultKVMaxEntries   = 1024
)

// KVConfig configures the key-value capability's size limits.
type KVConfig struct {
	MaxKeySize   int
	MaxValueSize int
	MaxEntries   int
}

// DefaultKVConfig returns the default key-value limits.
func DefaultKVConfig() KVConfig {
	return KVConfig{
		MaxKeySize:   DefaultKVMaxKeySize,
		MaxValueSize: DefaultKVMaxValueSize,
		MaxEntries:   DefaultKVMaxEntries,
	}
}

// KV is an in-memory key-value capability. Reads require CategoryKVRead and
// mutations CategoryKVWrite, so a handle can be granted read-only access.
// A missing key is absence, not failure.
type KV struct {
	cfg  KVConfig
	data map[string]string
	mu   sync.RWMutex
}

// NewKV creates the key-value capability. Zero limits fall back to defaults.
func NewKV(cfg KVConfig) *KV {
	if cfg.MaxKeySize == 0 {
		cfg.MaxKeySize = DefaultKVMaxKeySize
	}
	if cfg.MaxValueSize == 0 {
		cfg.MaxValueSize = DefaultKVMaxValueSize
	}
	if cfg.MaxEntries == 0 {
		cfg.MaxEntries = DefaultKVMaxEntries
	}
	return &KV{cfg: cfg, data: make(map[string]string)}
}

// Name implements Capability.
func (s *KV) Name() string { return "kv" }

// Ops implements Capability.
func (s *KV) Ops() []Op {
	return []Op{
		{Name: "get", Requires: CategoryKVRead, Func: s.get},
		{Name: "keys", Requires: CategoryKVRead, Func: s.keys},
		{Name: "set", Requires: CategoryKVWrite, Func: s.set},
		{Name: "delete", Requires: CategoryKVWrite, Func: s.del},
	}
}

// Lookup returns the value for key as an Option, for host-side callers that
// bypass the guest boundary.
func (s *KV) Lookup(key string) result.Option[string] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return result.None[string]()
	}
	return result.Some(v)
}

func (s *KV) get(ctx context.Context, args map[string]any) (any, *Error) {
	const op = "kv.get"

	key, err := stringArg(op, args, "key")
	if err != nil {
		return nil, err
	}

	v, ok := s.Lookup(key).Get()
	if !ok {
		if fallback, has := args["default"]; has {
			return fallback, nil
		}
		return nil, nil
	}
	return v, nil
}

func (s *KV) set(ctx context.Context, args map[string]any) (any, *Error) {
	const op = "kv.set"

	key, err := stringArg(op, args, "key")
	if err != nil {
		return nil, err
	}
	value, err := stringArg(op, args, "value")
	if err != nil {
		return nil, err
	}

	if len(key) > s.cfg.MaxKeySize {
		return nil, Errf(InvalidOperand, op, "key exceeds %d bytes", s.cfg.MaxKeySize)
	}
	if len(value) > s.cfg.MaxValueSize {
		return nil, Errf(InvalidOperand, op, "value exceeds %d bytes", s.cfg.MaxValueSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; !exists && len(s.data) >= s.cfg.MaxEntries {
		return nil, Errf(InvalidOperand, op, "store full (%d entries)", s.cfg.MaxEntries)
	}
	s.data[key] = value
	return "ok", nil
}

func (s *KV) del(ctx context.Context, args map[string]any) (any, *Error) {
	const op = "kv.delete"

	key, err := stringArg(op, args, "key")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return "ok", nil
}

func (s *KV) keys(ctx context.Context, args map[string]any) (any, *Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}
