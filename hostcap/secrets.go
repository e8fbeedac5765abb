package hostcap

import (
	"context"
	"os"
	"strings"

	"github.com/caffeineduck/rvmhost/result"
)

// SecretSource supplies the host-managed client secret. Absence is not an
// error at the source level; the capability maps it to NotFound at the
// boundary.
type SecretSource func(ctx context.Context) result.Option[string]

// StaticSecret returns a source backed by a fixed value.
func StaticSecret(secret string) SecretSource {
	return func(ctx context.Context) result.Option[string] {
		if secret == "" {
			return result.None[string]()
		}
		return result.Some(secret)
	}
}

// EnvSecret returns a source backed by an environment variable.
func EnvSecret(name string) SecretSource {
	return func(ctx context.Context) result.Option[string] {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return result.None[string]()
		}
		return result.Some(v)
	}
}

// FileSecret returns a source that reads the secret from a file, trimming
// trailing whitespace. Read failures count as absence: the guest is only told
// whether a secret is configured, never why it isn't.
func FileSecret(path string) SecretSource {
	return func(ctx context.Context) result.Option[string] {
		data, err := os.ReadFile(path)
		if err != nil {
			return result.None[string]()
		}
		v := strings.TrimSpace(string(data))
		if v == "" {
			return result.None[string]()
		}
		return result.Some(v)
	}
}

// SecretsConfig configures the secret retrieval capability.
type SecretsConfig struct {
	Source SecretSource // nil means no secret is configured
}

// Secrets exposes host-managed secret retrieval. The broker gates it behind
// CategorySecretRead; a missing or empty secret is NotFound, never an
// empty-string success.
type Secrets struct {
	cfg SecretsConfig
}

// NewSecrets creates the secret retrieval capability.
func NewSecrets(cfg SecretsConfig) *Secrets {
	return &Secrets{cfg: cfg}
}

// Name implements Capability.
func (s *Secrets) Name() string { return "secrets" }

// Ops implements Capability.
func (s *Secrets) Ops() []Op {
	return []Op{
		{Name: "client_secret", Requires: CategorySecretRead, Func: s.clientSecret},
	}
}

func (s *Secrets) clientSecret(ctx context.Context, args map[string]any) (any, *Error) {
	const op = "secrets.client_secret"

	if s.cfg.Source == nil {
		return nil, Errf(NotFound, op, "no secret configured")
	}

	secret, ok := s.cfg.Source(ctx).Get()
	if !ok || secret == "" {
		return nil, Errf(NotFound, op, "no secret configured")
	}
	return secret, nil
}
