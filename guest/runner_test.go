package guest

import (
	"context"
	"strings"
	"testing"

	"github.com/caffeineduck/rvmhost/hostcap"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	broker := hostcap.NewBroker(hostcap.AllCategories)
	if err := broker.Mount(hostcap.NewCompute(hostcap.DefaultComputeConfig())); err != nil {
		t.Fatalf("mount: %v", err)
	}
	r, err := New(broker)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRunInvalidModule(t *testing.T) {
	r := newTestRunner(t)

	result := r.Run(context.Background(), []byte("not a wasm module"))
	if result.Error == nil {
		t.Fatal("expected compile error for garbage bytes")
	}
	if !strings.Contains(result.Error.Error(), "compile module") {
		t.Errorf("unexpected error: %v", result.Error)
	}
}

func TestRunAfterClose(t *testing.T) {
	r := newTestRunner(t)
	if err := r.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	result := r.Run(context.Background(), []byte{0x00, 0x61, 0x73, 0x6d})
	if result.Error == nil {
		t.Fatal("expected error after close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := newTestRunner(t)

	if err := r.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
}

func TestRunGrantsAreIntersected(t *testing.T) {
	// Broker only grants compute; a run requesting everything still cannot
	// exceed that, which shows up as an error result handed to the guest.
	broker := hostcap.NewBroker(hostcap.CategoryCompute)
	if err := broker.Mount(hostcap.NewSecrets(hostcap.SecretsConfig{Source: hostcap.StaticSecret("s")})); err != nil {
		t.Fatalf("mount: %v", err)
	}

	h, herr := broker.Issue(hostcap.AllCategories)
	if herr != nil {
		t.Fatalf("issue: %v", herr)
	}
	_, err := broker.Invoke(context.Background(), h, "secrets.client_secret", nil)
	if !hostcap.IsKind(err, hostcap.PermissionDenied) {
		t.Errorf("expected PermissionDenied, got %v", err)
	}
}
