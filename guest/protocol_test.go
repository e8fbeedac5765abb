package guest

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/caffeineduck/rvmhost/hostcap"
	"github.com/rs/zerolog"
)

func echoInvoker() Invoker {
	return InvokerFunc(func(ctx context.Context, op string, args map[string]any) (any, *hostcap.Error) {
		return args["msg"], nil
	})
}

func newTestHandler(invoker Invoker) (*protocolHandler, *io.PipeReader) {
	stdinReader, stdinWriter := io.Pipe()
	h := newProtocolHandler(context.Background(), invoker, stdinWriter, zerolog.Nop())
	return h, stdinReader
}

func readReply(t *testing.T, r *io.PipeReader) map[string]any {
	t.Helper()
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	var reply map[string]any
	if err := json.Unmarshal(line, &reply); err != nil {
		t.Fatalf("unmarshal reply %q: %v", line, err)
	}
	return reply
}

func TestProtocolDispatchesCall(t *testing.T) {
	handler, stdin := newTestHandler(echoInvoker())

	handler.Write([]byte("\x00RVM:{\"op\":\"echo\",\"args\":{\"msg\":\"hello\"}}\x00"))

	reply := readReply(t, stdin)
	if reply["ok"] != "hello" {
		t.Errorf("expected ok:hello, got %v", reply)
	}
	if handler.Stderr() != "" {
		t.Errorf("expected no stderr output, got %q", handler.Stderr())
	}
}

func TestProtocolErrorReply(t *testing.T) {
	invoker := InvokerFunc(func(ctx context.Context, op string, args map[string]any) (any, *hostcap.Error) {
		return nil, hostcap.Errf(hostcap.PermissionDenied, op, "handle lacks category secret_read")
	})
	handler, stdin := newTestHandler(invoker)

	handler.Write([]byte("\x00RVM:{\"op\":\"secrets.client_secret\",\"args\":{}}\x00"))

	reply := readReply(t, stdin)
	werr, ok := reply["err"].(map[string]any)
	if !ok {
		t.Fatalf("expected err reply, got %v", reply)
	}
	if werr["kind"] != "permission_denied" {
		t.Errorf("expected permission_denied, got %v", werr["kind"])
	}
	if werr["op"] != "secrets.client_secret" {
		t.Errorf("expected op in reply, got %v", werr["op"])
	}

	failure := handler.LastFailure()
	if failure == nil || failure.Kind != hostcap.PermissionDenied {
		t.Errorf("expected last failure recorded, got %v", failure)
	}
}

func TestProtocolPassesThroughPlainStderr(t *testing.T) {
	handler, _ := newTestHandler(echoInvoker())

	handler.Write([]byte("normal stderr output"))

	if handler.Stderr() != "normal stderr output" {
		t.Errorf("expected passthrough, got %q", handler.Stderr())
	}
}

func TestProtocolHandlesMixedContent(t *testing.T) {
	handler, stdin := newTestHandler(echoInvoker())
	go io.Copy(io.Discard, stdin)

	handler.Write([]byte("before\x00RVM:{\"op\":\"echo\",\"args\":{}}\x00after"))

	if handler.Stderr() != "beforeafter" {
		t.Errorf("expected 'beforeafter', got %q", handler.Stderr())
	}
}

func TestProtocolHandlesMalformedFrame(t *testing.T) {
	handler, stdin := newTestHandler(echoInvoker())

	handler.Write([]byte("\x00RVM:{invalid}\x00continue"))

	reply := readReply(t, stdin)
	werr, ok := reply["err"].(map[string]any)
	if !ok || werr["kind"] != "invalid_operand" {
		t.Errorf("expected invalid_operand reply, got %v", reply)
	}
	if handler.Stderr() != "continue" {
		t.Errorf("expected 'continue', got %q", handler.Stderr())
	}
}

func TestProtocolHandlesPartialFrame(t *testing.T) {
	handler, stdin := newTestHandler(echoInvoker())
	go io.Copy(io.Discard, stdin)

	handler.Write([]byte("prefix\x00RVM:{\"op\":"))
	handler.Write([]byte("\"echo\",\"args\":{}}\x00suffix"))

	if handler.Stderr() != "prefixsuffix" {
		t.Errorf("expected 'prefixsuffix', got %q", handler.Stderr())
	}
}

func TestProtocolDispatchThroughBroker(t *testing.T) {
	broker := hostcap.NewBroker(hostcap.AllCategories)
	if err := broker.Mount(hostcap.NewCompute(hostcap.DefaultComputeConfig())); err != nil {
		t.Fatalf("mount: %v", err)
	}
	h, _ := broker.Issue(hostcap.CategoryCompute)
	session, herr := broker.Acquire(h)
	if herr != nil {
		t.Fatalf("acquire: %v", herr)
	}

	handler, stdin := newTestHandler(session)

	handler.Write([]byte("\x00RVM:{\"op\":\"compute.multiply\",\"args\":{\"a\":2,\"b\":3}}\x00"))

	reply := readReply(t, stdin)
	if reply["ok"] != 6.0 {
		t.Errorf("expected ok:6, got %v", reply)
	}

	// After release the guest sees SessionClosed, not a broker access.
	session.Close(nil)
	handler.Write([]byte("\x00RVM:{\"op\":\"compute.multiply\",\"args\":{\"a\":2,\"b\":3}}\x00"))

	reply = readReply(t, stdin)
	werr, ok := reply["err"].(map[string]any)
	if !ok || werr["kind"] != "session_closed" {
		t.Errorf("expected session_closed, got %v", reply)
	}
}

func TestProtocolReplyIsValidJSON(t *testing.T) {
	invoker := InvokerFunc(func(ctx context.Context, op string, args map[string]any) (any, *hostcap.Error) {
		return map[string]any{"nested": []any{1.0, "two"}}, nil
	})
	handler, stdin := newTestHandler(invoker)

	handler.Write([]byte("\x00RVM:{\"op\":\"x\",\"args\":{}}\x00"))

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if !strings.HasPrefix(line, "{\"ok\":") {
		t.Errorf("expected ok-shaped reply, got %q", line)
	}
}
