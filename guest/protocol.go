package guest

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/caffeineduck/rvmhost/hostcap"
	"github.com/rs/zerolog"
)

// Call frames are embedded in the guest's stderr stream between NUL markers,
// so ordinary stderr output passes through untouched. Replies are written to
// the guest's stdin, one JSON object per line, shaped like the Result the
// guest-side bindings expect: {"ok":...} or {"err":{"kind":...,"message":...}}.
const protocolPrefix = "\x00RVM:"

// Invoker dispatches one boundary call. Satisfied by *hostcap.Session; tests
// substitute their own.
type Invoker interface {
	Invoke(ctx context.Context, op string, args map[string]any) (any, *hostcap.Error)
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, op string, args map[string]any) (any, *hostcap.Error)

// Invoke implements Invoker.
func (f InvokerFunc) Invoke(ctx context.Context, op string, args map[string]any) (any, *hostcap.Error) {
	return f(ctx, op, args)
}

type callRequest struct {
	Op   string         `json:"op"`
	Args map[string]any `json:"args"`
}

type wireError struct {
	Kind    string `json:"kind"`
	Op      string `json:"op,omitempty"`
	Message string `json:"message"`
}

type protocolHandler struct {
	ctx         context.Context
	invoker     Invoker
	stdinWriter *io.PipeWriter
	log         zerolog.Logger

	buf        bytes.Buffer
	realStderr bytes.Buffer
	lastErr    *hostcap.Error
	mu         sync.Mutex
	writeMu    sync.Mutex
}

func newProtocolHandler(ctx context.Context, invoker Invoker, stdinWriter *io.PipeWriter, log zerolog.Logger) *protocolHandler {
	return &protocolHandler{
		ctx:         ctx,
		invoker:     invoker,
		stdinWriter: stdinWriter,
		log:         log,
	}
}

func (p *protocolHandler) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf.Write(data)

	for {
		content := p.buf.String()
		startIdx := strings.Index(content, protocolPrefix)
		if startIdx == -1 {
			p.realStderr.WriteString(content)
			p.buf.Reset()
			break
		}

		p.realStderr.WriteString(content[:startIdx])

		payload := content[startIdx+len(protocolPrefix):]
		endIdx := strings.Index(payload, "\x00")
		if endIdx == -1 {
			// Partial frame; keep it buffered for the next Write.
			p.buf.Reset()
			p.buf.WriteString(content[startIdx:])
			break
		}

		frame := payload[:endIdx]
		p.buf.Reset()
		p.buf.WriteString(payload[endIdx+1:])

		var req callRequest
		if err := json.Unmarshal([]byte(frame), &req); err != nil {
			go p.respondErr(hostcap.Errf(hostcap.InvalidOperand, "", "malformed call frame"))
			continue
		}

		go p.dispatch(req)
	}

	return len(data), nil
}

func (p *protocolHandler) dispatch(req callRequest) {
	v, err := p.invoker.Invoke(p.ctx, req.Op, req.Args)
	if err != nil {
		p.log.Debug().Str("op", req.Op).Str("kind", err.Kind.String()).Msg("call failed")
		p.mu.Lock()
		p.lastErr = err
		p.mu.Unlock()
		p.respondErr(err)
		return
	}

	p.log.Debug().Str("op", req.Op).Msg("call ok")
	p.respond(map[string]any{"ok": v})
}

func (p *protocolHandler) respondErr(err *hostcap.Error) {
	p.respond(map[string]any{"err": wireError{
		Kind:    err.Kind.String(),
		Op:      err.Op,
		Message: err.Msg,
	}})
}

func (p *protocolHandler) respond(reply map[string]any) {
	data, err := json.Marshal(reply)
	if err != nil {
		data = []byte(`{"err":{"kind":"unavailable","message":"failed to marshal reply"}}`)
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	p.stdinWriter.Write(append(data, '\n'))
}

// Stderr returns the guest's plain stderr output with call frames stripped.
func (p *protocolHandler) Stderr() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realStderr.String()
}

// LastFailure returns the most recent boundary failure handed to the guest,
// used as the scoped-session failure context when the guest dies mid-run.
func (p *protocolHandler) LastFailure() *hostcap.Error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
