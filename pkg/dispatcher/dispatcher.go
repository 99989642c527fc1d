// Package dispatcher correlates outbound requests to their responses, routes
// inbound requests to registered handlers, and fans out notifications. It is
// transport-agnostic: a Dispatcher is driven by whatever Transport backing
// decoded a Frame, and it hands back Frames for the transport to encode.
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	internalerrors "github.com/jamesprial/mcp-core/internal/errors"
	"github.com/jamesprial/mcp-core/pkg/middleware"
	"github.com/jamesprial/mcp-core/pkg/protocol"
	"github.com/jamesprial/mcp-core/pkg/transport/breaker"
	"github.com/jamesprial/mcp-core/pkg/transport/retry"
)

// idempotentOutboundMethods are the outbound request methods safe to retry
// blindly on a transient send failure: a repeated ping or list call has no
// side effect the peer could double-apply.
var idempotentOutboundMethods = map[string]bool{
	protocol.MethodPing:          true,
	protocol.MethodToolsList:     true,
	protocol.MethodResourcesList: true,
	protocol.MethodPromptsList:   true,
}

// outboundRetryPolicy is tuned for a single in-flight Call's send attempt,
// not a long-lived reconnect loop: a handful of fast retries, bounded well
// under the kind of timeout a caller would set on ctx.
var outboundRetryPolicy = retry.Policy{
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     500 * time.Millisecond,
	MaxElapsedTime:  2 * time.Second,
	Multiplier:      2.0,
	Jitter:          0.3,
	MaxAttempts:     3,
}

// Sender delivers an encoded frame to the peer. Concrete Transport backings
// implement it; the Dispatcher never knows which one.
type Sender interface {
	SendFrame(ctx context.Context, v any) error
}

// Handler processes one inbound request and returns its result or an error.
// Handlers run concurrently with no implicit serialization (spec §5); they
// must be safe for concurrent invocation.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// Dispatcher is the bidirectional request/response/notification router.
type Dispatcher struct {
	sender Sender
	logger *slog.Logger

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	notifyMu      sync.RWMutex
	notifyHandlers map[string]func(ctx context.Context, params json.RawMessage)

	nextID    atomic.Int64
	outMu     sync.Mutex
	outstanding map[any]chan outcome

	inflightMu sync.Mutex
	inflight   map[any]context.CancelFunc

	chain middleware.Middleware

	// outboundBreaker guards every outbound SendFrame attempt (Call and
	// Notify) behind a Closed/Open/HalfOpen circuit so a peer connection
	// that is failing every send doesn't get hammered with further
	// attempts (spec §4.6).
	outboundBreaker *breaker.Breaker
}

type outcome struct {
	result json.RawMessage
	err    *protocol.Error
}

// New builds a Dispatcher. sender may be nil for a Dispatcher that only ever
// handles inbound requests and never originates outbound calls (the common
// server-only case); Call/Notify return an error in that configuration.
func New(sender Sender, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender:          sender,
		logger:          logger,
		handlers:        make(map[string]Handler),
		notifyHandlers:  make(map[string]func(context.Context, json.RawMessage)),
		outstanding:     make(map[any]chan outcome),
		inflight:        make(map[any]context.CancelFunc),
		outboundBreaker: breaker.New(breaker.DefaultConfig),
	}
}

// HandleFunc registers the handler invoked for inbound requests matching method.
func (d *Dispatcher) HandleFunc(method string, h Handler) {
	d.handlersMu.Lock()
	defer d.handlersMu.Unlock()
	d.handlers[method] = h
}

// Use installs the middleware chain applied around every inbound request
// dispatch (not notifications, which never produce a response to act on).
// The first middleware passed is the outermost layer.
func (d *Dispatcher) Use(middlewares ...middleware.Middleware) {
	d.chain = middleware.Chain(middlewares...)
}

// OnNotify registers a callback invoked for inbound notifications matching
// method, distinct from HandleFunc because notifications never produce a
// Response.
func (d *Dispatcher) OnNotify(method string, fn func(ctx context.Context, params json.RawMessage)) {
	d.notifyMu.Lock()
	defer d.notifyMu.Unlock()
	d.notifyHandlers[method] = fn
}

// Dispatch routes one inbound Request. For a notification (no id) it invokes
// the registered notify callback, if any, and returns nil — notifications
// never produce a Response even on failure. For a request it returns the
// Response to send back.
func (d *Dispatcher) Dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	if req.IsNotification() {
		d.dispatchNotification(ctx, req)
		return nil
	}

	final := func(ctx context.Context, method string, params json.RawMessage) (any, error) {
		d.handlersMu.RLock()
		h, ok := d.handlers[method]
		d.handlersMu.RUnlock()
		if !ok {
			return nil, &middleware.ErrorWithCode{
				Code:    protocol.CodeMethodNotFound,
				Message: fmt.Sprintf("method not found: %s", method),
			}
		}
		return h(ctx, params)
	}

	next := final
	if d.chain != nil {
		next = d.chain(final)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	d.trackInflight(req.ID, cancel)
	defer d.untrackInflight(req.ID)

	result, err := next(reqCtx, req.Method, req.Params)
	if err != nil {
		if reqCtx.Err() != nil {
			return protocol.NewErrorResponse(req.ID, protocol.CodeRequestCancelled, "request cancelled", nil)
		}
		return d.errorResponse(req.ID, err)
	}
	return protocol.NewResponse(req.ID, result)
}

func (d *Dispatcher) dispatchNotification(ctx context.Context, req *protocol.Request) {
	if req.Method == protocol.MethodCancelled {
		var params protocol.CancelledParams
		if err := json.Unmarshal(req.Params, &params); err == nil {
			d.CancelInflight(params.RequestID)
		}
		return
	}

	d.notifyMu.RLock()
	fn, ok := d.notifyHandlers[req.Method]
	d.notifyMu.RUnlock()
	if !ok {
		d.logger.Debug("no handler for notification", "method", req.Method)
		return
	}
	fn(ctx, req.Params)
}

func (d *Dispatcher) trackInflight(id any, cancel context.CancelFunc) {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	d.inflight[id] = cancel
}

func (d *Dispatcher) untrackInflight(id any) {
	d.inflightMu.Lock()
	defer d.inflightMu.Unlock()
	delete(d.inflight, id)
}

// CancelInflight cancels the context of the in-flight request with the given
// id, if one is still running. A cancellation for an unknown or already
// completed id is a silent no-op per the cancellation races the spec allows.
func (d *Dispatcher) CancelInflight(id any) {
	d.inflightMu.Lock()
	cancel, ok := d.inflight[id]
	d.inflightMu.Unlock()
	if ok {
		cancel()
	}
}

func (d *Dispatcher) errorResponse(id any, err error) *protocol.Response {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return protocol.NewErrorResponse(id, protocol.CodeRequestCancelled, "request cancelled", nil)
	}
	if de, ok := err.(*internalerrors.DomainError); ok {
		return protocol.NewErrorResponse(id, de.JSONRPCCode(), de.Error(), de.RedactedContext())
	}
	if protoErr, ok := err.(*protocol.Error); ok {
		return protocol.NewErrorResponse(id, protoErr.Code, protoErr.Message, protoErr.Data)
	}
	if ewc, ok := err.(*middleware.ErrorWithCode); ok {
		return protocol.NewErrorResponse(id, ewc.Code, ewc.Message, ewc.Data)
	}
	return protocol.NewErrorResponse(id, protocol.CodeInternalError, err.Error(), nil)
}

// Call sends an outbound request and blocks until the correlated Response
// arrives, ctx is cancelled, or the sender fails. It is the client-role
// counterpart to Dispatch.
func (d *Dispatcher) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if d.sender == nil {
		return nil, fmt.Errorf("dispatcher: no sender configured for outbound calls")
	}

	id := d.nextID.Add(1)
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}

	ch := make(chan outcome, 1)
	d.outMu.Lock()
	d.outstanding[id] = ch
	d.outMu.Unlock()
	defer func() {
		d.outMu.Lock()
		delete(d.outstanding, id)
		d.outMu.Unlock()
	}()

	send := func() error {
		return d.outboundBreaker.Call(ctx, func(ctx context.Context) error {
			return d.sender.SendFrame(ctx, req)
		})
	}
	var sendErr error
	if idempotentOutboundMethods[method] {
		sendErr = retry.Do(ctx, outboundRetryPolicy, send)
	} else {
		sendErr = send()
	}
	if sendErr != nil {
		return nil, fmt.Errorf("dispatcher: send request: %w", sendErr)
	}

	select {
	case out := <-ch:
		if out.err != nil {
			return nil, out.err
		}
		return out.result, nil
	case <-ctx.Done():
		_ = d.Notify(context.Background(), protocol.MethodCancelled, protocol.CancelledParams{RequestID: id, Reason: "context cancelled"})
		return nil, ctx.Err()
	}
}

// Notify sends an outbound notification (no response expected).
func (d *Dispatcher) Notify(ctx context.Context, method string, params any) error {
	if d.sender == nil {
		return fmt.Errorf("dispatcher: no sender configured for outbound notifications")
	}
	notif, err := protocol.NewNotification(method, params)
	if err != nil {
		return err
	}
	return d.outboundBreaker.Call(ctx, func(ctx context.Context) error {
		return d.sender.SendFrame(ctx, notif)
	})
}

// Complete delivers an inbound Response frame to whichever outstanding Call
// is waiting on its id. A Response whose id matches no outstanding call is
// logged and dropped per the "unknown id" open question — it must never be
// treated as fatal to the session.
func (d *Dispatcher) Complete(resp *protocol.Response) {
	d.outMu.Lock()
	ch, ok := d.outstanding[normalizeID(resp.ID)]
	d.outMu.Unlock()

	if !ok {
		d.logger.Warn("response for unknown or already-completed request id", "id", resp.ID)
		return
	}

	if resp.IsError() {
		ch <- outcome{err: resp.Error}
		return
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		ch <- outcome{err: protocol.NewError(protocol.CodeInternalError, "marshal result: "+err.Error(), nil)}
		return
	}
	ch <- outcome{result: raw}
}

// normalizeID collapses JSON-decoded numeric ids (float64) and the int64 ids
// this Dispatcher generates onto one comparable representation, so a
// Response round-tripped through JSON still matches its outstanding Call.
func normalizeID(id any) any {
	switch v := id.(type) {
	case float64:
		return int64(v)
	case int:
		return int64(v)
	case int64:
		return v
	default:
		return id
	}
}

// DispatchBatch routes every item of a decoded batch and collects the
// non-nil responses (notifications contribute nothing), preserving item
// order per the wire-format invariant that batch responses come back in an
// array matching the corresponding requests.
func (d *Dispatcher) DispatchBatch(ctx context.Context, items []json.RawMessage) []*protocol.Response {
	responses := make([]*protocol.Response, 0, len(items))
	for _, raw := range items {
		frame, err := protocol.Classify(raw)
		if err != nil {
			responses = append(responses, protocol.NewErrorResponse(nil, protocol.CodeParseError, err.Error(), nil))
			continue
		}
		switch {
		case frame.Request != nil:
			if resp := d.Dispatch(ctx, frame.Request); resp != nil {
				responses = append(responses, resp)
			}
		case frame.Response != nil:
			d.Complete(frame.Response)
		}
	}
	return responses
}
