package eventsink

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/fanoutgo/internal/ctxlog"
	"github.com/vk/fanoutgo/internal/node"
)

// DefaultEvent is the socket.io event name used for transitions.
const DefaultEvent = "transition"

const connectTimeout = 15 * time.Second

// SocketIOOptions configures a SocketIO sink.
type SocketIOOptions struct {
	URL                string
	Namespace          string
	Event              string
	InsecureSkipVerify bool
}

// SocketIO publishes transitions to a socket.io server.
type SocketIO struct {
	io    *socket.Socket
	event string
}

// DialSocketIO connects to the server and waits for the connection to be
// established.
func DialSocketIO(ctx context.Context, opts SocketIOOptions) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("sink", "socketio", "url", opts.URL)

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if opts.Namespace == "" {
		opts.Namespace = "/"
	}
	if opts.Event == "" {
		opts.Event = DefaultEvent
	}

	sockOpts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		sockOpts.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sockOpts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sockOpts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, sockOpts)
	io := manager.Socket(opts.Namespace, sockOpts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Event sink connected.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	io.Connect()

	timer := time.NewTimer(connectTimeout)
	defer timer.Stop()
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIO{io: io, event: opts.Event}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-timer.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}
}

// HandleTransition implements node.Observer. Events are dropped while the
// socket is disconnected.
func (s *SocketIO) HandleTransition(e node.Event) {
	if !s.io.Connected() {
		return
	}
	s.io.Emit(s.event, Payload(e))
}

// Close disconnects from the server.
func (s *SocketIO) Close() error {
	s.io.Disconnect()
	return nil
}

// Payload is the wire form of a transition event.
func Payload(e node.Event) map[string]any {
	return map[string]any{
		"runId":     e.RunID,
		"nodeId":    e.NodeID,
		"path":      e.Path,
		"fromState": e.From.String(),
		"toState":   e.To.String(),
		"timestamp": e.Time.UTC().Format(time.RFC3339Nano),
	}
}
