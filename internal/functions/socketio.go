package functions

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/vk/twinctl/internal/ctxlog"
)

// SocketIOOptions addresses the socket.io server updates are emitted to.
type SocketIOOptions struct {
	URL                string
	Namespace          string
	Event              string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// SocketIOBroadcaster emits every update as one socket.io event.
type SocketIOBroadcaster struct {
	client *socket.Socket
	event  string
}

// DialSocketIO connects to the server and waits for the connection to be
// accepted.
func DialSocketIO(ctx context.Context, opts SocketIOOptions) (*SocketIOBroadcaster, error) {
	logger := ctxlog.FromContext(ctx).With("broadcaster", "socketio", "url", opts.URL)
	logger.Info("Connecting to socket.io server...")

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("socket.io url '%s' must include scheme and host", opts.URL)
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "/"
	}
	event := opts.Event
	if event == "" {
		event = "twin-update"
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	sockOpts := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
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
	io := manager.Socket(namespace, sockOpts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIOBroadcaster{client: io, event: event}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection")
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", timeout)
	}
}

func (b *SocketIOBroadcaster) Broadcast(ctx context.Context, u Update) error {
	if !b.client.Connected() {
		return fmt.Errorf("socket.io client is not connected")
	}
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to encode update: %w", err)
	}
	ctxlog.FromContext(ctx).Debug("Emitting event", "event", b.event, "data", string(data))
	b.client.Emit(b.event, payload)
	return nil
}

// Close disconnects from the server.
func (b *SocketIOBroadcaster) Close() error {
	b.client.Disconnect()
	return nil
}
