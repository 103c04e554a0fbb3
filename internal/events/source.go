package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/CodeGandee/invokeai-go-client/pkg/schema"
)

// socketPath is the server's socket.io mount point.
const socketPath = "/ws/socket.io"

// translatedEvents are the queue namespace events republished to the hub.
var translatedEvents = []string{
	schema.EventQueueItemStatusChanged,
	schema.EventInvocationStarted,
	schema.EventInvocationProgress,
	schema.EventInvocationComplete,
	schema.EventInvocationError,
	schema.EventBatchEnqueued,
	schema.EventQueueCleared,
	schema.EventModelLoadStarted,
	schema.EventModelLoadComplete,
}

// Source maintains a socket.io connection to the server and republishes queue
// events to an in-process Hub. On every (re)connect it emits subscribe_queue
// so the server starts sending events for the configured queue.
type Source struct {
	host    string
	queueID string

	hub    *Hub
	logger *slog.Logger

	manager   *socket.Manager
	io        *socket.Socket
	connected atomic.Bool

	mu   sync.Mutex
	last map[int64]schema.ItemStatus
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithSourceLogger sets the source's logger.
func WithSourceLogger(l *slog.Logger) SourceOption {
	return func(s *Source) { s.logger = l }
}

// NewSource creates a Source for the given server host (scheme://host:port,
// no /api suffix) and queue.
func NewSource(host, queueID string, opts ...SourceOption) (*Source, error) {
	if queueID == "" {
		queueID = schema.DefaultQueueID
	}
	hub, err := NewHub()
	if err != nil {
		return nil, err
	}

	s := &Source{
		host:    host,
		queueID: queueID,
		hub:     hub,
		logger:  slog.Default(),
		last:    make(map[int64]schema.ItemStatus),
	}
	for _, opt := range opts {
		opt(s)
	}
	hub.SetLogger(s.logger)
	return s, nil
}

// Hub exposes the source's distributor, e.g. for filtered subscriptions.
func (s *Source) Hub() *Hub { return s.hub }

// Connected reports whether the socket is currently up.
func (s *Source) Connected() bool { return s.connected.Load() }

// Start connects and blocks until the socket is up, the server refuses, or
// ctx expires. Event delivery continues in the background after it returns.
func (s *Source) Start(ctx context.Context) error {
	u, err := url.Parse(s.host)
	if err != nil || u.Host == "" {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid event source host %q", s.host).WithCause(err)
	}

	opts := socket.DefaultOptions()
	opts.SetPath(socketPath)
	opts.SetTransports(types.NewSet(transports.WebSocket))

	s.manager = socket.NewManager(fmt.Sprintf("%s://%s", u.Scheme, u.Host), opts)
	s.io = s.manager.Socket("/", opts)

	connectResult := make(chan error, 1)

	s.io.On(types.EventName("connect"), func(...any) {
		s.connected.Store(true)
		s.logger.Info("event source connected", slog.String("sid", string(s.io.Id())), slog.String("queue_id", s.queueID))
		s.io.Emit("subscribe_queue", map[string]any{"queue_id": s.queueID})
		select {
		case connectResult <- nil:
		default:
		}
	})

	s.io.On(types.EventName("connect_error"), func(errs ...any) {
		var cause error
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				cause = e
			} else {
				cause = fmt.Errorf("%v", errs[0])
			}
		}
		select {
		case connectResult <- cause:
		default:
		}
	})

	s.io.On(types.EventName("disconnect"), func(...any) {
		s.connected.Store(false)
		s.logger.Info("event source disconnected", slog.String("queue_id", s.queueID))
	})

	for _, name := range translatedEvents {
		name := name
		s.io.On(types.EventName(name), func(data ...any) {
			s.handle(name, data)
		})
	}

	s.io.Connect()

	select {
	case <-ctx.Done():
		s.io.Disconnect()
		return schema.NewErrorf(schema.ErrCodeTimeout, "connecting to %s timed out", s.host).WithCause(ctx.Err())
	case err := <-connectResult:
		if err != nil {
			s.io.Disconnect()
			return schema.NewErrorf(schema.ErrCodeTransport, "socket connect to %s failed", s.host).WithCause(err)
		}
		return nil
	}
}

// Stop tears the connection down. Subscriptions stay valid but go quiet.
func (s *Source) Stop() {
	if s.io != nil {
		s.io.Disconnect()
	}
	s.connected.Store(false)
}

// Subscribe streams all events for one queue. Implements the event source
// collaborator consumed by pkg/workflow.
func (s *Source) Subscribe(ctx context.Context, queueID string) (<-chan schema.QueueEvent, func(), error) {
	return s.hub.Subscribe(ctx, Filter{QueueID: queueID})
}

// SubscribeFiltered streams events matching a full filter, including an
// optional CEL predicate.
func (s *Source) SubscribeFiltered(ctx context.Context, filter Filter) (<-chan schema.QueueEvent, func(), error) {
	return s.hub.Subscribe(ctx, filter)
}

// handle translates one raw socket event and publishes it.
func (s *Source) handle(name string, args []any) {
	if len(args) == 0 {
		return
	}
	event, ok := translateEvent(name, args[0])
	if !ok {
		s.logger.Debug("dropping untranslatable event", slog.String("type", name))
		return
	}
	if event.QueueID == "" {
		event.QueueID = s.queueID
	}
	s.trackTransition(event)
	_ = s.hub.Publish(context.Background(), event)
}

// trackTransition watches item status flow and flags deliveries the server's
// lifecycle cannot produce in order.
func (s *Source) trackTransition(e schema.QueueEvent) {
	if e.Type != schema.EventQueueItemStatusChanged || e.Status == "" || e.ItemID == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, seen := s.last[e.ItemID]
	if seen && prev != e.Status && !schema.CanTransition(prev, e.Status) {
		s.logger.Debug("out-of-order status event",
			slog.Int64("item_id", e.ItemID),
			slog.String("from", string(prev)),
			slog.String("to", string(e.Status)))
	}
	if e.Status.Terminal() {
		delete(s.last, e.ItemID)
	} else {
		s.last[e.ItemID] = e.Status
	}
}

// translateEvent maps a raw socket payload into a QueueEvent. The full body
// is preserved in Payload; commonly-used fields are promoted.
func translateEvent(name string, raw any) (schema.QueueEvent, bool) {
	body, err := json.Marshal(raw)
	if err != nil {
		return schema.QueueEvent{}, false
	}

	var env struct {
		QueueID    string            `json:"queue_id"`
		ItemID     int64             `json:"item_id"`
		BatchID    string            `json:"batch_id"`
		SessionID  string            `json:"session_id"`
		Status     schema.ItemStatus `json:"status"`
		Invocation *struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"invocation"`
		InvocationSourceID string `json:"invocation_source_id"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return schema.QueueEvent{}, false
	}

	event := schema.QueueEvent{
		Type:      name,
		QueueID:   env.QueueID,
		ItemID:    env.ItemID,
		BatchID:   env.BatchID,
		SessionID: env.SessionID,
		Status:    env.Status,
		Payload:   body,
	}
	if env.Invocation != nil {
		event.NodeID = env.InvocationSourceID
		if event.NodeID == "" {
			event.NodeID = env.Invocation.ID
		}
		event.NodeType = env.Invocation.Type
	}
	return event, true
}
