package webmonitor

import (
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/meryemcrkn/cam-app/internal/logger"
	"github.com/meryemcrkn/cam-app/internal/metrics"
	"github.com/meryemcrkn/cam-app/pkg/types"
)

// SerializedEvent holds pre-serialized data in both formats.
type SerializedEvent struct {
	Seq          uint64
	JSONData     []byte // JSON
	ProtobufData []byte // base64 of a google.protobuf.Struct
}

// ResultBroadcaster fans completed cycles out to SSE and websocket clients.
type ResultBroadcaster struct {
	mu      sync.Mutex
	clients map[int]chan *SerializedEvent
	nextID  int
	latest  *SerializedEvent
	stopped bool
	metrics *metrics.Metrics
	log     logger.Module
}

// NewResultBroadcaster creates a broadcaster. m may be nil.
func NewResultBroadcaster(m *metrics.Metrics) *ResultBroadcaster {
	return &ResultBroadcaster{
		clients: make(map[int]chan *SerializedEvent),
		metrics: m,
		log:     logger.For("ResultBroadcaster"),
	}
}

// Subscribe adds a new client. The channel is primed with the latest event.
func (b *ResultBroadcaster) Subscribe() (int, <-chan *SerializedEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan *SerializedEvent, 4)
	if b.stopped {
		close(ch)
		return id, ch
	}
	if b.latest != nil {
		ch <- b.latest
	}
	b.clients[id] = ch

	b.log.Debug("Client #%d subscribed (total clients: %d)", id, len(b.clients))
	return id, ch
}

// Unsubscribe removes a client.
func (b *ResultBroadcaster) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
		b.log.Debug("Client #%d unsubscribed (remaining clients: %d)", id, len(b.clients))
	}
}

// ClientCount returns the number of subscribers.
func (b *ResultBroadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Publish serializes res once and hands it to every subscriber without blocking.
func (b *ResultBroadcaster) Publish(res types.CycleResult) {
	event, err := serializeResult(res)
	if err != nil {
		b.log.Error("Serialize result #%d: %v", res.Seq, err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.latest = event
	for _, ch := range b.clients {
		select {
		case ch <- event:
			if b.metrics != nil {
				b.metrics.EventsSent.Add(1)
			}
		default:
			// Client too slow, skip this event for this client
			if b.metrics != nil {
				b.metrics.EventsDropped.Add(1)
			}
		}
	}
}

// Stop closes every subscriber channel.
func (b *ResultBroadcaster) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.stopped = true
	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}
}

func serializeResult(res types.CycleResult) (*SerializedEvent, error) {
	jsonData, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}

	pbEvent, err := resultToStruct(res)
	if err != nil {
		return nil, err
	}
	pbData, err := proto.Marshal(pbEvent)
	if err != nil {
		return nil, err
	}

	return &SerializedEvent{
		Seq:          res.Seq,
		JSONData:     jsonData,
		ProtobufData: []byte(base64.StdEncoding.EncodeToString(pbData)),
	}, nil
}

// resultToStruct builds the protobuf form of a cycle. When the server answered
// with JSON the decoded answer is attached under "response".
func resultToStruct(res types.CycleResult) (*structpb.Struct, error) {
	fields := map[string]any{
		"seq":          float64(res.Seq),
		"started_at":   res.StartedAt.UTC().Format(time.RFC3339Nano),
		"completed_at": res.CompletedAt.UTC().Format(time.RFC3339Nano),
		"display":      res.Display,
		"ok":           res.OK,
	}
	if res.Err != "" {
		fields["error"] = res.Err
	}
	if res.OK {
		var decoded any
		if err := json.Unmarshal([]byte(res.Display), &decoded); err == nil {
			fields["response"] = decoded
		}
	}
	return structpb.NewStruct(fields)
}
