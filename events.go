package stillsuit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/fasthash/fnv1a"
)

// Bus is the transport change events are published on.
type Bus interface {
	Publish(subject string, data []byte) error
}

// NatsBus publishes over a NATS connection.
type NatsBus struct {
	nc *nats.Conn
}

func NewNatsBus(url string) (*NatsBus, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &NatsBus{nc: nc}, nil
}

func (b *NatsBus) Publish(subject string, data []byte) error {
	return b.nc.Publish(subject, data)
}

func (b *NatsBus) Close() {
	b.nc.Close()
}

// InMemBus buffers published messages per subject, mainly for tests.
type InMemBus struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func NewInMemBus() *InMemBus {
	return &InMemBus{msgs: make(map[string][][]byte)}
}

func (b *InMemBus) Publish(subject string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs[subject] = append(b.msgs[subject], data)
	return nil
}

// Messages returns the payloads published on subject so far.
func (b *InMemBus) Messages(subject string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]byte(nil), b.msgs[subject]...)
}

// ChangeEvent is the JSON payload published for every mutation.
type ChangeEvent struct {
	Entity string          `json:"entity"`
	Op     string          `json:"op"`
	ID     string          `json:"id"`
	At     time.Time       `json:"at"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// EventHook publishes a ChangeEvent after every add, update and delete.
// Subjects take the form "<prefix>.<entity>.<partition>", where the
// partition is the fnv1a hash of the entity id modulo the partition
// count, so all events for one entity land on one subject in order.
type EventHook[T any, ID comparable] struct {
	BaseHook[T, ID]

	bus        Bus
	identity   Identity[T, ID]
	prefix     string
	entity     string
	partitions uint64
}

func NewEventHook[T any, ID comparable](bus Bus, identity Identity[T, ID], prefix string, partitions int) *EventHook[T, ID] {
	if partitions < 1 {
		partitions = 1
	}
	return &EventHook[T, ID]{
		bus:        bus,
		identity:   identity,
		prefix:     prefix,
		entity:     entityName[T](),
		partitions: uint64(partitions),
	}
}

func (h *EventHook[T, ID]) subject(id string) string {
	partition := fnv1a.HashString64(id) % h.partitions
	return fmt.Sprintf("%s.%s.%d", h.prefix, h.entity, partition)
}

func (h *EventHook[T, ID]) publish(op string, item *T) error {
	id := fmt.Sprintf("%v", h.identity.ID(item))
	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}
	event, err := json.Marshal(ChangeEvent{
		Entity: h.entity,
		Op:     op,
		ID:     id,
		At:     time.Now().UTC(),
		Data:   payload,
	})
	if err != nil {
		return err
	}
	return h.bus.Publish(h.subject(id), event)
}

func (h *EventHook[T, ID]) AfterAdd(_ context.Context, item *T) error {
	return h.publish("add", item)
}

func (h *EventHook[T, ID]) AfterUpdate(_ context.Context, item *T) error {
	return h.publish("update", item)
}

func (h *EventHook[T, ID]) AfterDelete(_ context.Context, item *T) error {
	return h.publish("delete", item)
}

var _ Hook[struct{ ID string }, string] = (*EventHook[struct{ ID string }, string])(nil)
