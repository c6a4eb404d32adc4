package network

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var ErrUnknownNode = errors.New("unknown node")

// Network is the shared message fabric: per-node FIFO inboxes fed from a
// single logical-time event queue. All methods are serialized.
type Network struct {
	mu      sync.Mutex
	logger  *zap.Logger
	inboxes map[NodeID][]Event
	nextID  NodeID
	queue   *EventQueue
}

func NewNetwork(logger *zap.Logger) *Network {
	return &Network{
		logger:  logger,
		inboxes: make(map[NodeID][]Event),
		queue:   NewEventQueue(),
	}
}

// Register allocates the next node id with an empty inbox.
func (n *Network) Register() NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.inboxes[id] = make([]Event, 0)
	n.logger.Debug("Register", zap.Uint64("node", id))
	return id
}

// Nodes lists registered ids in allocation order.
func (n *Network) Nodes() []NodeID {
	n.mu.Lock()
	defer n.mu.Unlock()

	ids := make([]NodeID, 0, n.nextID)
	for id := NodeID(0); id < n.nextID; id++ {
		if _, ok := n.inboxes[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Send schedules msg for delivery to receiver at msg.Timestamp + delay.
// Unknown endpoints are logged and reported; nothing is scheduled.
func (n *Network) Send(sender, receiver NodeID, msg Message, delay uint64) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.inboxes[sender]; !ok {
		n.logger.Error("Send::UnknownSender", zap.Uint64("sender", sender))
		return fmt.Errorf("%w: sender %d", ErrUnknownNode, sender)
	}
	if _, ok := n.inboxes[receiver]; !ok {
		n.logger.Error("Send::UnknownReceiver", zap.Uint64("receiver", receiver))
		return fmt.Errorf("%w: receiver %d", ErrUnknownNode, receiver)
	}

	msg.Timestamp += delay
	n.queue.Schedule(Event{
		Timestamp: msg.Timestamp,
		Sender:    sender,
		Receiver:  receiver,
		Message:   msg,
	})
	return nil
}

// Drain delivers every event scheduled before the call into its receiver's
// inbox, in (timestamp, insertion) order, and returns them.
func (n *Network) Drain() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	count := n.queue.Len()
	delivered := make([]Event, 0, count)
	for i := 0; i < count; i++ {
		event, ok := n.queue.PopNext()
		if !ok {
			break
		}
		inbox, ok := n.inboxes[event.Receiver]
		if !ok {
			n.logger.Error("Drain::UnknownReceiver", zap.Stringer("event", event))
			continue
		}
		n.inboxes[event.Receiver] = append(inbox, event)
		delivered = append(delivered, event)
	}
	return delivered
}

// Receive pops the oldest delivered message for id.
func (n *Network) Receive(id NodeID) (Message, bool) {
	event, ok := n.Next(id)
	return event.Message, ok
}

// Next pops the oldest delivered event for id, sender included.
func (n *Network) Next(id NodeID) (Event, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	inbox := n.inboxes[id]
	if len(inbox) == 0 {
		return Event{}, false
	}
	event := inbox[0]
	n.inboxes[id] = inbox[1:]
	return event, true
}

// Pending reports whether any event is still scheduled.
func (n *Network) Pending() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.queue.Empty()
}
