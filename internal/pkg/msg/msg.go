package msg

import (
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"
)

// Topic is the class of event carried by a Msg.
type Topic int

const (
	// Tick carries an engine.Result after every settled tick.
	Tick Topic = iota
	// Audit carries an audit.Entry for every state-changing command.
	Audit
	// State carries a full state document after structural changes.
	State
)

func (t Topic) String() string {
	switch t {
	case Tick:
		return "tick"
	case Audit:
		return "audit"
	case State:
		return "state"
	}
	return "unknown"
}

const inboxSize = 50

// ErrClosed is returned by Subscribe after the publisher has been closed.
var ErrClosed = errors.New("publisher closed")

// Publisher is an interface for objects that allow subscription to their events
type Publisher interface {
	Subscribe(uuid.UUID, Topic) (<-chan Msg, error)
	Unsubscribe(uuid.UUID)
}

// Msg is a single published event.
type Msg struct {
	sender  uuid.UUID
	topic   Topic
	payload interface{}
}

// New is the Msg factory function
func New(sender uuid.UUID, topic Topic, payload interface{}) Msg {
	return Msg{sender, topic, payload}
}

// PID returns the sender's PID
func (v Msg) PID() uuid.UUID {
	return v.sender
}

// Topic returns the message topic
func (v Msg) Topic() Topic {
	return v.topic
}

// Payload returns the message data
func (v Msg) Payload() interface{} {
	return v.payload
}

// PubSub fans messages out to per-subscriber buffered channels.
type PubSub struct {
	mux    *sync.Mutex
	pid    uuid.UUID
	subs   map[Topic]map[uuid.UUID]chan Msg
	closed bool
}

// NewPublisher returns a PubSub that stamps its messages with pid.
func NewPublisher(pid uuid.UUID) *PubSub {
	return &PubSub{
		mux:  &sync.Mutex{},
		pid:  pid,
		subs: make(map[Topic]map[uuid.UUID]chan Msg),
	}
}

// PID returns the publisher's PID
func (p *PubSub) PID() uuid.UUID {
	return p.pid
}

// Subscribe returns a channel on which the specified topic is broadcast.
// A second subscription by the same pid to the same topic returns a fresh
// channel and closes the old one.
func (p *PubSub) Subscribe(pid uuid.UUID, topic Topic) (<-chan Msg, error) {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	subs, ok := p.subs[topic]
	if !ok {
		subs = make(map[uuid.UUID]chan Msg)
		p.subs[topic] = subs
	}
	if old, ok := subs[pid]; ok {
		close(old)
	}
	ch := make(chan Msg, inboxSize)
	subs[pid] = ch
	return ch, nil
}

// Unsubscribe pid from all topic broadcasts
func (p *PubSub) Unsubscribe(pid uuid.UUID) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for _, subs := range p.subs {
		if ch, ok := subs[pid]; ok {
			close(ch)
			delete(subs, pid)
		}
	}
}

// Publish broadcasts payload on topic. Subscribers whose buffer is full miss the message.
func (p *PubSub) Publish(topic Topic, payload interface{}) {
	p.Forward(New(p.pid, topic, payload))
}

// Forward broadcasts m unchanged, preserving the original sender.
func (p *PubSub) Forward(m Msg) {
	p.mux.Lock()
	defer p.mux.Unlock()
	for pid, ch := range p.subs[m.topic] {
		select {
		case ch <- m:
		default:
			log.Printf("[PubSub] dropped %v message for subscriber %v", m.topic, pid)
		}
	}
}

// Subscribers returns the number of subscriptions on topic.
func (p *PubSub) Subscribers(topic Topic) int {
	p.mux.Lock()
	defer p.mux.Unlock()
	return len(p.subs[topic])
}

// Close closes every subscriber channel. Later publishes are no-ops.
func (p *PubSub) Close() {
	p.mux.Lock()
	defer p.mux.Unlock()
	if p.closed {
		return
	}
	for _, subs := range p.subs {
		for pid, ch := range subs {
			close(ch)
			delete(subs, pid)
		}
	}
	p.closed = true
}
