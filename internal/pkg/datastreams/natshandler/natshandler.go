// Package natshandler streams simulation events to a NATS server.
package natshandler

import (
	"encoding/json"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/ohowland/holarchy/internal/pkg/msg"

	nats "github.com/nats-io/nats.go"
)

// Conn is the part of a NATS connection the handler publishes through.
type Conn interface {
	Publish(subject string, data []byte) error
}

// Handler forwards every tick, audit and state event of a publisher to
// <Subject>.<topic>.
type Handler struct {
	mux     *sync.Mutex
	inbox   chan msg.Msg
	pid     uuid.UUID
	config  Config
	system  msg.Publisher
	stop    chan bool
	stopped bool
	sent    int
}

// Config names the server and the subject prefix.
type Config struct {
	Server  string `json:"Server"`
	Subject string `json:"Subject"`
}

const defaultSubject = "holarchy"

var topics = []msg.Topic{msg.Tick, msg.Audit, msg.State}

// PID is the handler's subscriber id.
func (h *Handler) PID() uuid.UUID {
	return h.pid
}

func (h *Handler) redirectMsg(chIn <-chan msg.Msg) {
	for m := range chIn {
		select {
		case h.inbox <- m:
		case <-h.stop:
			return
		}
	}
}

// New reads a JSON config file and subscribes to system.
func New(configPath string, system msg.Publisher) (*Handler, error) {
	jsonConfig, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}
	cfg := Config{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, system)
}

// NewFromConfig subscribes a handler for cfg to system.
func NewFromConfig(cfg Config, system msg.Publisher) (*Handler, error) {
	if cfg.Server == "" {
		cfg.Server = nats.DefaultURL
	}
	if cfg.Subject == "" {
		cfg.Subject = defaultSubject
	}

	h := &Handler{
		mux:    &sync.Mutex{},
		inbox:  make(chan msg.Msg, 50),
		pid:    uuid.New(),
		config: cfg,
		system: system,
		stop:   make(chan bool),
	}
	for _, topic := range topics {
		ch, err := system.Subscribe(h.pid, topic)
		if err != nil {
			system.Unsubscribe(h.pid)
			return nil, err
		}
		go h.redirectMsg(ch)
	}
	return h, nil
}

// Subject is the NATS subject events of topic are published on.
func (h *Handler) Subject(topic msg.Topic) string {
	return h.config.Subject + "." + topic.String()
}

// Connect dials the configured server and starts forwarding.
func (h *Handler) Connect() error {
	nc, err := nats.Connect(h.config.Server, nats.Name("holarchy"))
	if err != nil {
		return err
	}
	log.Println("[NATS client] connected to", nc.ConnectedUrl())
	go func() {
		h.Process(nc)
		nc.Close()
	}()
	return nil
}

// Sent is the number of events published so far.
func (h *Handler) Sent() int {
	h.mux.Lock()
	defer h.mux.Unlock()
	return h.sent
}

// Stop ends forwarding and releases the subscriptions.
func (h *Handler) Stop() {
	h.mux.Lock()
	defer h.mux.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	close(h.stop)
	h.system.Unsubscribe(h.pid)
}

// Process publishes inbox events to nc until Stop is called.
func (h *Handler) Process(nc Conn) {
	log.Println("[NATS client] Process Started")
loop:
	for {
		select {
		case m := <-h.inbox:
			data, err := json.Marshal(m.Payload())
			if err != nil {
				log.Printf("[NATS client] unable to encode %s: %v", m.Topic(), err)
				continue
			}
			if err = nc.Publish(h.Subject(m.Topic()), data); err != nil {
				log.Printf("[NATS client] unable to publish to nats server: %v", err)
				continue
			}
			h.mux.Lock()
			h.sent++
			h.mux.Unlock()

		case <-h.stop:
			break loop
		}
	}
	log.Println("[NATS client] Process Shutdown")
}
