package websocket

import (
	"context"
	"encoding/json"

	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/domain"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/greenhouse-automation/internal/pkg/persistence"
)

const broadcastBacklog = 256

//Message is the envelope of everything sent to live feed clients
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

//Hub maintains the set of active clients and broadcasts messages to them.
//The client set is only touched from the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	log        logging.Logger
}

func NewHub(log logging.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, broadcastBacklog),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
		log:        log,
	}
}

//Run serves registrations and broadcasts until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			return

		case client := <-h.register:
			h.clients[client] = true
			h.log.Debugf("live feed client registered: %s", client.remoteAddr())

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.log.Debugf("live feed client unregistered: %s", client.remoteAddr())
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					h.log.Warnf("live feed client %s is not keeping up, removing it", client.remoteAddr())
					delete(h.clients, client)
					close(client.send)
				}
			}
		}
	}
}

func (h *Hub) publish(kind string, payload interface{}) {
	messageBytes, err := json.Marshal(Message{Type: kind, Payload: payload})
	if err != nil {
		h.log.Errorf("failed to marshal %s for the live feed: %s", kind, err.Error())
		return
	}

	select {
	case h.broadcast <- messageBytes:
	default:
		h.log.Warnf("live feed backlog is full, dropping %s", kind)
	}
}

func (h *Hub) ReadingAccepted(r domain.Reading, durability persistence.Durability) {
	h.publish("reading", r)
}

func (h *Hub) AlertRaised(a domain.Alert) {
	h.publish("alert", a)
}

type actuatorPayload struct {
	Device   domain.Device           `json:"device"`
	Snapshot domain.ActuatorSnapshot `json:"snapshot"`
	Event    domain.ActuatorEvent    `json:"event"`
}

func (h *Hub) ActuatorChanged(s domain.ActuatorSnapshot, e domain.ActuatorEvent) {
	h.publish("actuator", actuatorPayload{Device: s.Device, Snapshot: s, Event: e})
}
