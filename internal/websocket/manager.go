// Package websocket fans engine events out to connected observers (status
// dashboards, debugging clients).
package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

type Hub struct {
	clients      map[string]*Client
	clientsMutex sync.RWMutex
	Register     chan *Client
	Unregister   chan *Client
	maxClients   int
	writeWait    time.Duration
	pongWait     time.Duration
	pingPeriod   time.Duration
}

func NewHub(maxClients int, writeWait, pongWait, pingPeriod time.Duration) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		maxClients: maxClients,
		writeWait:  writeWait,
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.registerClient(client)
		case client := <-h.Unregister:
			h.unregisterClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	if len(h.clients) >= h.maxClients {
		log.Printf("websocket: max observers reached, rejecting %s", client.ID)
		close(client.Send)
		return
	}

	h.clients[client.ID] = client
	log.Printf("websocket: observer connected: %s", client.ID)
}

func (h *Hub) unregisterClient(client *Client) {
	h.clientsMutex.Lock()
	defer h.clientsMutex.Unlock()

	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.Send)
		log.Printf("websocket: observer disconnected: %s", client.ID)
	}
}

// Broadcast sends a message to every connected observer. Observers with a
// full send buffer are disconnected rather than blocking the hub.
func (h *Hub) Broadcast(message *Message) error {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()

	for id, client := range h.clients {
		select {
		case client.Send <- messageBytes:
		default:
			log.Printf("websocket: observer %s send buffer full, dropping connection", id)
			go func(c *Client) { h.Unregister <- c }(client)
		}
	}

	return nil
}

// Observers reports the number of connected clients.
func (h *Hub) Observers() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}
