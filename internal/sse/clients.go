// Package sse provides Server-Sent Events client management for real-time communication.
package sse

import (
	"sync"

	"github.com/rs/zerolog"
)

var sseLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	sseLogger = l
}

// Event is one message on a topic. An empty Name sends the default message event.
type Event struct {
	Topic string
	Name  string
	Data  string
}

type Client struct {
	Msg    chan Event
	Topics map[string]struct{}
}

func NewClient(topics ...string) *Client {
	c := &Client{
		Msg:    make(chan Event, 16),
		Topics: make(map[string]struct{}, len(topics)),
	}
	for _, t := range topics {
		c.Topics[t] = struct{}{}
	}
	return c
}

func (c *Client) Subscribed(topic string) bool {
	_, ok := c.Topics[topic]
	return ok
}

type SSEClients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewSSEClients() *SSEClients {
	return &SSEClients{
		clients: make(map[*Client]bool),
	}
}

func (s *SSEClients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *SSEClients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client]; !ok {
		return
	}
	delete(s.clients, client)
	close(client.Msg)
}

func (s *SSEClients) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast delivers ev to every client subscribed to its topic. A client
// whose buffer is full misses the event.
func (s *SSEClients) Broadcast(ev Event) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sent := 0
	for client := range s.clients {
		if !client.Subscribed(ev.Topic) {
			continue
		}
		select {
		case client.Msg <- ev:
			sent++
		default:
			sseLogger.Debug().Str("topic", ev.Topic).Msg("Dropping event for slow client")
		}
	}
	return sent
}
