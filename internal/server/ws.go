package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"civilizace.org/internal/entities"
	"civilizace.org/internal/protocol"
)

// Hub fans notifications out to connected dashboards. A client subscribes to
// one team's stream (or all teams with an empty team in HELLO).
type Hub struct {
	ents *entities.Entities
	log  *logrus.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	nextID  int
	clients map[int]*hubClient
}

type hubClient struct {
	team entities.EntityID // empty subscribes to everything
	out  chan []byte
}

func NewHub(ents *entities.Entities, log *logrus.Logger) *Hub {
	return &Hub{
		ents: ents,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[int]*hubClient{},
	}
}

// Notify sends a notification to every dashboard watching the team.
func (h *Hub) Notify(team entities.EntityID, text string) {
	b, err := json.Marshal(protocol.NotificationMsg{
		Type:            protocol.TypeNotification,
		ProtocolVersion: protocol.Version,
		Team:            string(team),
		Text:            text,
	})
	if err != nil {
		return
	}
	h.send(team, b)
}

// BroadcastTurn announces a turn advance to every connected dashboard.
func (h *Hub) BroadcastTurn(turn int) {
	b, err := json.Marshal(protocol.TurnMsg{
		Type:            protocol.TypeTurn,
		ProtocolVersion: protocol.Version,
		Turn:            turn,
	})
	if err != nil {
		return
	}
	h.send("", b)
}

// send delivers to matching clients; a full queue drops the message rather
// than blocking the game.
func (h *Hub) send(team entities.EntityID, b []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		if team != "" && c.team != "" && c.team != team {
			continue
		}
		select {
		case c.out <- b:
		default:
		}
	}
}

func (h *Hub) add(c *hubClient) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.clients[h.nextID] = c
	return h.nextID
}

func (h *Hub) remove(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		client, ok := h.handshake(conn)
		if !ok {
			return
		}
		id := h.add(client)
		defer h.remove(id)

		done := make(chan struct{})

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-done:
					return
				case b := <-client.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						return
					}
				}
			}
		}()

		// Reader loop: dashboards send nothing after HELLO; reads only detect
		// disconnects and pings.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		close(done)
	}
}

func (h *Hub) handshake(conn *websocket.Conn) (*hubClient, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"),
			time.Now().Add(time.Second))
		return nil, false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"),
			time.Now().Add(time.Second))
		return nil, false
	}
	team := entities.EntityID(hello.Team)
	if team != "" {
		if _, ok := h.ents.Teams[team]; !ok {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown team"),
				time.Now().Add(time.Second))
			return nil, false
		}
	}

	welcome, err := json.Marshal(protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		Team:            string(team),
		EntitiesDigest:  h.ents.Digest,
	})
	if err != nil {
		return nil, false
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, welcome); err != nil {
		return nil, false
	}
	return &hubClient{team: team, out: make(chan []byte, 32)}, true
}
