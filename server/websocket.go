package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xhad/lore/internal/models"
	"github.com/xhad/lore/pkg/lore"
	"github.com/xhad/lore/pkg/render"
)

// Message is a WebSocket frame in either direction. Requests carry the
// query, entity name, situation or question in Content; replies carry the
// rendered text in Content and the structured value in Data.
type Message struct {
	Type      string      `json:"type"`
	ID        string      `json:"id,omitempty"`
	Content   string      `json:"content"`
	Category  string      `json:"category,omitempty"`
	Entities  []string    `json:"entities,omitempty"`
	Limit     int         `json:"limit,omitempty"`
	MaxLength int         `json:"max_length,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(msg)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &wsConn{conn: conn}
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("WebSocket read ended", zap.Error(err))
			}
			cancel()
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			s.reply(c, Message{Type: "error", Content: "invalid message"})
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.handleMessage(ctx, c, msg)
		}()
	}
}

func (s *Server) reply(c *wsConn, msg Message) {
	if err := c.send(msg); err != nil {
		s.logger.Debug("Error sending message", zap.Error(err))
	}
}

func (s *Server) replyError(c *wsConn, id string, err error) {
	s.reply(c, Message{Type: "error", ID: id, Content: err.Error()})
}

func (s *Server) handleMessage(ctx context.Context, c *wsConn, msg Message) {
	category, err := models.ParseCategory(msg.Category)
	if err != nil {
		s.replyError(c, msg.ID, err)
		return
	}
	if msg.Type != "status" && strings.TrimSpace(msg.Content) == "" {
		s.replyError(c, msg.ID, fmt.Errorf("%s requires content", msg.Type))
		return
	}

	switch msg.Type {
	case "search":
		results, err := s.service.Search(ctx, msg.Content, lore.SearchOptions{Limit: msg.Limit, Category: category})
		if err != nil {
			s.replyError(c, msg.ID, err)
			return
		}
		s.reply(c, Message{Type: "results", ID: msg.ID, Content: render.Search(msg.Content, results), Data: results})

	case "lookup":
		r, err := s.service.LookupEntity(ctx, msg.Content, category)
		if err != nil {
			s.replyError(c, msg.ID, err)
			return
		}
		s.reply(c, Message{Type: "entity", ID: msg.ID, Content: render.Lookup(msg.Content, r), Data: EntityResponse{Found: r != nil, Result: r}})

	case "context":
		maxLength := msg.MaxLength
		if maxLength <= 0 {
			maxLength = defaultContextLength
		}
		lc, err := s.service.ContextForSituation(ctx, msg.Content, msg.Entities, maxLength)
		if err != nil {
			s.replyError(c, msg.ID, err)
			return
		}
		s.reply(c, Message{Type: "context", ID: msg.ID, Content: render.Context(lc), Data: lc})

	case "random":
		r, err := s.service.GetRandomLore(ctx, category)
		if err != nil {
			s.replyError(c, msg.ID, err)
			return
		}
		s.reply(c, Message{Type: "entity", ID: msg.ID, Content: render.Random(r), Data: EntityResponse{Found: r != nil, Result: r}})

	case "status":
		st := s.service.Status(ctx)
		s.reply(c, Message{Type: "status", ID: msg.ID, Content: render.Status(st), Data: st})

	case "ask":
		s.handleAsk(ctx, c, msg)

	default:
		s.replyError(c, msg.ID, fmt.Errorf("unknown message type %q", msg.Type))
	}
}

// handleAsk streams an answer grounded in the lore gathered for the question.
func (s *Server) handleAsk(ctx context.Context, c *wsConn, msg Message) {
	if s.chat == nil {
		s.replyError(c, msg.ID, fmt.Errorf("chat is not configured"))
		return
	}

	lc, err := s.service.ContextForSituation(ctx, msg.Content, msg.Entities, msg.MaxLength)
	if err != nil {
		s.replyError(c, msg.ID, err)
		return
	}
	s.reply(c, Message{Type: "sources", ID: msg.ID, Data: lc.Sources})

	for chunk := range s.chat.AnswerStream(ctx, msg.Content, lc) {
		if chunk.Err != nil {
			s.replyError(c, msg.ID, chunk.Err)
			return
		}
		s.reply(c, Message{Type: "stream", ID: msg.ID, Content: chunk.Text})
	}
	s.reply(c, Message{Type: "done", ID: msg.ID})
}
