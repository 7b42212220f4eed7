// Package livepreview is the websocket channel between the editor page and
// its server session. The browser streams its textarea; the server answers
// with rendered previews and save status.
package livepreview

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/folio/internal/auth"
	"github.com/debemdeboas/folio/internal/editor"
	"github.com/debemdeboas/folio/internal/render"
	"github.com/debemdeboas/folio/internal/theme"
)

var previewLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	previewLogger = l
}

const (
	MessageTypeSync   = "sync"
	MessageTypeRender = "render"
	MessageTypeStatus = "status"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	statusPeriod = 5 * time.Second
	maxMessage   = 8 << 20
)

// IncomingMessage is what the browser sends: its textarea and selection.
type IncomingMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
}

type RenderMessage struct {
	Type    string   `json:"type"`
	Rev     uint64   `json:"rev"`
	HTML    string   `json:"html"`
	Figures []string `json:"figures"`
	Latex   int      `json:"latex"`
}

type StatusMessage struct {
	Type    string    `json:"type"`
	Rev     uint64    `json:"rev"`
	Dirty   bool      `json:"dirty"`
	Slug    string    `json:"slug"`
	SavedAt time.Time `json:"saved_at"`
}

// Sessions finds the editor session a user opened.
type Sessions interface {
	SessionFor(id, user string) (*editor.Session, bool)
}

type Server struct {
	sessions Sessions
	autosave time.Duration
	preview  bool
	upgrader websocket.Upgrader
}

// NewServer returns the channel handler. Autosave runs for as long as a
// session's channel is open; preview controls whether renders are pushed.
func NewServer(sessions Sessions, autosave time.Duration, preview bool) *Server {
	return &Server{
		sessions: sessions,
		autosave: autosave,
		preview:  preview,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("GET /ws/editor/{id}", s)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	es, ok := s.sessions.SessionFor(r.PathValue("id"), u.Username)
	if !ok {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		previewLogger.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	previewLogger.Debug().Str("editor", es.ID).Str("user", u.Username).Msg("Editor channel opened")
	go es.RunAutosave(ctx, s.autosave)

	inbound := make(chan IncomingMessage, 16)
	go readLoop(ctx, cancel, conn, inbound)

	c := &channel{
		conn:        conn,
		session:     es,
		syntaxTheme: theme.GetSyntaxThemeFromRequest(r),
		preview:     s.preview,
	}
	c.run(ctx, inbound)
	previewLogger.Debug().Str("editor", es.ID).Msg("Editor channel closed")
}

// readLoop decodes browser messages until the connection fails, then cancels
// the channel.
func readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out chan<- IncomingMessage) {
	defer cancel()

	conn.SetReadLimit(maxMessage)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				previewLogger.Debug().Err(err).Msg("Editor channel read failed")
			}
			return
		}

		var msg IncomingMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		select {
		case out <- msg:
		case <-ctx.Done():
			return
		}
	}
}

type channel struct {
	conn        *websocket.Conn
	session     *editor.Session
	syntaxTheme string
	preview     bool

	renderedRev uint64
	lastStatus  StatusMessage
}

// run serializes every write to the connection on one goroutine. Changes
// arriving while a render runs collapse into one pending signal, so the
// preview always catches up with the latest text rather than every keystroke.
func (c *channel) run(ctx context.Context, inbound <-chan IncomingMessage) {
	changes, stop := c.session.Watch()
	defer stop()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	status := time.NewTicker(statusPeriod)
	defer status.Stop()

	if !c.pushRender() || !c.pushStatus(true) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return

		case msg := <-inbound:
			switch msg.Type {
			case MessageTypeSync:
				c.session.Sync(msg.Content, editor.Selection{Start: msg.Start, End: msg.End})
			}

		case <-changes:
			if !c.pushRender() {
				return
			}

		case <-status.C:
			if !c.pushStatus(false) {
				return
			}

		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (c *channel) pushRender() bool {
	if !c.preview {
		return true
	}
	snap := c.session.Snapshot()
	if snap.Rev != 0 && snap.Rev == c.renderedRev {
		return true
	}

	out, meta := render.RenderMarkdown([]byte(snap.Content), c.syntaxTheme)
	c.renderedRev = snap.Rev
	return c.write(RenderMessage{
		Type:    MessageTypeRender,
		Rev:     snap.Rev,
		HTML:    string(out),
		Figures: meta.Figures,
		Latex:   meta.LatexCount(),
	})
}

// pushStatus reports the save state when it changed since the last report.
func (c *channel) pushStatus(force bool) bool {
	snap := c.session.Snapshot()
	msg := StatusMessage{
		Type:    MessageTypeStatus,
		Rev:     snap.Rev,
		Dirty:   snap.Dirty,
		Slug:    snap.Slug,
		SavedAt: snap.SavedAt,
	}
	if !force && msg == c.lastStatus {
		return true
	}
	c.lastStatus = msg
	return c.write(msg)
}

func (c *channel) write(v any) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(v); err != nil {
		previewLogger.Debug().Err(err).Msg("Editor channel write failed")
		return false
	}
	return true
}
