package sse

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/debemdeboas/folio/internal/config"
)

// Topics names used across the site.
const (
	TopicPosts = "posts"
	// Prefix of a post page's topic; the post slug follows.
	TopicPostPrefix = "post:"
	// Prefix of a latex panel's topic; the panel id follows.
	TopicLatexPrefix = "latex:"
)

func PostTopic(slug string) string {
	return TopicPostPrefix + slug
}

func LatexTopic(panel string) string {
	return TopicLatexPrefix + panel
}

// ServeHTTP streams the events of the topics named in the query.
func (s *SSEClients) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	topics := r.URL.Query()["topic"]
	if len(topics) == 0 {
		http.Error(w, "Topic parameter required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set(config.HCType, config.CTypeEventStream)
	w.Header().Set(config.HCacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Del(config.HContentTypeOpt)

	fmt.Fprintf(w, "event: connected\ndata: SSE connection established\n\n")
	flusher.Flush()

	client := NewClient(topics...)
	s.Add(client)
	sseLogger.Debug().Strs("topics", topics).Msg("New SSE client connected")

	defer func() {
		s.Delete(client)
		sseLogger.Debug().Strs("topics", topics).Msg("SSE client disconnected")
	}()

	notify := r.Context().Done()
	for {
		select {
		case ev, ok := <-client.Msg:
			if !ok {
				return
			}
			WriteEvent(w, ev)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

// WriteEvent writes ev in the text/event-stream format. Multi-line data is
// sent as one data field per line.
func WriteEvent(w io.Writer, ev Event) {
	if ev.Name != "" {
		fmt.Fprintf(w, "event: %s\n", ev.Name)
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		fmt.Fprintf(w, "data: %s\n", strings.TrimSuffix(line, "\r"))
	}
	io.WriteString(w, "\n")
}
