package sse

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWriteEvent(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want string
	}{
		{"default event", Event{Data: "reload"}, "data: reload\n\n"},
		{"named", Event{Name: "state", Data: "x"}, "event: state\ndata: x\n\n"},
		{"multi line", Event{Data: "<div>\r\n<p>a</p>\n</div>"}, "data: <div>\ndata: <p>a</p>\ndata: </div>\n\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var b strings.Builder
			WriteEvent(&b, tt.ev)
			if b.String() != tt.want {
				t.Errorf("WriteEvent() = %q, want %q", b.String(), tt.want)
			}
		})
	}
}

func TestBroadcastByTopic(t *testing.T) {
	s := NewSSEClients()
	a := NewClient("latex:1")
	b := NewClient("latex:2", PostTopic("hello"))
	s.Add(a)
	s.Add(b)

	if n := s.Broadcast(Event{Topic: "latex:2", Data: "done"}); n != 1 {
		t.Fatalf("Broadcast() reached %d clients, want 1", n)
	}
	select {
	case ev := <-b.Msg:
		if ev.Data != "done" {
			t.Errorf("event = %+v", ev)
		}
	default:
		t.Fatal("subscribed client got nothing")
	}
	select {
	case ev := <-a.Msg:
		t.Fatalf("unsubscribed client got %+v", ev)
	default:
	}

	s.Delete(a)
	s.Delete(a)
	if s.Len() != 1 {
		t.Errorf("Len() = %d", s.Len())
	}
}

func TestBroadcastDropsForFullClient(t *testing.T) {
	s := NewSSEClients()
	c := NewClient("t")
	s.Add(c)
	for i := 0; i < cap(c.Msg); i++ {
		s.Broadcast(Event{Topic: "t", Data: "x"})
	}
	if n := s.Broadcast(Event{Topic: "t", Data: "overflow"}); n != 0 {
		t.Errorf("Broadcast() to a full client = %d, want 0", n)
	}
}

func TestServeHTTPRequiresTopic(t *testing.T) {
	rec := httptest.NewRecorder()
	NewSSEClients().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sse", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestServeHTTPStreams(t *testing.T) {
	s := NewSSEClients()
	srv := httptest.NewServer(s)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse?topic=posts", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	readEvent := func() string {
		var lines []string
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				t.Fatalf("reading stream: %v", err)
			}
			if line == "\n" {
				return strings.Join(lines, "")
			}
			lines = append(lines, line)
		}
	}

	if got := readEvent(); !strings.HasPrefix(got, "event: connected") {
		t.Fatalf("first event = %q", got)
	}

	for s.Len() == 0 {
		time.Sleep(time.Millisecond)
	}
	s.Broadcast(Event{Topic: TopicPosts, Data: "reload"})
	if got := readEvent(); got != "data: reload\n" {
		t.Errorf("event = %q", got)
	}
}
