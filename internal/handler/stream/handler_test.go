package stream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/askislamically/backend/internal/model/chat"
)

func TestBroadcasterFansOut(t *testing.T) {
	b := NewBroadcaster()
	first, _, cancelFirst := b.Subscribe()
	second, _, cancelSecond := b.Subscribe()
	defer cancelSecond()

	b.Notify(chat.NoticeCopied)

	for i, ch := range []<-chan Event{first, second} {
		select {
		case ev := <-ch:
			if ev.Name != EventNotice {
				t.Fatalf("subscriber %d got %s", i, ev.Name)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d got nothing", i)
		}
	}

	cancelFirst()
	cancelFirst()
	if _, open := <-first; open {
		t.Fatal("cancelled subscription still open")
	}
}

func TestBroadcasterReplaysLastState(t *testing.T) {
	b := NewBroadcaster()
	b.StateChanged(chat.Snapshot{SessionID: "s1", Loading: true})

	_, last, cancel := b.Subscribe()
	defer cancel()
	if last == nil || last.SessionID != "s1" || !last.Loading {
		t.Fatalf("unexpected last state %+v", last)
	}
}

func TestBroadcasterDropsWhenSubscriberIsSlow(t *testing.T) {
	b := NewBroadcaster()
	_, _, cancel := b.Subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			b.ScrollToLatest()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestRegistryRemoveClosesSubscribers(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster()
	reg.Register("s1", b)

	events, _, _ := b.Subscribe()
	reg.Remove("s1")

	if _, ok := reg.Lookup("s1"); ok {
		t.Fatal("broadcaster still registered")
	}
	if _, open := <-events; open {
		t.Fatal("subscription not closed")
	}
	if ch, _, _ := b.Subscribe(); ch != nil {
		if _, open := <-ch; open {
			t.Fatal("subscribe after close should yield a closed channel")
		}
	}
}

func TestEventsUnknownSession(t *testing.T) {
	r := chi.NewRouter()
	New(NewRegistry()).RegisterRoutes(r)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/chat/events/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestEventsStreamsSessionCallbacks(t *testing.T) {
	reg := NewRegistry()
	b := NewBroadcaster()
	reg.Register("s1", b)
	b.StateChanged(chat.Snapshot{SessionID: "s1"})

	r := chi.NewRouter()
	New(reg).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/chat/events/s1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	nextEvent := func() string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimSpace(strings.TrimPrefix(line, "event: "))
			}
		}
	}

	if got := nextEvent(); got != EventState {
		t.Fatalf("first event = %s, want state", got)
	}

	b.Notify(chat.NoticeExported)
	if got := nextEvent(); got != EventNotice {
		t.Fatalf("second event = %s, want notice", got)
	}

	reg.Remove("s1")
	if got := nextEvent(); got != "closed" {
		t.Fatalf("expected closed event, got %s", got)
	}
}
