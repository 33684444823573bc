package realtime

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/production-planner/internal/domain/production"
	"github.com/yungbote/production-planner/internal/platform/logger"
)

func recvMessage(t *testing.T, ch <-chan Message, timeout time.Duration) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return Message{}
}

func TestHubReconnectAndOrdering(t *testing.T) {
	hub := NewHub(logger.Nop())
	channel := ManifestChannel(uuid.New())

	clientA := hub.NewClient(uuid.New())
	hub.AddChannel(clientA, channel)

	hub.Broadcast(Message{Channel: channel, Event: EventJobStatusChanged, Data: map[string]any{"seq": 1}})
	hub.Broadcast(Message{Channel: channel, Event: EventManifestStatusChanged, Data: map[string]any{"seq": 2}})

	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != EventJobStatusChanged {
		t.Fatalf("first event: want=%s got=%s", EventJobStatusChanged, got.Event)
	}
	if got := recvMessage(t, clientA.Outbound, time.Second); got.Event != EventManifestStatusChanged {
		t.Fatalf("second event: want=%s got=%s", EventManifestStatusChanged, got.Event)
	}

	hub.CloseClient(clientA)
	hub.CloseClient(clientA)
	if _, ok := <-clientA.Outbound; ok {
		t.Fatalf("outbound should be closed after disconnect")
	}
	if n := hub.Subscribers(channel); n != 0 {
		t.Fatalf("subscribers after close: want=0 got=%d", n)
	}

	clientB := hub.NewClient(uuid.New())
	hub.AddChannel(clientB, channel)
	hub.Broadcast(Message{Channel: channel, Event: EventSceneStatusChanged})
	if got := recvMessage(t, clientB.Outbound, time.Second); got.Event != EventSceneStatusChanged {
		t.Fatalf("reconnect event: want=%s got=%s", EventSceneStatusChanged, got.Event)
	}
}

func TestHubOnlyDeliversToSubscribedChannel(t *testing.T) {
	hub := NewHub(logger.Nop())
	a, b := uuid.New(), uuid.New()
	client := hub.NewClient(uuid.New())
	hub.AddChannel(client, ManifestChannel(a))

	pub := &HubPublisher{Hub: hub}
	_ = pub.Publish(context.Background(), production.ManifestEvent{ManifestID: b, Kind: production.EventManifestStatus, Status: "failed"})
	_ = pub.Publish(context.Background(), production.ManifestEvent{ManifestID: a, Kind: production.EventJobStatus, Status: "processing"})

	got := recvMessage(t, client.Outbound, time.Second)
	ev, ok := got.Data.(production.ManifestEvent)
	if got.Event != EventJobStatusChanged || !ok || ev.ManifestID != a {
		t.Fatalf("unexpected message: %+v", got)
	}
	select {
	case extra := <-client.Outbound:
		t.Fatalf("message from another manifest leaked: %+v", extra)
	default:
	}
}

func TestServeHTTPStreamsMessages(t *testing.T) {
	hub := NewHub(logger.Nop())
	channel := ManifestChannel(uuid.New())
	client := hub.NewClient(uuid.New())
	hub.AddChannel(client, channel)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeHTTP(w, r, client)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: %q", ct)
	}

	hub.Broadcast(Message{Channel: channel, Event: EventManifestStatusChanged, Data: map[string]any{"status": "completed"}})

	sc := bufio.NewScanner(resp.Body)
	var event, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		}
		if data != "" {
			break
		}
	}
	if event != string(EventManifestStatusChanged) || !strings.Contains(data, `"completed"`) {
		t.Fatalf("stream: event=%q data=%q", event, data)
	}
}
