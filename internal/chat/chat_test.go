package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestKickReaderReceivesMessages(t *testing.T) {
	t.Parallel()

	upgrader := websocket.Upgrader{}
	gotPong := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		// Expect the subscribe frame first.
		var sub pusherFrame
		if errRead := conn.ReadJSON(&sub); errRead != nil {
			t.Errorf("read subscribe: %v", errRead)
			return
		}
		if sub.Event != "pusher:subscribe" || !strings.Contains(sub.Data, "chatrooms.777.v2") {
			t.Errorf("subscribe frame = %+v", sub)
		}

		// Ping, then a chat message.
		_ = conn.WriteJSON(pusherFrame{Event: "pusher:ping", Data: "{}"})
		chatData := `{"id":"m1","content":"hello chat","sender":{"id":1,"username":"alice"}}`
		_ = conn.WriteJSON(pusherFrame{
			Event:   "App\\Events\\ChatMessageEvent",
			Data:    chatData,
			Channel: "chatrooms.777.v2",
		})

		// Wait for the pong before closing.
		var frame pusherFrame
		for {
			if errRead := conn.ReadJSON(&frame); errRead != nil {
				return
			}
			if frame.Event == "pusher:pong" {
				gotPong <- struct{}{}
				return
			}
		}
	}))
	defer server.Close()

	messages := make(chan Message, 1)
	reader := &KickReader{
		ChatroomID: 777,
		Channel:    "xyz",
		URL:        "ws" + strings.TrimPrefix(server.URL, "http"),
		OnMessage:  func(m Message) { messages <- m },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = reader.Run(ctx) }()

	select {
	case msg := <-messages:
		if msg.Sender != "alice" || msg.Text != "hello chat" || msg.Platform != "kick" {
			t.Errorf("message = %+v", msg)
		}
	case <-ctx.Done():
		t.Fatal("no chat message received")
	}

	select {
	case <-gotPong:
	case <-ctx.Done():
		t.Fatal("reader never answered the protocol ping")
	}
}

// Deliberately not parallel: it compares goroutine counts.
func TestKickReaderLeavesNoGoroutineAfterServerDrop(t *testing.T) {
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the connection right after the subscribe frame.
		_, _, _ = conn.ReadMessage()
		_ = conn.Close()
	}))
	defer server.Close()

	before := runtime.NumGoroutine()

	reader := &KickReader{
		ChatroomID: 1,
		Channel:    "xyz",
		URL:        "ws" + strings.TrimPrefix(server.URL, "http"),
	}
	if err := reader.Run(context.Background()); err == nil {
		t.Fatal("Run returned nil after the server dropped the connection")
	}

	// The context is still live, so Run's helper goroutine must have been
	// released by Run itself, not by cancellation.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before {
		if time.Now().After(deadline) {
			t.Fatalf("goroutines did not settle: %d running, started with %d", runtime.NumGoroutine(), before)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLogWritesSessionTranscript(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	chatLog := NewLog(dir, "kick", "xyz")
	chatLog.Record(Message{
		Sender: "alice",
		Text:   "hello",
		Time:   time.Date(2026, 8, 29, 12, 30, 0, 0, time.UTC),
	})
	if err := chatLog.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "kick-xyz.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(raw)
	for _, want := range []string{"recording kick/xyz", "[12:30:00] alice: hello", "closed"} {
		if !strings.Contains(content, want) {
			t.Errorf("transcript missing %q:\n%s", want, content)
		}
	}
}
