package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Kick serves chat through a hosted Pusher deployment; the app key is public
// and baked into the site's own frontend.
const (
	kickPusherURL    = "wss://ws-us2.pusher.com/app/32cbd69e4b950bf97679?protocol=7&client=js&version=8.4.0&flash=false"
	chatMessageEvent = "App\\Events\\ChatMessageEvent"
)

// KickReader tails a Kick chat room over the provider's Pusher websocket.
// Reading needs no authentication, only the numeric chat-room id.
type KickReader struct {
	// ChatroomID is the resolver-produced chat-room identifier.
	ChatroomID int64
	// Channel is the human-readable channel name, used for labeling only.
	Channel string
	// OnMessage receives each chat line.
	OnMessage Handler
	// URL overrides the websocket endpoint for tests.
	URL string
}

// pusherFrame is the envelope every Pusher message travels in. Data is a
// JSON-encoded string, not an object.
type pusherFrame struct {
	Event   string `json:"event"`
	Data    string `json:"data"`
	Channel string `json:"channel,omitempty"`
}

// Run subscribes to the chat room and reads until ctx is cancelled or the
// connection drops.
func (r *KickReader) Run(ctx context.Context) error {
	endpoint := r.URL
	if endpoint == "" {
		endpoint = kickPusherURL
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to chat websocket: %w", err)
	}
	defer func() {
		_ = conn.Close()
	}()

	subscribe := pusherFrame{
		Event: "pusher:subscribe",
		Data:  fmt.Sprintf(`{"auth":"","channel":"chatrooms.%d.v2"}`, r.ChatroomID),
	}
	if err = conn.WriteJSON(subscribe); err != nil {
		return fmt.Errorf("failed to subscribe to chatroom %d: %w", r.ChatroomID, err)
	}
	log.Infof("chat: subscribed to kick chatroom %d", r.ChatroomID)

	// Unblock ReadMessage when the caller cancels. stop releases the
	// goroutine when Run returns for any other reason.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, errRead := conn.ReadMessage()
		if errRead != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("chat websocket closed: %w", errRead)
		}
		r.handleFrame(conn, raw)
	}
}

// handleFrame answers protocol pings and forwards chat message events.
func (r *KickReader) handleFrame(conn *websocket.Conn, raw []byte) {
	var frame pusherFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		log.Debugf("chat: dropped unparsable frame: %v", err)
		return
	}

	switch frame.Event {
	case "pusher:ping":
		pong, _ := json.Marshal(pusherFrame{Event: "pusher:pong", Data: "{}"})
		_ = conn.WriteMessage(websocket.TextMessage, pong)
	case chatMessageEvent:
		if r.OnMessage == nil {
			return
		}
		payload := gjson.Parse(frame.Data)
		r.OnMessage(Message{
			Platform: "kick",
			Channel:  r.Channel,
			Sender:   payload.Get("sender.username").Str,
			Text:     payload.Get("content").Str,
			Time:     time.Now().UTC(),
		})
	}
}
