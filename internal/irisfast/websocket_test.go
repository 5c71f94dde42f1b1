package irisfast

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestWebSocketRoundTrip(t *testing.T) {
	replies := make(chan ReplyRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-User-Id") != "bot" {
			http.Error(w, "missing header", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		if err := wsjson.Write(ctx, c, Message{Msg: "!현황", Room: "room-1"}); err != nil {
			return
		}
		var rep ReplyRequest
		if err := wsjson.Read(ctx, c, &rep); err != nil {
			return
		}
		replies <- rep
		_, _, _ = c.Read(context.Background())
	}))
	defer srv.Close()

	ws := NewWebSocket("ws"+strings.TrimPrefix(srv.URL, "http"), 0, time.Millisecond)
	ws.SetHeaderProvider(func() map[string]string { return map[string]string{"X-User-Id": "bot"} })

	got := make(chan *Message, 1)
	ws.OnMessage(func(m *Message) { got <- m })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, ws.Connect(ctx))
	require.True(t, ws.Connected())

	select {
	case m := <-got:
		require.Equal(t, "!현황", m.Msg)
		require.NoError(t, ws.WriteJSON(ctx, &ReplyRequest{Type: "text", Room: m.Room, Data: "ok"}))
	case <-ctx.Done():
		t.Fatal("no message delivered")
	}

	select {
	case rep := <-replies:
		require.Equal(t, ReplyRequest{Type: "text", Room: "room-1", Data: "ok"}, rep)
	case <-ctx.Done():
		t.Fatal("no reply received")
	}

	require.NoError(t, ws.Close(ctx))
	require.False(t, ws.Connected())
}
