package realtime_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/roomvault/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/roomvault/internal/adapter/driving/auth"
	"github.com/ericfisherdev/roomvault/internal/adapter/driving/realtime"
	"github.com/ericfisherdev/roomvault/internal/application"
	"github.com/ericfisherdev/roomvault/internal/domain/model"
	"github.com/ericfisherdev/roomvault/internal/roomcrypto"
)

type testStack struct {
	server   *httptest.Server
	service  *application.RoomService
	channel  *application.RoomChannel
	verifier *auth.Verifier
}

type serverFrame struct {
	Event string            `json:"event"`
	Data  map[string]string `json:"data"`
}

// setupStack wires the handler to a real room service over a temporary
// SQLite database holding room-1 (admin alice, member bob).
func setupStack(t *testing.T, cfg realtime.Config) *testStack {
	t.Helper()
	ctx := context.Background()

	db, err := sqlite.NewDB(ctx, filepath.Join(t.TempDir(), "roomvault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.RunMigrations(db.Writer))

	rooms := sqlite.NewRoomRepo(db)
	secret, err := roomcrypto.NewSecret("hunter2")
	require.NoError(t, err)
	require.NoError(t, rooms.CreateRoom(ctx, model.Room{
		ID:        "room-1",
		Name:      "general",
		CreatedBy: "alice",
		Secret:    secret,
		CreatedAt: time.Now().UTC(),
	}, []string{"bob"}))

	keys := roomcrypto.NewKeyCache(roomcrypto.NewKeyDeriver(roomcrypto.KDFParams{Time: 1, MemoryKiB: 64, Threads: 1}))
	svc := application.NewRoomService(rooms, sqlite.NewMessageRepo(db), keys, nil, nil, application.RoomServiceConfig{})
	ch := application.NewRoomChannel(svc, application.RoomChannelConfig{SelfAnnounce: true})
	verifier := auth.NewVerifier("test-secret")

	srv := httptest.NewServer(realtime.NewHandler(ch, verifier, cfg, slog.Default()))
	t.Cleanup(srv.Close)

	return &testStack{server: srv, service: svc, channel: ch, verifier: verifier}
}

func (s *testStack) dial(t *testing.T, username string) *websocket.Conn {
	t.Helper()
	token, err := s.verifier.Issue(username, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(s.server)+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, data map[string]string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, map[string]any{"event": event, "data": data}))
}

func readFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var f serverFrame
	require.NoError(t, wsjson.Read(ctx, conn, &f))
	return f
}

func TestWebSocket_BroadcastScenario(t *testing.T) {
	s := setupStack(t, realtime.Config{})
	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	sendFrame(t, alice, "join_room", map[string]string{"username": "alice", "room": "room-1"})
	f := readFrame(t, alice)
	assert.Equal(t, "join_room_announcement", f.Event)
	assert.Equal(t, map[string]string{"username": "alice", "room": "room-1"}, f.Data)

	sendFrame(t, bob, "join_room", map[string]string{"username": "bob", "room": "room-1"})
	assert.Equal(t, "bob", readFrame(t, alice).Data["username"])
	assert.Equal(t, "join_room_announcement", readFrame(t, bob).Event)

	sendFrame(t, alice, "send_message", map[string]string{"username": "alice", "room": "room-1", "message": "hi"})

	for _, conn := range []*websocket.Conn{alice, bob} {
		f := readFrame(t, conn)
		assert.Equal(t, "receive_message", f.Event)
		assert.Equal(t, "alice", f.Data["username"])
		assert.Equal(t, "room-1", f.Data["room"])
		assert.Equal(t, "hi", f.Data["message"])
		_, err := time.Parse(time.RFC3339, f.Data["created_at"])
		assert.NoError(t, err)
	}

	history, err := s.service.FetchHistory(context.Background(), "room-1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "alice", history[0].Sender)
	assert.Equal(t, "hi", history[0].Text)
}

func TestWebSocket_DisconnectLeavesRooms(t *testing.T) {
	s := setupStack(t, realtime.Config{})
	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	sendFrame(t, alice, "join_room", map[string]string{"room": "room-1"})
	readFrame(t, alice)
	sendFrame(t, bob, "join_room", map[string]string{"room": "room-1"})
	readFrame(t, alice)
	readFrame(t, bob)
	require.Equal(t, 2, s.channel.Subscribers("room-1"))

	require.NoError(t, bob.Close(websocket.StatusNormalClosure, "bye"))

	f := readFrame(t, alice)
	assert.Equal(t, "leave_room_announcement", f.Event)
	assert.Equal(t, "bob", f.Data["username"])
	assert.Eventually(t, func() bool { return s.channel.Subscribers("room-1") == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_LeaveRoom(t *testing.T) {
	s := setupStack(t, realtime.Config{})
	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")

	sendFrame(t, alice, "join_room", map[string]string{"room": "room-1"})
	readFrame(t, alice)
	sendFrame(t, bob, "join_room", map[string]string{"room": "room-1"})
	readFrame(t, alice)
	readFrame(t, bob)

	sendFrame(t, bob, "leave_room", map[string]string{"username": "bob", "room": "room-1"})
	f := readFrame(t, alice)
	assert.Equal(t, "leave_room_announcement", f.Event)
	assert.Equal(t, "bob", f.Data["username"])
}

func TestWebSocket_ErrorFrames(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		event   string
		data    map[string]string
		wantErr string
	}{
		{
			name:    "non-member join",
			user:    "mallory",
			event:   "join_room",
			data:    map[string]string{"room": "room-1"},
			wantErr: "room not found",
		},
		{
			name:    "non-member send",
			user:    "mallory",
			event:   "send_message",
			data:    map[string]string{"room": "room-1", "message": "hi"},
			wantErr: "room not found",
		},
		{
			name:    "unknown room",
			user:    "alice",
			event:   "join_room",
			data:    map[string]string{"room": "room-404"},
			wantErr: "room not found",
		},
		{
			name:    "impersonation",
			user:    "mallory",
			event:   "send_message",
			data:    map[string]string{"username": "alice", "room": "room-1", "message": "hi"},
			wantErr: "username does not match authenticated user",
		},
		{
			name:    "missing room",
			user:    "alice",
			event:   "join_room",
			data:    map[string]string{},
			wantErr: "room is required",
		},
		{
			name:    "empty message",
			user:    "alice",
			event:   "send_message",
			data:    map[string]string{"room": "room-1", "message": "   "},
			wantErr: "message is empty",
		},
		{
			name:    "unknown event",
			user:    "alice",
			event:   "shout",
			data:    map[string]string{"room": "room-1"},
			wantErr: "unknown event",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupStack(t, realtime.Config{})
			conn := s.dial(t, tt.user)

			sendFrame(t, conn, tt.event, tt.data)

			f := readFrame(t, conn)
			assert.Equal(t, "error", f.Event)
			assert.Equal(t, tt.wantErr, f.Data["error"])

			history, err := s.service.FetchHistory(context.Background(), "room-1", 0)
			require.NoError(t, err)
			assert.Empty(t, history)
		})
	}
}

func TestWebSocket_SanitizesMessages(t *testing.T) {
	s := setupStack(t, realtime.Config{Sanitize: true})
	alice := s.dial(t, "alice")

	sendFrame(t, alice, "join_room", map[string]string{"room": "room-1"})
	readFrame(t, alice)

	sendFrame(t, alice, "send_message", map[string]string{"room": "room-1", "message": "<script>x()</script><b>hello</b>"})
	f := readFrame(t, alice)
	assert.Equal(t, "receive_message", f.Event)
	assert.Equal(t, "hello", f.Data["message"])
}

func TestWebSocket_RequiresToken(t *testing.T) {
	s := setupStack(t, realtime.Config{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, url := range []string{wsURL(s.server), wsURL(s.server) + "?token=forged"} {
		_, resp, err := websocket.Dial(ctx, url, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}
