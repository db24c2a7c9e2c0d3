package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/roadwatch/internal/auth"
	"github.com/roadwatch/roadwatch/internal/realtime"
)

func decodeJSON(t *testing.T, recorder *httptest.ResponseRecorder, dest any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), dest))
}

type confirmedFrame struct {
	Event string                       `json:"event"`
	Data  realtime.ConnectionConfirmed `json:"data"`
}

func dialStream(t *testing.T, gateway *realtime.Gateway, token string) confirmedFrame {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/ws", NewRealtimeHandler(gateway).Stream)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	target := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if token != "" {
		target += "?token=" + url.QueryEscape(token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame confirmedFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestRealtimeHandlerWithoutGateway(t *testing.T) {
	gin.SetMode(gin.TestMode)

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(http.MethodGet, "/ws", nil)
	NewRealtimeHandler(nil).Stream(c)

	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestRealtimeHandlerAssignsRoomsFromToken(t *testing.T) {
	tokens, err := auth.NewJWTService(auth.JWTConfig{Secret: "stream-secret", AccessTokenTTL: time.Hour})
	require.NoError(t, err)
	token, err := tokens.GenerateAccessToken(auth.AccessTokenInput{UserID: "citizen-7", Role: "Citizen"})
	require.NoError(t, err)

	gateway := realtime.NewGateway(realtime.WithTokenVerifier(tokens))
	t.Cleanup(gateway.Close)

	cases := []struct {
		name  string
		token string
		want  realtime.ConnectionConfirmed
	}{
		{
			name:  "signed token",
			token: token,
			want: realtime.ConnectionConfirmed{
				UserID: "citizen-7",
				Role:   "citizen",
				Rooms:  []string{"user_citizen-7", "citizen_room", realtime.RoomAllUsers},
			},
		},
		{name: "no token", want: realtime.ConnectionConfirmed{Rooms: []string{}}},
		{name: "forged token", token: token + "x", want: realtime.ConnectionConfirmed{Rooms: []string{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame := dialStream(t, gateway, tc.token)
			require.Equal(t, realtime.EventConnectionConfirmed, frame.Event)
			require.NotEmpty(t, frame.Data.ConnectionID)

			frame.Data.ConnectionID = ""
			require.Equal(t, tc.want, frame.Data)
		})
	}
}
