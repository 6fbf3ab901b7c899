package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dafibh/fortuna/lending-backend/internal/websocket"
	ws "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAllowedOrigins = []string{"http://localhost:3000", "https://ops.fortuna.app"}

func TestWebSocketHandler_HandleWS_UnknownContractType(t *testing.T) {
	e := echo.New()
	h := NewWebSocketHandler(websocket.NewHub(), testAllowedOrigins)

	req := httptest.NewRequest(http.MethodGet, "/internal/ws?contractType=mortgage", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h.HandleWS(c)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "contractType")
}

func TestWebSocketHandler_HandleWS_NoUpgrade(t *testing.T) {
	e := echo.New()
	h := NewWebSocketHandler(websocket.NewHub(), testAllowedOrigins)

	// Plain GET without upgrade headers
	req := httptest.NewRequest(http.MethodGet, "/internal/ws?contractType=pawn", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	// gorilla/websocket returns an error when upgrade fails (no upgrade headers)
	assert.Error(t, h.HandleWS(c))
}

func TestWebSocketHandler_CheckOrigin(t *testing.T) {
	h := NewWebSocketHandler(websocket.NewHub(), testAllowedOrigins)

	tests := []struct {
		name     string
		origin   string
		expected bool
	}{
		{"no origin header", "", true},
		{"allowed localhost", "http://localhost:3000", true},
		{"allowed ops console", "https://ops.fortuna.app", true},
		{"disallowed origin", "https://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/internal/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := h.checkOrigin(req); got != tt.expected {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.expected)
			}
		})
	}
}

func TestWebSocketHandler_StreamsContractEvents(t *testing.T) {
	hub := websocket.NewHub()
	defer hub.CloseAll()

	e := echo.New()
	h := NewWebSocketHandler(hub, testAllowedOrigins)
	e.GET("/internal/ws", h.HandleWS)

	server := httptest.NewServer(e)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/internal/ws?contractType=pawn"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.SubscriberCount("pawn") == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("bat_ho", websocket.ContractStatusChanged(map[string]string{"status": "LATE_PAYMENT"}))
	hub.Publish("pawn", websocket.ContractStatusChanged(map[string]string{"status": "BAD_DEBIT"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	// the installment event is filtered out, so the first message is the pawn one
	assert.Contains(t, string(msg), `"type":"contract.status_changed"`)
	assert.Contains(t, string(msg), "BAD_DEBIT")
}
