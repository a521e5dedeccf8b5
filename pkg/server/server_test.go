package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelab/stagechat/pkg/config"
	"github.com/stagelab/stagechat/pkg/llm"
	"github.com/stagelab/stagechat/pkg/session"
)

const serverTestDecision = `{
	"next_agent": "Alice",
	"action_type": "message",
	"performer_instruction": {"objective": "chime in"},
	"reasoning": "test"
}`

func testServer(t *testing.T) *Server {
	t.Helper()
	sim := &config.Simulation{
		AgentNames:              []string{"Alice", "Bob"},
		SessionDurationMinutes:  15,
		MessagesPerMinute:       1,
		UserResponseProbability: 0,
		ContextWindowSize:       10,
		TypingDelayMaxSeconds:   0.5,
		RandomSeed:              1,
		AttentionDecay:          0.9,
		AddressBoost:            0.3,
		SpeakBoost:              0.6,
		WeightFloor:             0.05,
		Director:                config.RoleLLM{ConcurrencyLimit: 1},
		Performer:               config.RoleLLM{ConcurrencyLimit: 1},
	}
	experiment := &config.Experiment{
		ChatroomContext: "A test chatroom.",
		Groups: map[string]config.TreatmentGroup{
			"control": {Treatment: "neutral"},
			"news": {
				Treatment: "discuss the article",
				Scenario:  "news_article",
				Seed:      config.SeedContent{Headline: "Test headline"},
			},
		},
	}
	srv, err := New(Options{
		Sim:        sim,
		Experiment: experiment,
		Director:   llm.NewMockClient(serverTestDecision),
		Performer:  llm.NewMockClient("agent text"),
		Moderator:  llm.NewMockClient("agent text"),
		LogDir:     t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)
	return srv
}

func createSession(t *testing.T, ts *httptest.Server, group string) string {
	t.Helper()
	body, _ := json.Marshal(createSessionRequest{UserName: "participant", Group: group})
	resp, err := http.Post(ts.URL+"/api/sessions", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created createSessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.SessionID)
	return created.SessionID
}

func TestCreateAndListSessions(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	id := createSession(t, ts, "control")

	resp, err := http.Get(ts.URL + "/api/sessions")
	require.NoError(t, err)
	defer resp.Body.Close()
	var listed struct {
		Sessions []string `json:"sessions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listed))
	assert.Contains(t, listed.Sessions, id)
}

func TestCreateSessionValidation(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/sessions", "application/json",
		strings.NewReader(`{"user_name": ""}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/sessions", "application/json",
		strings.NewReader(`{"user_name": "p", "group": "nonexistent"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEndSession(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	id := createSession(t, ts, "control")

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/api/sessions/" + id)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func dialWS(t *testing.T, ts *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) session.OutboundEvent {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev session.OutboundEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestWebSocketEchoesUserMessage(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	id := createSession(t, ts, "control")
	conn := dialWS(t, ts, id)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(inboundCommand{Type: "user_message", Content: "hello room"}))

	ev := readEvent(t, conn)
	require.Equal(t, "message", ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "participant", ev.Message.Sender)
	assert.Equal(t, "hello room", ev.Message.Content)
}

func TestWebSocketRejectsUnknownCommand(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	id := createSession(t, ts, "control")
	conn := dialWS(t, ts, id)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(inboundCommand{Type: "teleport"}))
	ev := readEvent(t, conn)
	assert.Equal(t, "error", ev.Type)
}

func TestWebSocketRequiresKnownSession(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?session_id=unknown"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocketReplayOnReattach(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	id := createSession(t, ts, "news")

	// The news scenario seeds an article before any client attaches;
	// attaching must replay it.
	conn := dialWS(t, ts, id)
	defer conn.Close()

	ev := readEvent(t, conn)
	require.Equal(t, "message", ev.Type)
	require.NotNil(t, ev.Message)
	assert.Equal(t, "[news]", ev.Message.Sender)
	assert.Contains(t, ev.Message.Content, "Test headline")
}

func TestWebSocketLikeFlow(t *testing.T) {
	ts := httptest.NewServer(testServer(t).Handler())
	defer ts.Close()

	id := createSession(t, ts, "control")
	conn := dialWS(t, ts, id)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(inboundCommand{Type: "user_message", Content: "like me"}))
	posted := readEvent(t, conn)
	require.Equal(t, "message", posted.Type)

	require.NoError(t, conn.WriteJSON(inboundCommand{Type: "toggle_like", MessageID: posted.Message.MessageID}))
	update := readEvent(t, conn)
	require.Equal(t, "like_update", update.Type)
	assert.Equal(t, "liked", update.Data["verb"])
	assert.Equal(t, posted.Message.MessageID, update.Data["message_id"])
}
