package serve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/chirino/cryptochat-server/internal/config"
	"github.com/stretchr/testify/require"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Listener.Port = 0
	cfg.DBPath = filepath.Join(t.TempDir(), "chat_db.json")
	cfg.Version = "test"

	srv, err := StartServer(context.Background(), &cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, fmt.Sprintf("http://127.0.0.1:%d", srv.Port)
}

func postJSON(t *testing.T, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func getJSON(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestServerChatFlow(t *testing.T) {
	_, base := startTestServer(t)

	resp, _ := postJSON(t, base+"/api/users", map[string]any{"user_id": 100, "public_key": "pk-alice"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = postJSON(t, base+"/api/users", map[string]any{"user_id": 200, "public_key": "pk-bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, chat := postJSON(t, base+"/api/chats", map[string]any{
		"users":                          []int64{100, 200},
		"sym_key_enc_by_owners_pub_keys": []string{"key-for-alice", "key-for-bob"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.EqualValues(t, 1, chat["chat_id"])

	resp, msg := postJSON(t, base+"/api/message/new", map[string]any{
		"chat_id": 1, "sender_id": 100, "message": "encrypted-blob",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Greater(t, msg["timestamp"].(float64), 0.0)

	resp, updates := postJSON(t, base+"/api/message/updates", map[string]any{
		"chat_id": 1, "cursor": -1,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	messages := updates["messages"].([]any)
	require.Len(t, messages, 1)
	require.Equal(t, "encrypted-blob", messages[0].(map[string]any)["message"])
}

func TestServerErrorMapping(t *testing.T) {
	_, base := startTestServer(t)

	// Unknown user lookup
	resp, body := getJSON(t, base+"/api/users/999")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "not_found", body["code"])

	// Chat referencing users that were never registered
	resp, body = postJSON(t, base+"/api/chats", map[string]any{
		"users":                          []int64{8, 9},
		"sym_key_enc_by_owners_pub_keys": []string{"a", "b"},
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "unknown_reference", body["code"])

	// Missing required fields
	resp, body = postJSON(t, base+"/api/users", map[string]any{"user_id": 1})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "validation_error", body["code"])

	// Duplicate registration
	resp, _ = postJSON(t, base+"/api/users", map[string]any{"user_id": 5, "public_key": "pk"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body = postJSON(t, base+"/api/users", map[string]any{"user_id": 5, "public_key": "pk"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "conflict", body["code"])
}

func TestServerManagementOnMainPort(t *testing.T) {
	_, base := startTestServer(t)

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(base + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, banner := getJSON(t, base+"/")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "cryptochat-server", banner["service"])
	require.Equal(t, "test", banner["version"])
}

func TestServerContacts(t *testing.T) {
	_, base := startTestServer(t)

	postJSON(t, base+"/api/users", map[string]any{"user_id": 1, "public_key": "pk1"})
	postJSON(t, base+"/api/users", map[string]any{"user_id": 2, "public_key": "pk2"})

	resp, _ := postJSON(t, base+"/api/contacts", map[string]any{
		"owner_id": 1, "user_id": 2, "alias": "bob",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := getJSON(t, base+"/api/contacts/1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["contacts"], 1)
}
