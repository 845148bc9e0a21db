package backend

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient spins up a fake API and a client pointed at it.
func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return New(ts.URL)
}

func TestSendMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages/", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req sendMessageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Sender)
		assert.Equal(t, "bob", req.Receiver)
		assert.Equal(t, "hello", req.Message)
		assert.Equal(t, int64(7), req.ResponseID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int64{"message_id": 42})
	})

	id, err := client.SendMessage("alice", "bob", "hello", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}

func TestSendMessageServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := client.SendMessage("alice", "bob", "hello", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestSendMessageMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	})

	_, err := client.SendMessage("alice", "bob", "hello", 0)
	require.Error(t, err)
}

func TestUpdateReactionCount(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/messages/42/reaction/", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("new_reaction_nb"))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.UpdateReactionCount(42, 3))
}

func TestUpdateReactionCountFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	})

	err := client.UpdateReactionCount(42, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")
}

func TestUpdateReadStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/messages/readed/", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("sender"))
		assert.Equal(t, "bob", r.URL.Query().Get("receiver"))
		assert.Equal(t, "true", r.URL.Query().Get("is_readed"))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.UpdateReadStatus("alice", "bob", true))
}

func TestLogin(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/user/alice", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("password"))

		json.NewEncoder(w).Encode(map[string]bool{"is_connected": true})
	})

	connected, err := client.Login("alice", "secret")
	require.NoError(t, err)
	assert.True(t, connected)
}

func TestLoginRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	})

	_, err := client.Login("alice", "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestSetConnectedStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/user/alice/", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("is_connected"))
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.SetConnectedStatus("alice", false))
}

func TestRegister(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/register", r.URL.Path)

		var req registerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "carol", req.Username)
		assert.Equal(t, "hunter2", req.Password)
		w.WriteHeader(http.StatusOK)
	})

	require.NoError(t, client.Register("carol", "hunter2"))
}

func TestUserIconRoundTrip(t *testing.T) {
	icon := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			assert.Equal(t, "/user/alice", r.URL.Path)

			file, _, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()

			uploaded, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, icon, uploaded)
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			assert.Equal(t, "/user/alice/picture", r.URL.Path)
			w.Write(icon)
		default:
			t.Fatalf("Unexpected method %s", r.Method)
		}
	})

	require.NoError(t, client.SendUserIcon("alice", icon))

	downloaded, err := client.GetUserIcon("alice")
	require.NoError(t, err)
	assert.Equal(t, icon, downloaded)
}

func TestListUsernames(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/username", r.URL.Path)
		json.NewEncoder(w).Encode([]string{"alice", "bob"})
	})

	usernames, err := client.ListUsernames()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, usernames)
}

func TestOlderMessages(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages/", r.URL.Path)
		json.NewEncoder(w).Encode([]StoredMessage{
			{MessageID: 1, Sender: "alice", Receiver: "home", Message: "hi", ReactionNb: 2},
			{MessageID: 2, Sender: "bob", Receiver: "alice", Message: "yo", ResponseID: 1},
		})
	})

	messages, err := client.OlderMessages()
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, int64(1), messages[0].MessageID)
	assert.Equal(t, "home", messages[0].Receiver)
	assert.Equal(t, int64(1), messages[1].ResponseID)
}

func TestTimeout(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	client.SetTimeout(20 * time.Millisecond)

	err := client.UpdateReactionCount(1, 1)
	require.Error(t, err)
}

func TestBaseURLTrimsTrailingSlash(t *testing.T) {
	client := New("http://127.0.0.1:8000/")
	assert.Equal(t, "http://127.0.0.1:8000", client.BaseURL())
}
