// Package backend is a synchronous client for the persistence API that the
// relay mirrors messages into. Every call blocks for at most the configured
// timeout and returns an error on any non-2xx response; the relay treats all
// of these failures as non-fatal.
package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds every API round trip.
const DefaultTimeout = 10 * time.Second

// Client talks to the persistence API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the API rooted at baseURL,
// e.g. "http://127.0.0.1:8000".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// SetTimeout overrides the per-request timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.http.Timeout = timeout
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type sendMessageRequest struct {
	Sender     string `json:"sender"`
	Receiver   string `json:"receiver"`
	Message    string `json:"message"`
	ResponseID int64  `json:"response_id"`
}

type sendMessageResponse struct {
	MessageID int64 `json:"message_id"`
}

// SendMessage stores one message and returns the id the API assigned to it.
func (c *Client) SendMessage(sender, receiver, text string, responseID int64) (int64, error) {
	body, err := json.Marshal(sendMessageRequest{
		Sender:     sender,
		Receiver:   receiver,
		Message:    text,
		ResponseID: responseID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to encode message: %w", err)
	}

	resp, err := c.do(http.MethodPost, "/messages/", nil, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	var out sendMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("failed to parse message response: %w", err)
	}
	return out.MessageID, nil
}

// UpdateReactionCount sets the reaction counter of a stored message.
func (c *Client) UpdateReactionCount(messageID, reactionCount int64) error {
	query := url.Values{}
	query.Set("new_reaction_nb", strconv.FormatInt(reactionCount, 10))

	path := fmt.Sprintf("/messages/%d/reaction/", messageID)
	resp, err := c.do(http.MethodPatch, path, query, "", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// UpdateReadStatus marks the conversation between sender and receiver as
// read or unread.
func (c *Client) UpdateReadStatus(sender, receiver string, isRead bool) error {
	query := url.Values{}
	query.Set("sender", sender)
	query.Set("receiver", receiver)
	query.Set("is_readed", strconv.FormatBool(isRead))

	resp, err := c.do(http.MethodPatch, "/messages/readed/", query, "", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

type loginResponse struct {
	IsConnected bool `json:"is_connected"`
}

// Login checks the credentials of username and reports whether that account
// is already marked connected elsewhere.
func (c *Client) Login(username, password string) (bool, error) {
	query := url.Values{}
	query.Set("password", password)

	resp, err := c.do(http.MethodGet, "/user/"+url.PathEscape(username), query, "", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("failed to parse login response: %w", err)
	}
	return out.IsConnected, nil
}

// SetConnectedStatus flips the presence flag the API keeps per account.
func (c *Client) SetConnectedStatus(username string, connected bool) error {
	query := url.Values{}
	query.Set("is_connected", strconv.FormatBool(connected))

	resp, err := c.do(http.MethodPatch, "/user/"+url.PathEscape(username)+"/", query, "", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a new account.
func (c *Client) Register(username, password string) error {
	body, err := json.Marshal(registerRequest{Username: username, Password: password})
	if err != nil {
		return fmt.Errorf("failed to encode registration: %w", err)
	}

	resp, err := c.do(http.MethodPost, "/register", nil, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// SendUserIcon uploads the avatar of username as a multipart form.
func (c *Client) SendUserIcon(username string, icon []byte) error {
	body := new(bytes.Buffer)
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", "icon")
	if err != nil {
		return fmt.Errorf("failed to build icon form: %w", err)
	}
	if _, err := part.Write(icon); err != nil {
		return fmt.Errorf("failed to build icon form: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("failed to build icon form: %w", err)
	}

	resp, err := c.do(http.MethodPut, "/user/"+url.PathEscape(username), nil, form.FormDataContentType(), body)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// GetUserIcon downloads the avatar of username.
func (c *Client) GetUserIcon(username string) ([]byte, error) {
	resp, err := c.do(http.MethodGet, "/user/"+url.PathEscape(username)+"/picture", nil, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	icon, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read icon: %w", err)
	}
	return icon, nil
}

// ListUsernames returns every account name the API knows.
func (c *Client) ListUsernames() ([]string, error) {
	resp, err := c.do(http.MethodGet, "/users/username", nil, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var usernames []string
	if err := json.NewDecoder(resp.Body).Decode(&usernames); err != nil {
		return nil, fmt.Errorf("failed to parse username list: %w", err)
	}
	return usernames, nil
}

// StoredMessage is one message record returned by the history endpoint.
type StoredMessage struct {
	MessageID  int64  `json:"message_id"`
	Sender     string `json:"sender"`
	Receiver   string `json:"receiver"`
	Message    string `json:"message"`
	ResponseID int64  `json:"response_id"`
	ReactionNb int64  `json:"reaction_nb"`
	IsReaded   bool   `json:"is_readed"`
	CreatedAt  string `json:"created_at"`
}

// OlderMessages returns the stored message history.
func (c *Client) OlderMessages() ([]StoredMessage, error) {
	resp, err := c.do(http.MethodGet, "/messages/", nil, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var messages []StoredMessage
	if err := json.NewDecoder(resp.Body).Decode(&messages); err != nil {
		return nil, fmt.Errorf("failed to parse message history: %w", err)
	}
	return messages, nil
}

// do runs one request against the API and fails on any non-2xx status. The
// caller owns the response body.
func (c *Client) do(method, path string, query url.Values, contentType string, body io.Reader) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequest(method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s %s: %w", method, path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s returned status %d", method, path, resp.StatusCode)
	}
	return resp, nil
}
