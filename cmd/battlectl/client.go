package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// apiError 服务端错误响应
type apiError struct {
	Status  int
	Message string `json:"error"`
	Code    int    `json:"code"`
	Kind    string `json:"kind"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s (%d, %s)", e.Message, e.Code, e.Kind)
}

// lobbyClient 大厅HTTP客户端
type lobbyClient struct {
	base  string
	token string
	http  *http.Client
}

func newLobbyClient(base, token string) *lobbyClient {
	return &lobbyClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: 10 * time.Second},
	}
}

// do 发送请求并把响应解到out，非2xx返回*apiError
func (c *lobbyClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

type sessionInfo struct {
	ID          string    `json:"session_id"`
	HostID      string    `json:"host_id"`
	GuestID     string    `json:"guest_id"`
	HostDeckID  string    `json:"host_deck_id"`
	GuestDeckID string    `json:"guest_deck_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

type cardInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Attack      int    `json:"attack"`
	Defense     int    `json:"defense"`
	ManaCost    int    `json:"mana_cost"`
	Type        string `json:"type"`
	Rarity      string `json:"rarity"`
}

func (c *lobbyClient) login(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	}, &out)
	return out.Token, err
}

func (c *lobbyClient) cards(ctx context.Context) ([]cardInfo, error) {
	var out struct {
		Cards []cardInfo `json:"cards"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/cards", nil, &out)
	return out.Cards, err
}

func (c *lobbyClient) waitingSessions(ctx context.Context) ([]sessionInfo, error) {
	var out struct {
		Sessions []sessionInfo `json:"sessions"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, &out)
	return out.Sessions, err
}

func (c *lobbyClient) createSession(ctx context.Context) (*sessionInfo, error) {
	var out struct {
		Session *sessionInfo `json:"session"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions", nil, &out)
	return out.Session, err
}

func (c *lobbyClient) sessionAction(ctx context.Context, id, action string, body interface{}) (*sessionInfo, error) {
	var out struct {
		Session *sessionInfo `json:"session"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+url.PathEscape(id)+"/"+action, body, &out)
	return out.Session, err
}

func (c *lobbyClient) battle(ctx context.Context, id string) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.do(ctx, http.MethodGet, "/api/v1/battles/"+url.PathEscape(id), nil, &out)
	return out, err
}

// dialBattle 建立对战WebSocket连接，令牌放在查询参数里
func (c *lobbyClient) dialBattle(ctx context.Context, path string) (*websocket.Conn, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = path
	if c.token != "" {
		u.RawQuery = url.Values{"token": {c.token}}.Encode()
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	return conn, err
}
