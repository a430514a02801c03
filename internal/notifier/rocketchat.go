package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/oncall-sre/oncall/internal/config"
	"github.com/oncall-sre/oncall/internal/oncallerr"
)

// rocketAuthRefresh is how long a login token is reused before
// re-authenticating.
const rocketAuthRefresh = 30 * 24 * time.Hour

// RocketChat posts messages to users' Rocket.Chat DMs. The destination is
// the user's rocketchat contact on file.
type RocketChat struct {
	apiHost  string
	user     string
	password string
	contacts ContactLookup
	client   *http.Client

	mu       sync.Mutex
	token    string
	userID   string
	lastAuth time.Time
}

func NewRocketChat(cfg config.MessengerConfig, contacts ContactLookup) *RocketChat {
	return &RocketChat{
		apiHost:  cfg.URL,
		user:     cfg.User,
		password: cfg.Password,
		contacts: contacts,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *RocketChat) Modes() []string {
	return []string{"rocketchat"}
}

func (r *RocketChat) Send(ctx context.Context, msg *Message) error {
	token, userID, err := r.auth(ctx)
	if err != nil {
		return err
	}
	dest, err := r.contacts.ContactByUserName(ctx, msg.User, "rocketchat")
	if err != nil {
		return err
	}

	payload := map[string]string{
		"channel": "@" + dest,
		"text":    msg.Subject + " -- " + msg.Body,
	}
	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	headers := map[string]string{
		"X-User-Id":    userID,
		"X-Auth-Token": token,
	}
	if err := r.post(ctx, "/api/v1/chat.postMessage", payload, headers, &result); err != nil {
		return err
	}
	if !result.Success {
		return oncallerr.New(oncallerr.Upstream, "rocketchat send failed: %s", result.Error)
	}
	return nil
}

// auth returns a valid token pair, logging in again once the cached one
// passes the refresh age.
func (r *RocketChat) auth(ctx context.Context) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token != "" && time.Since(r.lastAuth) < rocketAuthRefresh {
		return r.token, r.userID, nil
	}

	payload := map[string]string{"username": r.user, "password": r.password}
	var result struct {
		Status string `json:"status"`
		Data   struct {
			AuthToken string `json:"authToken"`
			UserID    string `json:"userId"`
		} `json:"data"`
	}
	if err := r.post(ctx, "/api/v1/login", payload, nil, &result); err != nil {
		return "", "", err
	}
	if result.Status != "success" {
		return "", "", oncallerr.New(oncallerr.Upstream, "invalid rocketchat credentials")
	}
	r.token = result.Data.AuthToken
	r.userID = result.Data.UserID
	r.lastAuth = time.Now()
	return r.token, r.userID, nil
}

func (r *RocketChat) post(ctx context.Context, path string, payload any, headers map[string]string, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiHost+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return oncallerr.Wrap(oncallerr.Upstream, err, "rocketchat request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return oncallerr.New(oncallerr.Upstream, "rocketchat returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
