package channels

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/smallnest/hookrelay/types"
)

// rewriteTransport 把发往 discord.com 的请求转到测试服务器
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	req.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

// fakeDiscord 模拟 Discord REST API 的最小子集
type fakeDiscord struct {
	mu       sync.Mutex
	requests []string
	bodies   map[string]string
	after    []string
	messages func(after string) []map[string]interface{}
}

func (f *fakeDiscord) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		path := r.URL.Path

		f.mu.Lock()
		f.requests = append(f.requests, r.Method+" "+path)
		f.bodies[r.Method+" "+path] = string(body)
		messages := f.messages
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(path, "/users/@me/channels"):
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "555", "type": 1})
		case r.Method == http.MethodPost && strings.HasSuffix(path, "/channels/555/messages"):
			var payload map[string]interface{}
			_ = json.Unmarshal(body, &payload)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "1000", "channel_id": "555", "content": payload["content"]})
		case r.Method == http.MethodGet && strings.HasSuffix(path, "/channels/555/messages"):
			after := r.URL.Query().Get("after")
			f.mu.Lock()
			f.after = append(f.after, after)
			f.mu.Unlock()
			result := []map[string]interface{}{}
			if messages != nil {
				result = messages(after)
			}
			_ = json.NewEncoder(w).Encode(result)
		case r.Method == http.MethodPut && strings.Contains(path, "/reactions/"):
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodPatch && strings.HasSuffix(path, "/channels/555/messages/1000"):
			var payload map[string]interface{}
			_ = json.Unmarshal(body, &payload)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"id": "1000", "channel_id": "555", "content": payload["content"]})
		default:
			t.Errorf("unexpected request %s %s", r.Method, path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func (f *fakeDiscord) has(prefix string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			return true
		}
	}
	return false
}

func (f *fakeDiscord) body(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[key]
}

func newTestDiscord(t *testing.T, f *fakeDiscord) *DiscordChannel {
	t.Helper()
	f.bodies = make(map[string]string)
	server := httptest.NewServer(f.handler(t))
	t.Cleanup(server.Close)
	target, _ := url.Parse(server.URL)

	ch, err := NewDiscordChannel(DiscordConfig{
		BaseChannelConfig: BaseChannelConfig{PollInterval: 5 * time.Millisecond},
		Token:             "discord-token",
		UserID:            "42",
	})
	if err != nil {
		t.Fatalf("new discord channel: %v", err)
	}
	ch.session.Client = &http.Client{Transport: rewriteTransport{target: target}}
	return ch
}

func TestDiscordSendPromptTextReply(t *testing.T) {
	f := &fakeDiscord{}
	ch := newTestDiscord(t, f)
	req := types.NewPermissionRequest("Edit", json.RawMessage(`{"file_path":"/a.go","old_string":"a","new_string":"b"}`), "devbox")

	f.messages = func(after string) []map[string]interface{} {
		return []map[string]interface{}{
			{"id": "1002", "channel_id": "555", "content": "deny " + req.RequestID, "author": map[string]interface{}{"id": "42", "bot": false}},
			{"id": "1001", "channel_id": "555", "content": "ALLOW " + req.RequestID, "author": map[string]interface{}{"id": "7", "bot": true}},
		}
	}

	d, err := ch.SendPrompt(context.Background(), req, time.Second)
	if err != nil || d != types.DecisionDeny {
		t.Fatalf("expected deny from the user, got %v (%v)", d, err)
	}

	if !strings.Contains(f.body("POST /api/v9/users/@me/channels"), `"recipient_id":"42"`) {
		t.Fatalf("expected DM with user 42")
	}
	if !strings.Contains(f.body("POST /api/v9/channels/555/messages"), "ALWAYS "+req.RequestID) {
		t.Fatalf("prompt should include reply instructions")
	}
	f.mu.Lock()
	firstAfter := f.after[0]
	f.mu.Unlock()
	if firstAfter != "1000" {
		t.Fatalf("poll should start after the prompt, got %q", firstAfter)
	}
	if !f.has("PUT /api/v9/channels/555/messages/1002/reactions/") {
		t.Fatalf("expected reaction on the decision message, requests: %v", f.requests)
	}
	if edit := f.body("PATCH /api/v9/channels/555/messages/1000"); !strings.Contains(edit, "❌ Denied") {
		t.Fatalf("unexpected final edit %s", edit)
	}
}

func TestDiscordPollerOrdersBySnowflake(t *testing.T) {
	f := &fakeDiscord{}
	ch := newTestDiscord(t, f)
	f.messages = func(after string) []map[string]interface{} {
		if after != "100" {
			return nil
		}
		return []map[string]interface{}{
			{"id": "1000000000000000002", "content": "b"},
			{"id": "999", "content": "a"},
		}
	}

	p := &discordPoller{session: ch.session, channelID: "555", after: "100"}
	replies, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(replies) != 2 || replies[0].Content != "a" || replies[1].Content != "b" {
		t.Fatalf("expected numeric snowflake order, got %+v", replies)
	}
	if p.after != "1000000000000000002" {
		t.Fatalf("cursor should be highest snowflake, got %s", p.after)
	}
}

func TestClampDiscord(t *testing.T) {
	long := strings.Repeat("x", discordMaxRunes+10)
	got := clampDiscord(long)
	if len([]rune(got)) != discordMaxRunes || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected clamp to %d runes, got %d", discordMaxRunes, len([]rune(got)))
	}
	if clampDiscord("short") != "short" {
		t.Fatalf("short text should be unchanged")
	}
}
