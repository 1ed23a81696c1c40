package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-builders/giveaway-engine/internal/common/config"
	apperrors "github.com/open-builders/giveaway-engine/internal/common/errors"
)

type apiCall struct {
	method string
	form   map[string]string
}

// fakeAPI answers every Bot API method with a canned body.
type fakeAPI struct {
	mu      sync.Mutex
	calls   []apiCall
	replies map[string]string
	status  map[string]int
}

func newTestClient(t *testing.T, replies map[string]string, status map[string]int) (*Client, *fakeAPI) {
	t.Helper()
	api := &fakeAPI{replies: replies, status: status}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		assert.True(t, strings.HasPrefix(r.URL.Path, "/bot123:secret/"))

		form := make(map[string]string)
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		api.mu.Lock()
		api.calls = append(api.calls, apiCall{method: method, form: form})
		api.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if code, ok := api.status[method]; ok {
			w.WriteHeader(code)
		}
		body, ok := api.replies[method]
		if !ok {
			body = `{"ok":true,"result":true}`
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := NewClient(config.TelegramConfig{
		BotToken:          "123:secret",
		APIBaseURL:        srv.URL,
		RequestsPerSecond: 1000,
		Burst:             10,
	})
	return c, api
}

func (a *fakeAPI) last() apiCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[len(a.calls)-1]
}

func TestClient_PublishPost(t *testing.T) {
	c, api := newTestClient(t, map[string]string{
		"sendMessage": `{"ok":true,"result":{"message_id":42,"chat":{"id":-1001}}}`,
	}, nil)

	id, err := c.PublishPost(context.Background(), -1001, "hello")
	require.NoError(t, err)
	assert.Equal(t, "-1001:42", id)

	call := api.last()
	assert.Equal(t, "sendMessage", call.method)
	assert.Equal(t, "-1001", call.form["chat_id"])
	assert.Equal(t, "hello", call.form["text"])
}

func TestClient_EditPost(t *testing.T) {
	c, api := newTestClient(t, map[string]string{
		"editMessageText": `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`,
	}, map[string]int{"editMessageText": http.StatusBadRequest})

	require.NoError(t, c.EditPost(context.Background(), "-1001:42", "same"))
	call := api.last()
	assert.Equal(t, "-1001", call.form["chat_id"])
	assert.Equal(t, "42", call.form["message_id"])
}

func TestClient_RetrievePost(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		status  int
		exists  bool
		errCode apperrors.ErrorCode
	}{
		{name: "edited", reply: `{"ok":true,"result":true}`, status: http.StatusOK, exists: true},
		{name: "not modified", reply: `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`, status: http.StatusBadRequest, exists: true},
		{name: "missing", reply: `{"ok":false,"error_code":400,"description":"Bad Request: message to edit not found"}`, status: http.StatusBadRequest, exists: false},
		{name: "throttled", reply: `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 5","parameters":{"retry_after":5}}`, status: http.StatusTooManyRequests, errCode: apperrors.ErrCodeRateLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t,
				map[string]string{"editMessageReplyMarkup": tt.reply},
				map[string]int{"editMessageReplyMarkup": tt.status})

			exists, err := c.RetrievePost(context.Background(), "-1001:42")
			if tt.errCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.errCode, apperrors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.exists, exists)
		})
	}
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name  string
		call  func(c *Client) error
		reply string
		code  apperrors.ErrorCode
	}{
		{
			name:  "delete missing",
			call:  func(c *Client) error { return c.DeletePost(context.Background(), "-1001:42") },
			reply: `{"ok":false,"error_code":400,"description":"Bad Request: message to delete not found"}`,
			code:  apperrors.ErrCodeNotFound,
		},
		{
			name:  "invalid reaction",
			call:  func(c *Client) error { return c.AddEntryAffordance(context.Background(), "-1001:42", "🦄") },
			reply: `{"ok":false,"error_code":400,"description":"Bad Request: REACTION_INVALID"}`,
			code:  apperrors.ErrCodeUnknownEntryAffordance,
		},
		{
			name:  "forbidden",
			call:  func(c *Client) error { _, err := c.PublishPost(context.Background(), -1001, "x"); return err },
			reply: `{"ok":false,"error_code":403,"description":"Forbidden: bot is not a member of the channel chat"}`,
			code:  apperrors.ErrCodePermissionDenied,
		},
		{
			name:  "other",
			call:  func(c *Client) error { return c.EditPost(context.Background(), "-1001:42", "x") },
			reply: `{"ok":false,"error_code":500,"description":"Internal Server Error"}`,
			code:  apperrors.ErrCodePlatform,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, map[string]string{
				"deleteMessage":      tt.reply,
				"setMessageReaction": tt.reply,
				"sendMessage":        tt.reply,
				"editMessageText":    tt.reply,
			}, nil)

			err := tt.call(c)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

func TestClient_AddEntryAffordanceEncodesReaction(t *testing.T) {
	c, api := newTestClient(t, nil, nil)

	require.NoError(t, c.AddEntryAffordance(context.Background(), "-1001:42", "🎉"))
	call := api.last()
	assert.Equal(t, "setMessageReaction", call.method)
	assert.JSONEq(t, `[{"type":"emoji","emoji":"🎉"}]`, call.form["reaction"])
}

func TestClient_CheckPermissions(t *testing.T) {
	tests := []struct {
		name   string
		member string
		ok     bool
	}{
		{name: "creator", member: `{"status":"creator"}`, ok: true},
		{name: "admin", member: `{"status":"administrator","can_post_messages":true,"can_edit_messages":true}`, ok: true},
		{name: "group admin", member: `{"status":"administrator"}`, ok: true},
		{name: "admin without post right", member: `{"status":"administrator","can_post_messages":false,"can_edit_messages":true}`, ok: false},
		{name: "member", member: `{"status":"member"}`, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, api := newTestClient(t, map[string]string{
				"getChatMember": `{"ok":true,"result":` + tt.member + `}`,
			}, nil)

			err := c.CheckPermissions(context.Background(), -1001)
			assert.Equal(t, "123", api.last().form["user_id"])
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, apperrors.ErrCodePermissionDenied, apperrors.CodeOf(err))
		})
	}
}

func TestClient_MalformedPostID(t *testing.T) {
	c, api := newTestClient(t, nil, nil)
	ctx := context.Background()

	for _, id := range []string{"", "42", "abc:1", "-1001:", ":42"} {
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(c.DeletePost(ctx, id)), id)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(c.EditPost(ctx, id, "text")), id)
		assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.CodeOf(c.AddEntryAffordance(ctx, id, "🎉")), id)

		// such a post can never exist, so expiry deletes the giveaway instead of retrying
		exists, err := c.RetrievePost(ctx, id)
		require.NoError(t, err, id)
		assert.False(t, exists, id)
	}
	assert.Empty(t, api.calls)
}

type fakePinger struct {
	mu    sync.Mutex
	delay time.Duration
	err   error
	calls int
}

func (p *fakePinger) Ping(context.Context) (time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.delay, p.err
}

func (p *fakePinger) set(delay time.Duration, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay, p.err = delay, err
}

func (p *fakePinger) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestLatencyMonitor_Probe(t *testing.T) {
	p := &fakePinger{delay: 100 * time.Millisecond}
	m := NewLatencyMonitor(p, time.Minute, 5*time.Second)
	assert.True(t, m.Usable())

	m.Probe(context.Background())
	assert.True(t, m.Usable())
	assert.Equal(t, 100*time.Millisecond, m.Latency())

	p.set(6*time.Second, nil)
	m.Probe(context.Background())
	assert.False(t, m.Usable())

	p.set(time.Second, nil)
	m.Probe(context.Background())
	assert.True(t, m.Usable())

	p.set(0, errors.New("unreachable"))
	m.Probe(context.Background())
	assert.False(t, m.Usable())
}

func TestLatencyMonitor_StartStop(t *testing.T) {
	p := &fakePinger{delay: time.Millisecond}
	m := NewLatencyMonitor(p, time.Second, time.Second)

	m.Start(context.Background())
	m.Start(context.Background())
	require.Eventually(t, func() bool { return p.count() >= 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return p.count() >= 2 }, 3*time.Second, 20*time.Millisecond)
	m.Stop()

	n := p.count()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, n, p.count())
	m.Stop()
}

func TestClient_Ping(t *testing.T) {
	c, api := newTestClient(t, map[string]string{"getMe": `{"ok":true,"result":{"id":123}}`}, nil)

	d, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Positive(t, d)
	assert.Equal(t, "getMe", api.last().method)
}
