package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeTelegram(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	texts := []string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"alerts","username":"alerts_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			require.NoError(t, r.ParseForm())
			mu.Lock()
			texts = append(texts, r.FormValue("text"))
			mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":42,"type":"private"}}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &texts
}

func TestBotNotifierSendsToChat(t *testing.T) {
	srv, texts := fakeTelegram(t)

	n, err := NewBotNotifierWithClient("token", 42, srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	require.NoError(t, n.Notify(context.Background(), "new student submission"))
	assert.Equal(t, []string{"new student submission"}, *texts)
}

func TestBotNotifierRequiresCredentials(t *testing.T) {
	_, err := NewBotNotifierWithClient("", 42, "http://unused/bot%s/%s", http.DefaultClient)
	assert.Error(t, err)
	_, err = NewBotNotifierWithClient("token", 0, "http://unused/bot%s/%s", http.DefaultClient)
	assert.Error(t, err)
}

func TestBotNotifierHonoursCancelledContext(t *testing.T) {
	srv, texts := fakeTelegram(t)
	n, err := NewBotNotifierWithClient("token", 42, srv.URL+"/bot%s/%s", srv.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, "x"), context.Canceled)
	assert.Empty(t, *texts)
}

func TestIsSystemErr(t *testing.T) {
	assert.True(t, isSystemErr(errors.New("Too Many Requests: 429")))
	assert.True(t, isSystemErr(errors.New("i/o timeout")))
	assert.False(t, isSystemErr(errors.New("Bad Request: chat not found")))
	assert.False(t, isSystemErr(nil))
}

func TestNopNotifier(t *testing.T) {
	assert.NoError(t, NopNotifier{}.Notify(context.Background(), "x"))
}
