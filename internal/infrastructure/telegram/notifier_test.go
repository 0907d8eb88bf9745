package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type botServer struct {
	*httptest.Server
	mu   sync.Mutex
	sent []url.Values
}

func newBotServer(t *testing.T, sendOK bool) *botServer {
	t.Helper()
	b := &botServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/botTOKEN/getMe", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":7,"is_bot":true,"first_name":"pipeline","username":"pipeline_bot"}}`))
	})
	mux.HandleFunc("/botTOKEN/sendMessage", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		b.mu.Lock()
		b.sent = append(b.sent, r.PostForm)
		b.mu.Unlock()
		if !sendOK {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func (b *botServer) endpoint() string {
	return b.URL + "/bot%s/%s"
}

func TestPublishDigest(t *testing.T) {
	t.Parallel()

	srv := newBotServer(t, true)
	n, err := NewNotifier("TOKEN", "42", srv.endpoint(), srv.Client())
	require.NoError(t, err)

	require.NoError(t, n.PublishDigest(context.Background(), "Decode run completed for owner-1"))

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.sent, 1)
	assert.Equal(t, "42", srv.sent[0].Get("chat_id"))
	assert.Equal(t, "Decode run completed for owner-1", srv.sent[0].Get("text"))
}

func TestPublishDigestReportsAPIErrors(t *testing.T) {
	t.Parallel()

	srv := newBotServer(t, false)
	n, err := NewNotifier("TOKEN", "42", srv.endpoint(), srv.Client())
	require.NoError(t, err)

	err = n.PublishDigest(context.Background(), "report")
	assert.ErrorContains(t, err, "chat not found")
}

func TestNewNotifierValidation(t *testing.T) {
	t.Parallel()

	_, err := NewNotifier("", "42", "", nil)
	assert.Error(t, err)

	_, err = NewNotifier("TOKEN", "not-a-number", "", nil)
	assert.Error(t, err)

	srv := newBotServer(t, true)
	_, err = NewNotifier("WRONG", "42", srv.endpoint(), srv.Client())
	assert.Error(t, err, "getMe must succeed")
}

func TestPublishDigestCancelled(t *testing.T) {
	t.Parallel()

	srv := newBotServer(t, true)
	n, err := NewNotifier("TOKEN", "42", srv.endpoint(), srv.Client())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.PublishDigest(ctx, "report"), context.Canceled)
}
