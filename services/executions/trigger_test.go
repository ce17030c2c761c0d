package executions

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPTrigger_Start(t *testing.T) {
	var gotPath, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotMethod = r.Method
		_, _ = w.Write([]byte(`{"message":"started"}`))
	}))
	defer srv.Close()

	trigger, err := NewHTTPTrigger(srv.URL+"/executor/", srv.Client())
	require.NoError(t, err)

	require.NoError(t, trigger.Start(context.Background(), "chat-7"))
	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "/executor/run-tests-background/chat-7", gotPath)
}

func TestHTTPTrigger_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	trigger, err := NewHTTPTrigger(srv.URL, nil)
	require.NoError(t, err)

	err = trigger.Start(context.Background(), "chat-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestHTTPTrigger_Validation(t *testing.T) {
	for _, raw := range []string{"", "executor:8000", "ftp://executor", "http://"} {
		_, err := NewHTTPTrigger(raw, nil)
		assert.Error(t, err, raw)
	}

	trigger, err := NewHTTPTrigger("http://executor.test", nil)
	require.NoError(t, err)
	assert.Error(t, trigger.Start(context.Background(), ""))
}

func TestNopTrigger(t *testing.T) {
	assert.NoError(t, NopTrigger{}.Start(context.Background(), "chat"))
}
