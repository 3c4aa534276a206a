package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"ppsplan/pkg/contract"
)

func server(t *testing.T, status int, body string, seen *http.Header) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seen != nil {
			*seen = r.Header.Clone()
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// TestGenerateOK 正常返回并携带额外请求头
func TestGenerateOK(t *testing.T) {
	var h http.Header
	srv := server(t, 200, `{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"\"Sasaran\""},"finish_reason":"stop"}]}`, &h)
	c, err := New(&Options{BaseURL: srv.URL, APIKey: "k", ExtraHeaders: map[string]string{"X-Title": "ppsplan"}})
	require.NoError(t, err)
	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, `"Sasaran"`, out)
	require.Equal(t, "ppsplan", h.Get("X-Title"))
	require.Equal(t, "Bearer k", h.Get("Authorization"))
}

// TestGenerateErrors 错误分类
func TestGenerateErrors(t *testing.T) {
	errBody := `{"error":{"message":"boom","type":"x","code":"y"}}`
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{429, func(e error) bool { return errors.Is(e, contract.ErrRateLimited) }},
		{401, func(e error) bool { return errors.Is(e, contract.ErrCredentialInvalid) }},
		{500, func(e error) bool {
			var he *contract.HTTPError
			return errors.As(e, &he) && he.Status == 500
		}},
	}
	for _, tc := range cases {
		srv := server(t, tc.status, errBody, nil)
		c, _ := New(&Options{BaseURL: srv.URL, APIKey: "k"})
		_, err := c.Generate(context.Background(), "p")
		require.Truef(t, tc.check(err), "status %d 分类错误: %v", tc.status, err)
	}

	srv := server(t, 200, `{"choices":[]}`, nil)
	c, _ := New(&Options{BaseURL: srv.URL, APIKey: "k"})
	_, err := c.Generate(context.Background(), "p")
	require.ErrorIs(t, err, contract.ErrResponseInvalid)
}

// TestMissingKey 无密钥
func TestMissingKey(t *testing.T) {
	t.Setenv("PPSPLAN_TEST_NO_KEY", "")
	c, _ := New(&Options{APIKeyEnv: "PPSPLAN_TEST_NO_KEY"})
	_, err := c.Generate(context.Background(), "p")
	require.ErrorIs(t, err, contract.ErrCredentialMissing)
}
