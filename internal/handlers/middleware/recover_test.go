package middleware

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecover(t *testing.T) {
	logged := 0
	l := errorLoggerFunc(func(string, ...any) { logged++ })

	h := Recover(l)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	resp, body := do(t, h, func(*http.Request) {})

	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.JSONEq(t, `{"status": "error", "message": "Internal server error"}`, body)
	require.Equal(t, 1, logged)
}
