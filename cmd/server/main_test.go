package main

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToEvent(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/videos/download?x=1", strings.NewReader(`{"token":"CUP"}`))
	r.Header.Set("X-Origin-Verify", "secret")
	r.RemoteAddr = "192.0.2.10:51234"

	req, err := toEvent(r)
	require.NoError(t, err)
	require.Equal(t, "/api/videos/download", req.Path)
	require.Equal(t, "POST", req.HTTPMethod)
	require.Equal(t, `{"token":"CUP"}`, req.Body)
	require.Equal(t, "1", req.QueryStringParameters["x"])
	require.Equal(t, "secret", req.Headers["X-Origin-Verify"])
	require.Equal(t, "192.0.2.10", req.RequestContext.Identity.SourceIP)
}
