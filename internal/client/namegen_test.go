package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/kube-rca/auth-service/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameClientGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate", r.URL.Path)
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "cool", req["prefix"])
		assert.Equal(t, "funny", req["style"])
		_ = json.NewEncoder(w).Encode(map[string]string{"username": "coolpanda42"})
	}))
	defer srv.Close()

	c, err := NewNameClient(config.NameServiceConfig{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	name, err := c.Generate(context.Background(), "cool", "funny")
	require.NoError(t, err)
	assert.Equal(t, "coolpanda42", name)
}

func TestNameClientNullPrefix(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		prefix, present := req["prefix"]
		assert.True(t, present)
		assert.Nil(t, prefix)
		_ = json.NewEncoder(w).Encode(map[string]string{"username": "bravefox"})
	}))
	defer srv.Close()

	c, err := NewNameClient(config.NameServiceConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "", "default")
	require.NoError(t, err)
}

func TestNameClientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := NewNameClient(config.NameServiceConfig{BaseURL: srv.URL})
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := c.Generate(context.Background(), "", "default")
		require.ErrorIs(t, err, ErrNameServiceUnavailable)
	}
	// The breaker opens after three consecutive failures.
	assert.Equal(t, int32(3), calls.Load())
}

func TestNewNameClientConfig(t *testing.T) {
	_, err := NewNameClient(config.NameServiceConfig{})
	require.Error(t, err)

	_, err = NewNameClient(config.NameServiceConfig{BaseURL: "http://names", Timeout: "soon"})
	require.Error(t, err)
}
