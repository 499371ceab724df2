package netx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	Name string `json:"name"`
}

func TestDoJSON(t *testing.T) {
	t.Run("round trip with bearer", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

			var in payload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(payload{Name: in.Name + "!"})
		}))
		defer ts.Close()

		var out payload
		status, err := DoJSON(context.Background(), ts.Client(), http.MethodPost, ts.URL, "tok", payload{Name: "hi"}, &out)
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, status)
		assert.Equal(t, "hi!", out.Name)
	})

	t.Run("non-2xx returns status without error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"already set up"}`))
		}))
		defer ts.Close()

		var out payload
		status, err := DoJSON(context.Background(), ts.Client(), http.MethodGet, ts.URL, "", nil, &out)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Empty(t, out.Name)
	})

	t.Run("bad body is a decode error", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{not json`))
		}))
		defer ts.Close()

		var out payload
		_, err := DoJSON(context.Background(), ts.Client(), http.MethodGet, ts.URL, "", nil, &out)
		require.Error(t, err)
		var te *TransportError
		assert.False(t, errors.As(err, &te))
	})

	t.Run("network error", func(t *testing.T) {
		ts := httptest.NewServer(http.NotFoundHandler())
		ts.Close()

		_, err := DoJSON(context.Background(), http.DefaultClient, http.MethodGet, ts.URL, "", nil, nil)
		var te *TransportError
		require.ErrorAs(t, err, &te)
	})
}
