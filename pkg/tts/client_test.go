package tts

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/faults"
)

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(&config.TTSConfig{
		URL:     srv.URL,
		Model:   "aether-voice-1",
		Speed:   1.0,
		Timeout: 5 * time.Second,
	})
}

func TestSynthesize(t *testing.T) {
	wav := []byte("RIFFfakewavdata")

	t.Run("decodes hex audio and metadata", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/synthesize", r.URL.Path)

			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "hello listeners", req["text"])
			assert.Equal(t, "vega", req["voice"])
			assert.Equal(t, true, req["use_cache"])

			fmt.Fprintf(w, `{"audio":%q,"duration_sec":3.2,"model":"aether-voice-1","cached":false}`,
				hex.EncodeToString(wav))
		}))
		defer srv.Close()

		got, err := newTestClient(srv).Synthesize(context.Background(), "hello listeners", "vega")
		require.NoError(t, err)
		assert.Equal(t, wav, got.Audio)
		assert.Equal(t, 3.2, got.DurationSec)
		assert.False(t, got.Cached)
	})

	t.Run("server error tagged transient", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newTestClient(srv).Synthesize(context.Background(), "text", "vega")
		require.Error(t, err)
		assert.Equal(t, faults.KindTransient, faults.KindOf(err))
	})

	t.Run("empty audio rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"audio":"","duration_sec":0,"model":"m","cached":false}`)
		}))
		defer srv.Close()

		_, err := newTestClient(srv).Synthesize(context.Background(), "text", "vega")
		require.Error(t, err)
	})

	t.Run("invalid hex rejected", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"audio":"zz-not-hex","duration_sec":0,"model":"m","cached":false}`)
		}))
		defer srv.Close()

		_, err := newTestClient(srv).Synthesize(context.Background(), "text", "vega")
		require.Error(t, err)
	})
}
