package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"adhoc_rdv/internal/dataType"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)
	var view map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, dataType.AdhocRdvVersion, view["version"])
}

func TestPublishCmd(t *testing.T) {
	var gotQuery, gotPath string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"handed_off":2,"mode":"explicit","ttl":2}`))
	}))
	defer srv.Close()

	out, err := execute(t, "publish", "--prefix", t.TempDir(), "--node", srv.URL,
		"--service", "chat", "--peer", "b", "--peer", "c", "--ttl", "5", "hi")
	require.NoError(t, err)

	assert.Equal(t, "/rdv/publish", gotPath)
	assert.Contains(t, gotQuery, "mode=explicit")
	assert.Contains(t, gotQuery, "targets=b%2Cc")
	assert.Contains(t, gotQuery, "ttl=5")
	assert.Equal(t, "hi", string(gotBody))
	assert.Contains(t, out, "handed_off: 2")
}

func TestPublishCmd_Errors(t *testing.T) {
	_, err := execute(t, "publish", "--prefix", t.TempDir(), "--node", "http://127.0.0.1:1", "--service", "chat", "--mode", "broadcast")
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()
	_, err = execute(t, "publish", "--prefix", t.TempDir(), "--node", srv.URL, "--service", "chat")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestStatsCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"node":"A","version":"x","neighbors":3,"engine":{"originated":4,"sent":7}}`))
	}))
	defer srv.Close()

	out, err := execute(t, "stats", "--prefix", t.TempDir(), "--node", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "node: A")
	assert.Contains(t, out, "neighbors: 3")
	assert.Contains(t, out, "sent: 7")
}

func TestFloodHorizon(t *testing.T) {
	assert.Equal(t, time.Minute, floodHorizon(nil))
	assert.Equal(t, time.Hour, floodHorizon([]dataType.RateLimit{{Limit: 1, Window: time.Second}, {Limit: 1, Window: time.Hour}}))
}
