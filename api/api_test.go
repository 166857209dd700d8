// Copyright (c) 2025 The DFKIndex developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dfklabs/indexd/node"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	n, err := node.New(&node.Config{SnapshotInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(n.Close)

	handler, closer := New(n, Options{AllowedOrigins: "*", EnableReqLogger: true})
	t.Cleanup(closer)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, srv *httptest.Server, path string, v any) int {
	t.Helper()
	res, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	if v != nil && res.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(body, v))
	}
	return res.StatusCode
}

func TestStatusListsFamilies(t *testing.T) {
	srv := newTestServer(t)
	var status map[string]node.FamilyStatus
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/indexers", &status))
	require.Contains(t, status, "bargain")
	assert.False(t, status["bargain"].Running)

	// /status is an alias of the indexers overview
	var alias map[string]node.FamilyStatus
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/status", &alias))
	assert.Equal(t, status, alias)
}

func TestFamilyLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	res, err := srv.Client().Post(srv.URL+"/indexers/bargain/start", "", nil)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var status map[string]node.FamilyStatus
	getJSON(t, srv, "/indexers", &status)
	assert.True(t, status["bargain"].Running)

	res, err = srv.Client().Post(srv.URL+"/indexers/bargain/stop", "", nil)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	getJSON(t, srv, "/indexers", &status)
	assert.False(t, status["bargain"].Running)
}

func TestUnknownFamilyIs404(t *testing.T) {
	srv := newTestServer(t)
	res, err := srv.Client().Post(srv.URL+"/indexers/nope/start", "", nil)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

func TestProgressEmpty(t *testing.T) {
	srv := newTestServer(t)
	var out struct {
		Global struct {
			IsRunning bool `json:"isRunning"`
		} `json:"global"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/progress", &out))
	assert.False(t, out.Global.IsRunning)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv, "/progress/nope", nil))
}

func TestBargainsBeforeFirstRun(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv, "/bargains/regular", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv, "/bargains/shiny", nil))
}

func TestDropRatesValidation(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv, "/droprates?chain=solana&activity=1", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv, "/droprates?chain=dfk", nil))

	var rates []json.RawMessage
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/droprates?chain=dfk&activity=1", &rates))
	assert.Empty(t, rates)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	var st struct {
		Healthy bool `json:"healthy"`
		StoreOK bool `json:"storeOk"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv, "/health", &st))
	assert.True(t, st.Healthy)
	assert.True(t, st.StoreOK)
}

func TestCORSHeader(t *testing.T) {
	srv := newTestServer(t)
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/indexers", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, "*", res.Header.Get("Access-Control-Allow-Origin"))
}
