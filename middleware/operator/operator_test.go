package operator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/meshwire/netsim/chat"
	"github.com/meshwire/netsim/network"
)

type fixedSource struct {
	server *chat.Server
}

func (f fixedSource) Current() (*chat.Server, bool) {
	return f.server, f.server != nil
}

func newFixture(t *testing.T) (*network.Network, *httptest.Server) {
	t.Helper()
	net, err := network.NewWithClock("10.0.0", clock.New(), 5*time.Millisecond)
	require.NoError(t, err)
	server, err := chat.NewServer(chat.Public, 5, "alpha", chat.NewCounter())
	require.NoError(t, err)
	ts := httptest.NewServer(NewService(net, fixedSource{server: server}).Router())
	t.Cleanup(ts.Close)
	return net, ts
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func requestJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(method, url, bytes.NewReader(data))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestConnectNodeEndpoint(t *testing.T) {
	_, ts := newFixture(t)

	resp := post(t, ts.URL+"/api/network", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	resp.Body.Close()
	require.Equal(t, "10.0.0.5", body["nodeAddress"])

	// same server again: address conflict
	resp = post(t, ts.URL+"/api/network", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestNamedNodesEndpoint(t *testing.T) {
	net, ts := newFixture(t)
	other, err := chat.NewServer(chat.Public, 7, "beta", chat.NewCounter())
	require.NoError(t, err)
	_, err = net.ConnectNode(7, other)
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/api/network")
	require.NoError(t, err)
	var names []string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&names))
	resp.Body.Close()
	require.Equal(t, []string{"beta"}, names)
}

func TestLinkAndDisableEndpoints(t *testing.T) {
	net, ts := newFixture(t)
	beta, err := chat.NewServer(chat.Public, 7, "beta", chat.NewCounter())
	require.NoError(t, err)
	_, err = net.ConnectNode(7, beta)
	require.NoError(t, err)

	resp := requestJSON(t, http.MethodPatch, ts.URL+"/api/network",
		map[string]string{"source": "alpha", "target": "beta"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Equal(t, []string{"alpha"}, beta.Peers())

	resp = requestJSON(t, http.MethodPatch, ts.URL+"/api/network",
		map[string]string{"source": "alpha", "target": "gamma"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = requestJSON(t, http.MethodDelete, ts.URL+"/api/network",
		map[string]string{"serverName": "beta"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	require.Empty(t, net.NamedNodes())
}

func TestCheckConnectionEndpoint(t *testing.T) {
	net, ts := newFixture(t)

	// no node registered yet
	resp, err := http.Get(ts.URL + "/api/connection")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = post(t, ts.URL+"/api/network", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/connection")
	require.NoError(t, err)
	var linked bool
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&linked))
	resp.Body.Close()
	require.False(t, linked)

	require.NoError(t, net.LinkNodes("other", "alpha"))
	resp, err = http.Get(ts.URL + "/api/connection")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&linked))
	resp.Body.Close()
	require.True(t, linked)
}
