package dashboard

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chosenoffset/tripwire/pkg/tripwire"
	"github.com/chosenoffset/tripwire/pkg/tripwire/script"
)

func newTestServer(t *testing.T) (*script.Interp, *tripwire.Engine, *Server) {
	t.Helper()
	prog, err := script.Parse(`func ping() {
	x = 1
}
`)
	require.NoError(t, err)
	in := script.NewInterp(prog)
	engine := tripwire.New(in)
	return in, engine, NewServer(engine, 0)
}

func TestHandlersEndpoint(t *testing.T) {
	in, engine, srv := newTestServer(t)
	u, _ := in.Unit("ping")

	h, err := engine.Instrument(tripwire.Unit(u)).
		At("x = 1").
		Call(func(tripwire.Args) (any, error) { return nil, nil }).
		Apply()
	require.NoError(t, err)
	defer h.Remove()

	_, err = in.Call("ping")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.handleHandlers(rec, httptest.NewRequest("GET", "/api/handlers", nil))
	assert.Equal(t, 200, rec.Code)

	var resp struct {
		Status string        `json:"status"`
		Data   []handlerInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, h.ID(), resp.Data[0].ID)
	assert.Equal(t, "active", resp.Data[0].State)
	assert.Equal(t, uint64(1), resp.Data[0].Fired)
	assert.Equal(t, []string{"ping:2"}, resp.Data[0].Points)
}

func TestFiringsEndpointAfterBroadcast(t *testing.T) {
	_, _, srv := newTestServer(t)

	go srv.broadcast()
	defer close(srv.stop)

	srv.record(tripwire.FiringRecord{
		HandlerID: "h1", Unit: "ping", Kind: "line", Line: 2, Time: time.Now(),
	})

	require.Eventually(t, func() bool {
		srv.mutex.RLock()
		defer srv.mutex.RUnlock()
		return len(srv.recent) == 1
	}, time.Second, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	srv.handleFirings(rec, httptest.NewRequest("GET", "/api/firings", nil))

	var resp struct {
		Data []tripwire.FiringRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "h1", resp.Data[0].HandlerID)
	assert.Equal(t, 2, resp.Data[0].Line)
}

func TestRecordNeverBlocks(t *testing.T) {
	_, _, srv := newTestServer(t)

	// No broadcast goroutine is draining; overfilling must drop, not stall.
	for i := 0; i < firingBuffer*2; i++ {
		srv.record(tripwire.FiringRecord{HandlerID: "h", Unit: "ping"})
	}
	assert.Len(t, srv.firings, firingBuffer)
}

func TestIndexServesPage(t *testing.T) {
	_, _, srv := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleIndex(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "Tripwire Dashboard")
	assert.Contains(t, rec.Body.String(), "/ws")
}
