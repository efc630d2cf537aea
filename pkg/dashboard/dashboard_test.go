package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kilnforge/filepool/pkg/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatsProvider struct{ stats pool.Stats }

func (f fakeStatsProvider) Stats() pool.Stats { return f.stats }

func TestDashboard_StatsEndpoint(t *testing.T) {
	fake := fakeStatsProvider{stats: pool.Stats{
		Size: 2,
		Workers: []pool.WorkerStats{
			{ID: "worker-0", Online: true},
			{ID: "worker-1", Online: true},
		},
	}}
	d := New(fake)
	srv := httptest.NewServer(d.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var decoded pool.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	assert.Equal(t, 2, decoded.Size)
	assert.Len(t, decoded.Workers, 2)
}
