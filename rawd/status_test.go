package rawd

import (
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetaHandler(t *testing.T) {
	require := require.New(t)
	vol := testVolume(t)

	srv, err := NewServer(vol, filepath.Join(t.TempDir(), "sigmet.sock"), 1)
	require.NoError(err)
	defer srv.Close()

	rec := httptest.NewRecorder()
	srv.metaHandler(rec, httptest.NewRequest("GET", "/volume.json", nil))
	require.Equal(200, rec.Code)

	var meta volumeMeta
	require.NoError(json.Unmarshal(rec.Body.Bytes(), &meta))
	require.Equal("KXYZ", meta.Site)
	require.Equal("PPIVOL_A", meta.Task)
	require.Equal("UTC-05:00", meta.TimeZone)
	require.Equal(2, meta.NumSweeps)
	require.Equal([]string{"DB_DBZ"}, meta.Types)
	require.Len(meta.ID, 16)
	require.Len(meta.SweepTimes, 2)

	// the id is stable for the same volume
	require.Equal(srv.VolumeID(), srv.VolumeID())
}
