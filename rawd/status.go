package rawd

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// volumeMeta is the JSON summary served next to the socket protocol for
// quick inspection from a browser or curl.
type volumeMeta struct {
	ID          string    `json:"id"`
	Site        string    `json:"site"`
	Task        string    `json:"task"`
	TimeZone    string    `json:"time_zone"`
	NumSweeps   int       `json:"num_sweeps"`
	NumRays     int       `json:"num_rays_per_sweep"`
	NumBins     int       `json:"num_bins_out"`
	Types       []string  `json:"types"`
	SweepTimes  []float64 `json:"sweep_times"`
	SweepAngles []float64 `json:"sweep_angles"`
}

// VolumeID is a stable identity for the loaded volume, hashed over its
// product and ingest headers.
func (s *Server) VolumeID() uint64 {
	h := xxhash.New()
	binary.Write(h, binary.LittleEndian, &s.vol.Product)
	binary.Write(h, binary.LittleEndian, &s.vol.Ingest)
	return h.Sum64()
}

func (s *Server) metaHandler(w http.ResponseWriter, req *http.Request) {
	v := s.vol
	meta := volumeMeta{
		Site:      v.SiteName(),
		Task:      v.TaskName(),
		TimeZone:  v.TimeZone(),
		NumSweeps: v.NumSweeps,
		NumRays:   v.NumRaysPerSweep,
		NumBins:   v.NumBinsOut,
	}
	meta.ID = fmt.Sprintf("%016x", s.VolumeID())
	for _, t := range v.Types {
		meta.Types = append(meta.Types, t.Abbrev)
	}
	for _, sh := range v.Sweeps {
		meta.SweepTimes = append(meta.SweepTimes, sh.Time)
		meta.SweepAngles = append(meta.SweepAngles, sh.Angle)
	}
	j, _ := json.Marshal(meta)
	w.Header().Set("Content-Type", "application/json")
	w.Write(j)
}

// ServeHTTPStatus serves the meta endpoint on addr until the listener
// fails or the process exits. Meant for a loopback address only; the
// socket protocol stays the data path.
func (s *Server) ServeHTTPStatus(addr string) error {
	r := mux.NewRouter()
	r.HandleFunc("/volume.json", s.metaHandler)

	srv := &http.Server{
		Addr:         addr,
		WriteTimeout: time.Second * 15,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      r,
	}
	logrus.Infof("status endpoint on http://%s/volume.json", addr)
	return srv.ListenAndServe()
}
