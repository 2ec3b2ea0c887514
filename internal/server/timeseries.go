package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/flxdot/carlos-sub000/internal/store"
)

// timeseriesResponse is the JSON shape of one queried series. Values
// are pointers so gaps stored as NULL serialize as null.
type timeseriesResponse struct {
	TimeseriesID int64       `json:"timeseries_id"`
	Timestamps   []time.Time `json:"timestamps"`
	Values       []*float64  `json:"values"`
}

func toTimeseriesResponse(data store.TimeseriesData) timeseriesResponse {
	resp := timeseriesResponse{
		TimeseriesID: data.TimeseriesID,
		Timestamps:   data.Timestamps,
		Values:       make([]*float64, len(data.Values)),
	}
	if resp.Timestamps == nil {
		resp.Timestamps = []time.Time{}
	}
	for i, v := range data.Values {
		if v.Valid {
			value := v.Float64
			resp.Values[i] = &value
		}
	}
	return resp
}

// handleGetTimeseries answers GET /timeseries. Query parameters:
// timeseries_id (repeatable), start_at and end_at (RFC 3339).
func (s *Server) handleGetTimeseries(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var timeseriesIDs []int64
	for _, raw := range query["timeseries_id"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeBadRequest(w, "invalid timeseries_id: "+raw)
			return
		}
		timeseriesIDs = append(timeseriesIDs, id)
	}

	startAt, err := time.Parse(time.RFC3339, query.Get("start_at"))
	if err != nil {
		writeBadRequest(w, "invalid start_at, expected RFC 3339 timestamp")
		return
	}
	endAt, err := time.Parse(time.RFC3339, query.Get("end_at"))
	if err != nil {
		writeBadRequest(w, "invalid end_at, expected RFC 3339 timestamp")
		return
	}

	data, err := s.timeseries.GetTimeseries(r.Context(), timeseriesIDs, startAt, endAt)
	switch {
	case errors.Is(err, store.ErrValidation):
		writeBadRequest(w, err.Error())
		return
	case errors.Is(err, store.ErrNotFound):
		writeNotFound(w, err.Error())
		return
	case err != nil:
		s.logger.Error("querying timeseries", "error", err)
		writeInternalError(w, "querying timeseries failed")
		return
	}

	responses := make([]timeseriesResponse, 0, len(data))
	for _, series := range data {
		responses = append(responses, toTimeseriesResponse(series))
	}
	writeJSON(w, http.StatusOK, responses)
}
