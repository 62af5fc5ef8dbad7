// ABOUTME: HTTP handlers for reading ingestion, analytic queries and precipitation correction
// ABOUTME: Analytic queries answer 200 with a null reading when nothing matches

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/2389/weather-gateway/internal/store"
)

// readingView is the JSON form of a stored reading.
type readingView struct {
	ID                  string    `json:"id"`
	DeviceName          string    `json:"deviceName"`
	Time                time.Time `json:"time"`
	Precipitation       float64   `json:"precipitation"`
	AtmosphericPressure float64   `json:"atmosphericPressure"`
	MaxWindSpeed        float64   `json:"maxWindSpeed"`
	SolarRadiation      float64   `json:"solarRadiation"`
	VaporPressure       float64   `json:"vaporPressure"`
	Humidity            float64   `json:"humidity"`
	Temperature         float64   `json:"temperature"`
	WindDirection       float64   `json:"windDirection"`
	Latitude            float64   `json:"latitude"`
	Longitude           float64   `json:"longitude"`
}

func toReadingView(r *store.Reading) *readingView {
	return &readingView{
		ID:                  r.ID,
		DeviceName:          r.DeviceName,
		Time:                r.Time.UTC(),
		Precipitation:       r.Precipitation,
		AtmosphericPressure: r.AtmosphericPressure,
		MaxWindSpeed:        r.MaxWindSpeed,
		SolarRadiation:      r.SolarRadiation,
		VaporPressure:       r.VaporPressure,
		Humidity:            r.Humidity,
		Temperature:         r.Temperature,
		WindDirection:       r.WindDirection,
		Latitude:            r.Latitude,
		Longitude:           r.Longitude,
	}
}

type precipitationPeakView struct {
	DeviceName    string    `json:"deviceName"`
	Time          time.Time `json:"time"`
	Precipitation float64   `json:"precipitation"`
}

type hourlySnapshotView struct {
	Temperature         float64 `json:"temperature"`
	AtmosphericPressure float64 `json:"atmosphericPressure"`
	Precipitation       float64 `json:"precipitation"`
	SolarRadiation      float64 `json:"solarRadiation"`
}

type temperaturePeakView struct {
	DeviceName  string    `json:"deviceName"`
	Time        time.Time `json:"time"`
	Temperature float64   `json:"temperature"`
}

type readingResponse struct {
	response
	Reading any `json:"reading"`
}

type readingsAddedResponse struct {
	response
	ReadingsAdded int `json:"readingsAdded"`
}

func (s *Server) handleCreateReading(w http.ResponseWriter, r *http.Request) {
	var req createReadingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reading, err := req.reading()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.telemetry.Create(r.Context(), reading)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to create reading")
		return
	}

	s.writeJSON(w, http.StatusOK, readingResponse{
		response: response{Status: http.StatusOK, Message: "Create reading - singular"},
		Reading:  toReadingView(created),
	})
}

func (s *Server) handleCreateReadings(w http.ResponseWriter, r *http.Request) {
	var req createReadingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	readings, err := req.readings()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := s.telemetry.CreateBatch(r.Context(), req.DeviceName, readings)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to create readings")
		return
	}

	s.writeJSON(w, http.StatusOK, readingsAddedResponse{
		response:      response{Status: http.StatusOK, Message: "Readings added"},
		ReadingsAdded: n,
	})
}

func (s *Server) handleUpdatePrecipitation(w http.ResponseWriter, r *http.Request) {
	var req updatePrecipitationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := s.telemetry.UpdatePrecipitation(r.Context(), req.ID, *req.Precipitation)
	if errors.Is(err, store.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Reading cannot be found, invalid ID")
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err, "failed to update reading")
		return
	}

	s.writeJSON(w, http.StatusOK, readingResponse{
		response: response{Status: http.StatusOK, Message: "Reading successfully updated"},
		Reading:  toReadingView(updated),
	})
}

func (s *Server) handleMaxPrecipitation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	device, err := requiredQuery(q, "deviceName")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	since, err := parseDate("startDate", q.Get("startDate"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	peak, ok, err := s.telemetry.MaxPrecipitation(r.Context(), device, since)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to query max precipitation")
		return
	}

	var view *precipitationPeakView
	if ok {
		view = &precipitationPeakView{DeviceName: peak.DeviceName, Time: peak.Time.UTC(), Precipitation: peak.Precipitation}
	}
	s.writeJSON(w, http.StatusOK, readingResponse{
		response: response{Status: http.StatusOK, Message: "Max precipitation for device"},
		Reading:  view,
	})
}

func (s *Server) handleReadingAtHour(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	device, err := requiredQuery(q, "deviceName")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	at, err := parseDate("time", q.Get("time"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	snap, ok, err := s.telemetry.ReadingAtHour(r.Context(), device, at)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to query reading by hour")
		return
	}

	var view *hourlySnapshotView
	if ok {
		view = &hourlySnapshotView{
			Temperature:         snap.Temperature,
			AtmosphericPressure: snap.AtmosphericPressure,
			Precipitation:       snap.Precipitation,
			SolarRadiation:      snap.SolarRadiation,
		}
	}
	s.writeJSON(w, http.StatusOK, readingResponse{
		response: response{Status: http.StatusOK, Message: "Reading for device at hour"},
		Reading:  view,
	})
}

func (s *Server) handleMaxTemperature(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate("startDate", q.Get("startDate"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseDate("endDate", q.Get("endDate"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	peak, ok, err := s.telemetry.MaxTemperature(r.Context(), from, to)
	if err != nil {
		s.writeServiceError(w, r, err, "failed to query max temperature")
		return
	}

	var view *temperaturePeakView
	if ok {
		view = &temperaturePeakView{DeviceName: peak.DeviceName, Time: peak.Time.UTC(), Temperature: peak.Temperature}
	}
	s.writeJSON(w, http.StatusOK, readingResponse{
		response: response{Status: http.StatusOK, Message: "Max temperature in range"},
		Reading:  view,
	})
}
