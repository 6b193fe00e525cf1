package api

import (
	"encoding/csv"
	"errors"
	"net/http"

	"github.com/banshee-data/dyno.report/internal/datalog"
	"github.com/banshee-data/dyno.report/internal/db"
	"github.com/banshee-data/dyno.report/internal/dyno"
	"github.com/banshee-data/dyno.report/internal/httputil"
	"github.com/banshee-data/dyno.report/internal/monitoring"
)

// channelErrorDetail is the detail body of a missing-channel response.
type channelErrorDetail struct {
	Channel string   `json:"channel"`
	Aliases []string `json:"aliases"`
	Headers []string `json:"headers"`
}

// emptyResultDetail is the detail body when filtering rejected every row.
type emptyResultDetail struct {
	TotalRows    int             `json:"total_rows"`
	SkippedRows  int             `json:"skipped_rows"`
	FilteredRows int             `json:"filtered_rows"`
	Thresholds   dyno.Thresholds `json:"thresholds"`
}

// writeError maps domain errors onto status codes:
// bad input 400, missing records 404, unusable logs 422, anything else 500.
func writeError(w http.ResponseWriter, err error) {
	var (
		cfgErr   *dyno.ConfigError
		emptyErr *dyno.EmptyResultError
		maxErr   *http.MaxBytesError
		csvErr   *csv.ParseError
	)
	switch {
	case errors.As(err, &maxErr):
		httputil.RequestTooLarge(w, err.Error())
	case errors.Is(err, db.ErrNotFound):
		httputil.NotFound(w, err.Error())
	case errors.Is(err, dyno.ErrInvalidSmoothingLevel), errors.Is(err, dyno.ErrInvalidGear), errors.Is(err, errBadRequest):
		httputil.BadRequest(w, err.Error())
	case errors.As(err, &cfgErr):
		httputil.Unprocessable(w, err.Error(), channelErrorDetail{
			Channel: cfgErr.Channel,
			Aliases: cfgErr.Aliases,
			Headers: cfgErr.Headers,
		})
	case errors.As(err, &emptyErr):
		httputil.Unprocessable(w, err.Error(), emptyResultDetail{
			TotalRows:    emptyErr.TotalRows,
			SkippedRows:  emptyErr.SkippedRows,
			FilteredRows: emptyErr.FilteredRows,
			Thresholds:   emptyErr.Thresholds,
		})
	case errors.Is(err, datalog.ErrNoHeader), errors.As(err, &csvErr):
		httputil.Unprocessable(w, err.Error(), nil)
	default:
		monitoring.Logf("internal error: %v", err)
		httputil.InternalServerError(w, "internal error")
	}
}

// errBadRequest marks request validation failures.
var errBadRequest = errors.New("bad request")

type badRequestError struct{ msg string }

func (e *badRequestError) Error() string        { return e.msg }
func (e *badRequestError) Is(target error) bool { return target == errBadRequest }

func badRequest(msg string) error { return &badRequestError{msg: msg} }
