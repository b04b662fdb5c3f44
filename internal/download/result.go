package download

import (
	"fmt"
	"net/http"

	"github.com/maauso/reelforge/internal/media"
)

// Result is the outcome of Fetch: Ok, Gone or Transient.
type Result interface {
	isResult()
}

// Ok is a downloaded file that passed validation.
type Ok struct {
	Asset    media.Asset
	Attempts int
}

// Gone means every attempt failed and the last one observed a 404: the
// source has been removed and the job is stale.
type Gone struct {
	URL        string
	StatusCode int
}

// Transient means every attempt failed for a reason other than a final 404.
// StatusCode is the last observed HTTP status, 0 when the host was unreachable.
type Transient struct {
	URL        string
	StatusCode int
	Err        error
}

func (*Ok) isResult()        {}
func (*Gone) isResult()      {}
func (*Transient) isResult() {}

func (e *Gone) Error() string {
	return fmt.Sprintf("source gone (HTTP %d): %s", e.StatusCode, e.URL)
}

func (e *Transient) Error() string {
	return fmt.Sprintf("download failed (HTTP %03d): %s: %v", e.StatusCode, e.URL, e.Err)
}

func (e *Transient) Unwrap() error {
	return e.Err
}

// IsGone reports whether a final status code marks the source as removed.
func IsGone(statusCode int) bool {
	return statusCode == http.StatusNotFound
}
