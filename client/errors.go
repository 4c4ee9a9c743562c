package client

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxErrorBody caps how much of a failed response is kept.
const maxErrorBody = 4 << 10

// HTTPError is returned when the users API answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("users api: %s", e.Status)
	}
	return fmt.Sprintf("users api: %s: %s", e.Status, e.Body)
}

func newHTTPError(res *http.Response) *HTTPError {
	b, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	status := res.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", res.StatusCode, http.StatusText(res.StatusCode))
	}
	return &HTTPError{
		StatusCode: res.StatusCode,
		Status:     status,
		Body:       strings.TrimSpace(string(b)),
	}
}

// IsNotFound reports whether err is a 404 from the users API.
func IsNotFound(err error) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.StatusCode == http.StatusNotFound
}
