package metrics

import "strconv"

const (
	APIErrorsTotal = "api_errors_total"
	PanicsTotal    = "panics_total"
)

// RecordAPIError counts an error response. endpoint must be a route
// pattern, never a raw path.
func RecordAPIError(endpoint, code string, status int) {
	counter(APIErrorsTotal, map[string]string{
		"endpoint":    endpoint,
		"error_code":  code,
		"http_status": strconv.Itoa(status),
	})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic(endpoint string) {
	counter(PanicsTotal, map[string]string{"endpoint": endpoint})
}
