package oauth

import (
	"bytes"
	"io"
	"net/http"
	"strings"
)

// responseRecorder remembers the status and body of the token response, which
// x/oauth2 does not expose when it parses a token successfully.
// One recorder serves one exchange.
type responseRecorder struct {
	next   http.RoundTripper
	status int
	body   bytes.Buffer
}

func newResponseRecorder(next http.RoundTripper) *responseRecorder {
	if next == nil {
		next = http.DefaultTransport
	}
	return &responseRecorder{next: next}
}

func (r *responseRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.next.RoundTrip(req)
	if err != nil {
		return resp, err
	}

	r.status = resp.StatusCode
	r.body.Reset()
	resp.Body = recordedBody{
		Reader: io.TeeReader(resp.Body, &r.body),
		Closer: resp.Body,
	}
	return resp, nil
}

// Body returns the response body read so far
func (r *responseRecorder) Body() string {
	return strings.TrimSpace(r.body.String())
}

type recordedBody struct {
	io.Reader
	io.Closer
}
