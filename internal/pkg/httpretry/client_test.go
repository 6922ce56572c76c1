package httpretry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedDoer struct {
	statuses []int
	errs     []error
	calls    int
}

func (s *scriptedDoer) Do(req *http.Request) (*http.Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &http.Response{
		StatusCode: s.statuses[i],
		Body:       io.NopCloser(strings.NewReader("ok")),
	}, nil
}

func newRequest(t *testing.T) *http.Request {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://sns.example.com/confirm", nil)
	require.NoError(t, err)
	return req
}

func TestRetryClient_RetriesRetryableStatus(t *testing.T) {
	doer := &scriptedDoer{statuses: []int{503, 429, 200}}
	rc := NewRetryClient(doer, 3).WithDelays(time.Millisecond, time.Millisecond)

	resp, err := rc.Do(newRequest(t))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 3, doer.calls)
}

func TestRetryClient_DoesNotRetryClientErrors(t *testing.T) {
	doer := &scriptedDoer{statuses: []int{403}}
	rc := NewRetryClient(doer, 3).WithDelays(time.Millisecond, time.Millisecond)

	resp, err := rc.Do(newRequest(t))
	require.NoError(t, err)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, 1, doer.calls)
}

func TestRetryClient_ReturnsLastNetworkError(t *testing.T) {
	boom := errors.New("connection reset")
	doer := &scriptedDoer{errs: []error{boom, boom}, statuses: []int{0, 0}}
	rc := NewRetryClient(doer, 1).WithDelays(time.Millisecond, time.Millisecond)

	_, err := rc.Do(newRequest(t))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, doer.calls)
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt := 1; attempt <= 10; attempt++ {
		d := Backoff(attempt, time.Second, 8*time.Second)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 8*time.Second)
	}
	assert.Equal(t, 100*time.Millisecond, Backoff(0, time.Millisecond, time.Millisecond))
}

func TestIsRetryableStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, IsRetryableStatus(code), code)
	}
	for _, code := range []int{200, 400, 401, 403, 404, 501} {
		assert.False(t, IsRetryableStatus(code), code)
	}
}
