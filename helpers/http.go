package helpers

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"sync/atomic"
)

// MockHTTP is http.RoundTripper for tests.
// Fun takes priority, then Err, then canned Status/Body.
type MockHTTP struct {
	Fun    func(*http.Request) (*http.Response, error)
	Status int // default 200
	Body   []byte
	Err    error

	calls int32
}

func (m *MockHTTP) Calls() int { return int(atomic.LoadInt32(&m.calls)) }

func (m *MockHTTP) RoundTrip(req *http.Request) (*http.Response, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.Fun != nil {
		return m.Fun(req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	status := m.Status
	if status == 0 {
		status = http.StatusOK
	}
	header := fmt.Sprintf("HTTP/1.0 %d %s\r\nContent-Length: %d\r\n\r\n", status, http.StatusText(status), len(m.Body))
	rb := make([]byte, 0, len(header)+len(m.Body))
	rb = append(rb, header...)
	rb = append(rb, m.Body...)
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(rb)), req)
}
