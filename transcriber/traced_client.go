package transcriber

import (
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"time"
)

// RequestTiming breaks one HTTP round trip into phases.
type RequestTiming struct {
	DNS        time.Duration
	Connect    time.Duration
	TLS        time.Duration
	Upload     time.Duration
	TTFB       time.Duration
	Download   time.Duration
	Total      time.Duration
	ConnReused bool
}

func (m *RequestTiming) Sum() time.Duration {
	return m.DNS + m.Connect + m.TLS + m.Upload + m.TTFB + m.Download
}

func (m *RequestTiming) String() string {
	return fmt.Sprintf("dns=%dms connect=%dms tls=%dms upload=%dms ttfb=%dms download=%dms total=%dms reused=%v",
		m.DNS.Milliseconds(), m.Connect.Milliseconds(), m.TLS.Milliseconds(), m.Upload.Milliseconds(),
		m.TTFB.Milliseconds(), m.Download.Milliseconds(), m.Total.Milliseconds(), m.ConnReused)
}

type tracedClient struct {
	client *http.Client
}

func newTracedClient(timeout time.Duration) *tracedClient {
	return &tracedClient{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        2,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type tracedResponse struct {
	Body       []byte
	StatusCode int
	Timing     *RequestTiming
}

func (c *tracedClient) do(req *http.Request) (*tracedResponse, error) {
	timing := &RequestTiming{}
	var dnsStart, connStart, tlsStart, gotConn, wroteRequest, firstByte time.Time

	trace := &httptrace.ClientTrace{
		DNSStart:          func(httptrace.DNSStartInfo) { dnsStart = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { timing.DNS = time.Since(dnsStart) },
		ConnectStart:      func(_, _ string) { connStart = time.Now() },
		ConnectDone:       func(_, _ string, _ error) { timing.Connect = time.Since(connStart) },
		TLSHandshakeStart: func() { tlsStart = time.Now() },
		TLSHandshakeDone:  func(tls.ConnectionState, error) { timing.TLS = time.Since(tlsStart) },
		GotConn: func(info httptrace.GotConnInfo) {
			gotConn = time.Now()
			timing.ConnReused = info.Reused
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			wroteRequest = time.Now()
			timing.Upload = wroteRequest.Sub(gotConn)
		},
		GotFirstResponseByte: func() {
			firstByte = time.Now()
			timing.TTFB = firstByte.Sub(wroteRequest)
		},
	}

	req = req.WithContext(httptrace.WithClientTrace(req.Context(), trace))
	start := time.Now()

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	timing.Download = time.Since(firstByte)
	timing.Total = time.Since(start)

	return &tracedResponse{Body: body, StatusCode: resp.StatusCode, Timing: timing}, nil
}
