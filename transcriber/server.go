package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"scribe/log"
)

// Server posts each utterance to a local inference server: either the
// whisper.cpp server (/inference) or an OpenAI-compatible
// /v1/audio/transcriptions endpoint. Both answer {"text": ...}.
type Server struct {
	client *tracedClient
	url    string
	lang   string
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.ServerURL == "" {
		return nil, errors.New("model server_url is empty")
	}
	return &Server{
		client: newTracedClient(cfg.Timeout),
		url:    cfg.ServerURL,
		lang:   cfg.Language,
	}, nil
}

func (s *Server) Name() string { return BackendServer }

func (s *Server) body(wavPath string) (*bytes.Buffer, string, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filepath.Base(wavPath))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", err
	}
	fields := [][2]string{{"response_format", "json"}, {"temperature", "0"}}
	if s.lang != "" {
		fields = append(fields, [2]string{"language", s.lang})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &body, writer.FormDataContentType(), nil
}

func (s *Server) Transcribe(ctx context.Context, wavPath string) (string, error) {
	body, contentType, err := s.body(wavPath)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	t := resp.Timing
	log.ServerRequest(s.url, resp.StatusCode, ms(t.DNS), ms(t.Connect), ms(t.TTFB), ms(t.Total), t.ConnReused)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return "", fmt.Errorf("%w: server returned %d", ErrUnavailable, resp.StatusCode)
	default:
		return "", fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return "", fmt.Errorf("server response parse error: %w", err)
	}
	return normalize(out.Text)
}

func (s *Server) Close() error {
	s.client.client.CloseIdleConnections()
	return nil
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
