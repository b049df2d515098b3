package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/randomizedcoder/go-monitor-runner/internal/outcome"
)

// InfluxConfig addresses an InfluxDB 1.x style /write endpoint.
type InfluxConfig struct {
	// Host is a host name or a base URL; a bare host gets http:// and Port.
	Host            string
	Port            int
	Username        string
	Password        string
	Database        string
	RetentionPolicy string
	Measurement     string
	Timeout         time.Duration
}

// WriteURL returns the full /write URL including query parameters.
func (c InfluxConfig) WriteURL() (string, error) {
	base := c.Host
	if !strings.Contains(base, "://") {
		base = "http://" + base
		if c.Port > 0 {
			base += ":" + strconv.Itoa(c.Port)
		}
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("influxdb host %q: %w", c.Host, err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/write"

	q := url.Values{}
	q.Set("db", c.Database)
	if c.RetentionPolicy != "" {
		q.Set("rp", c.RetentionPolicy)
	}
	q.Set("precision", "ns")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// InfluxWriter posts one line per outcome. It implements Reporter.
type InfluxWriter struct {
	cfg      InfluxConfig
	writeURL string
	client   *http.Client
}

// NewInfluxWriter validates cfg and returns a writer. A nil client gets a
// default one bounded by cfg.Timeout.
func NewInfluxWriter(cfg InfluxConfig, client *http.Client) (*InfluxWriter, error) {
	writeURL, err := cfg.WriteURL()
	if err != nil {
		return nil, err
	}
	if cfg.Measurement == "" {
		cfg.Measurement = "monitor"
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &InfluxWriter{cfg: cfg, writeURL: writeURL, client: client}, nil
}

func (w *InfluxWriter) Name() string { return "influxdb" }

// Report encodes o and writes it.
func (w *InfluxWriter) Report(ctx context.Context, o outcome.Outcome) error {
	line, err := EncodeLine(w.cfg.Measurement, o)
	if err != nil {
		return err
	}
	return w.Write(ctx, line)
}

// Write posts raw line protocol.
func (w *InfluxWriter) Write(ctx context.Context, lines []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.writeURL, bytes.NewReader(lines))
	if err != nil {
		return fmt.Errorf("influxdb request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if w.cfg.Username != "" || w.cfg.Password != "" {
		req.SetBasicAuth(w.cfg.Username, w.cfg.Password)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("influxdb write: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &WriteError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// WriteError is a non-2xx answer from InfluxDB.
type WriteError struct {
	StatusCode int
	Body       string
}

func (e *WriteError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("influxdb write: status %d", e.StatusCode)
	}
	return fmt.Sprintf("influxdb write: status %d: %s", e.StatusCode, e.Body)
}
