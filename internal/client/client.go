// Package client talks to the remote detection API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/upload"
)

const (
	predictPath = "/api/predict"
	statusPath  = "/api/model-status"

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 1 << 20
)

// Client submits images to the prediction endpoint. Each call issues exactly one
// request; there are no retries.
type Client struct {
	baseURL    string
	address    string
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a Client for baseURL (e.g. http://localhost:5001). A zero timeout means
// requests are bounded only by the caller's context.
func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	baseURL = strings.TrimRight(baseURL, "/")

	address := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		address = u.Host
	}

	return &Client{
		baseURL:    baseURL,
		address:    address,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// BaseURL returns the API base address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Submit POSTs the payload as multipart field "image" and decodes the prediction.
//
// Errors are *prediction.ConnectivityError (unreachable or non-JSON reply),
// *prediction.APIError (success:false) or *prediction.MalformedResponseError.
func (c *Client) Submit(ctx context.Context, p upload.Payload) (prediction.Result, error) {
	body, contentType, err := encodeForm(p)
	if err != nil {
		return prediction.Result{}, fmt.Errorf("encode form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, body)
	if err != nil {
		return prediction.Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return prediction.Result{}, ctxErr
		}
		c.log.Debug().Err(err).Str("url", req.URL.String()).Msg("predict request failed")
		return prediction.Result{}, &prediction.ConnectivityError{Address: c.address, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return prediction.Result{}, &prediction.ConnectivityError{Address: c.address, Err: err}
	}

	var envelope prediction.Response
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.log.Debug().
			Int("status", resp.StatusCode).
			Str("content_type", resp.Header.Get("Content-Type")).
			Msg("predict response is not json")
		return prediction.Result{}, &prediction.ConnectivityError{Address: c.address, Err: err}
	}

	c.log.Debug().
		Int("status", resp.StatusCode).
		Bool("success", envelope.Success).
		Dur("elapsed", time.Since(start)).
		Str("file", p.Name).
		Msg("predict response")

	result, err := envelope.Result()
	if err != nil {
		var apiErr *prediction.APIError
		if errors.As(err, &apiErr) {
			apiErr.StatusCode = resp.StatusCode
		}
		return prediction.Result{}, err
	}

	return result, nil
}

// Status queries the model status endpoint. Any failure is reported as an offline,
// unreachable status rather than an error.
func (c *Client) Status(ctx context.Context) prediction.ModelStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+statusPath, nil)
	if err != nil {
		return prediction.ModelStatus{}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Msg("model status unreachable")
		return prediction.ModelStatus{}
	}
	defer resp.Body.Close() //nolint:errcheck

	var status prediction.ModelStatus
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&status); err != nil {
		c.log.Debug().Err(err).Msg("model status not json")
		return prediction.ModelStatus{}
	}

	status.Reachable = true
	return status
}

// encodeForm builds a multipart body with the image under the "image" field.
func encodeForm(p upload.Payload) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	name := p.Name
	if name == "" {
		name = "image"
	}

	mime := p.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename=%q`, name))
	h.Set("Content-Type", mime)

	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(p.Data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return &buf, w.FormDataContentType(), nil
}
