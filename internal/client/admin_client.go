package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"drip-admin-console/internal/models"
	"drip-admin-console/internal/storage"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// RequestMetrics describes one finished gateway request
type RequestMetrics struct {
	Method     string
	Entity     string
	Operation  string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// RequestObserver receives a RequestMetrics for every gateway request
type RequestObserver interface {
	ObserveRequest(ctx context.Context, metrics RequestMetrics)
}

// AdminClient is the single point of outbound HTTP to the Drip Studios backend
type AdminClient struct {
	baseURL    string
	session    storage.SessionStorage
	httpClient *http.Client
	observer   RequestObserver
}

// Option configures an AdminClient
type Option func(*AdminClient)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *AdminClient) { c.httpClient = httpClient }
}

// WithTimeout sets a client-side timeout; zero keeps the transport default (none)
func WithTimeout(timeout time.Duration) Option {
	return func(c *AdminClient) { c.httpClient.Timeout = timeout }
}

// WithObserver registers a request observer (telemetry)
func WithObserver(observer RequestObserver) Option {
	return func(c *AdminClient) { c.observer = observer }
}

// NewAdminClient creates a new gateway client for baseURL
func NewAdminClient(baseURL string, session storage.SessionStorage, opts ...Option) *AdminClient {
	c := &AdminClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    session,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type operationKey struct{}

type operationLabel struct {
	entity    string
	operation string
}

// WithOperation labels every request made with ctx for telemetry
func WithOperation(ctx context.Context, entity, operation string) context.Context {
	return context.WithValue(ctx, operationKey{}, operationLabel{entity: entity, operation: operation})
}

func operationFromContext(ctx context.Context) operationLabel {
	if label, ok := ctx.Value(operationKey{}).(operationLabel); ok {
		return label
	}
	return operationLabel{entity: "none", operation: "raw"}
}

// Get issues a GET request with optional query parameters
func (c *AdminClient) Get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	return c.do(ctx, http.MethodGet, path, params, nil)
}

// Post issues a POST request; body may be a models.MutationPayload
func (c *AdminClient) Post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

// Put issues a PUT request; body may be a models.MutationPayload
func (c *AdminClient) Put(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPut, path, nil, body)
}

// Patch issues a PATCH request
func (c *AdminClient) Patch(ctx context.Context, path string, body any) (json.RawMessage, error) {
	return c.do(ctx, http.MethodPatch, path, nil, body)
}

// Delete issues a DELETE request
func (c *AdminClient) Delete(ctx context.Context, path string) (json.RawMessage, error) {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Download fetches a binary response. The filename comes from the
// Content-Disposition header when present, defaultFilename otherwise.
func (c *AdminClient) Download(ctx context.Context, path, defaultFilename string) (*models.Download, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &HTTPError{Status: resp.StatusCode, Message: "failed to read download", Err: err}
	}

	return &models.Download{
		Filename:    filenameFromDisposition(resp.Header.Get("Content-Disposition"), defaultFilename),
		ContentType: resp.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// do sends the request and returns the raw body of a 2xx response
func (c *AdminClient) do(ctx context.Context, method, path string, params url.Values, body any) (json.RawMessage, error) {
	resp, err := c.send(ctx, method, path, params, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &HTTPError{Status: resp.StatusCode, Message: "failed to read response", Err: err}
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return json.RawMessage(data), nil
}

// send performs the round trip, returning *HTTPError for non-2xx statuses
func (c *AdminClient) send(ctx context.Context, method, path string, params url.Values, body any) (resp *http.Response, err error) {
	label := operationFromContext(ctx)
	start := time.Now()
	status := 0

	defer func() {
		if c.observer != nil {
			c.observer.ObserveRequest(ctx, RequestMetrics{
				Method:     method,
				Entity:     label.entity,
				Operation:  label.operation,
				StatusCode: status,
				Duration:   time.Since(start),
				Err:        err,
			})
		}
	}()

	token, tokenErr := c.session.Get(storage.TokenKey)
	if tokenErr != nil || token == "" {
		return nil, ErrNoToken
	}

	reqBody, contentType, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID(ctx))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	slog.Debug("Gateway request",
		"method", method,
		"path", path,
		"entity", label.entity,
		"operation", label.operation)

	resp, err = c.httpClient.Do(req)
	if err != nil {
		return nil, &HTTPError{Status: 0, Message: err.Error(), Err: err}
	}
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		httpErr := &HTTPError{Status: resp.StatusCode, Message: errorMessage(resp.StatusCode, data)}
		if httpErr.IsUnauthorized() {
			slog.Warn("Gateway rejected session", "status", resp.StatusCode, "path", path)
		}
		return nil, httpErr
	}

	return resp, nil
}

// requestID forwards the console request id, or mints one for background work
func requestID(ctx context.Context) string {
	if id := chimw.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// encodeBody turns a request body into a reader and its content type
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case models.MutationPayload:
		return encodePayload(b)
	case *models.MutationPayload:
		if b == nil {
			return nil, "", nil
		}
		return encodePayload(*b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

func encodePayload(p models.MutationPayload) (io.Reader, string, error) {
	if !p.HasFiles() {
		fields := p.Fields
		if fields == nil {
			fields = map[string]any{}
		}
		data, err := json.Marshal(fields)
		if err != nil {
			return nil, "", err
		}
		return bytes.NewReader(data), "application/json", nil
	}

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	for key, value := range p.Fields {
		text, err := formValue(value)
		if err != nil {
			return nil, "", fmt.Errorf("field %s: %w", key, err)
		}
		if err := writer.WriteField(key, text); err != nil {
			return nil, "", err
		}
	}

	for _, file := range p.Files {
		if file.Field == "" {
			return nil, "", errors.New("file without form field name")
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, file.Field, file.Filename))
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header.Set("Content-Type", contentType)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", err
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return buf, writer.FormDataContentType(), nil
}

// formValue renders a field for multipart: scalars as text, the rest as JSON
func formValue(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool, int, int64, float64:
		return fmt.Sprint(v), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func filenameFromDisposition(header, fallback string) string {
	if header == "" {
		return fallback
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return fallback
	}
	if name := params["filename"]; name != "" {
		return name
	}
	return fallback
}
