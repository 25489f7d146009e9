package d1

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	defaultBaseURL = "https://api.cloudflare.com/client/v4"
	defaultTimeout = 30 * time.Second
)

// restTransport executes statements against the provider's REST API. The
// blocking HTTP client is the simplest execution path and needs no bridge.
type restTransport struct {
	client  *http.Client
	baseURL string
	token   string
	legacy  bool
	logger  Logger
}

func newRESTTransport(cfg Config) *restTransport {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &restTransport{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 32,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: joinURL(base, "/accounts/"+cfg.AccountID+"/d1/database/"+cfg.DatabaseID),
		token:   cfg.APIToken,
		legacy:  cfg.LegacyEndpoint,
		logger:  cfg.Logger,
	}
}

// restEnvelope is the provider's outer response envelope.
type restEnvelope struct {
	Success bool              `json:"success"`
	Errors  []restErrorDetail `json:"errors"`
	Result  []restResultEntry `json:"result"`
}

type restErrorDetail struct {
	Message string `json:"message"`
}

// restResultEntry holds one statement's result. Results is columnar for /raw
// and an object array for /query, so it stays raw until the shape is known.
type restResultEntry struct {
	Results json.RawMessage `json:"results"`
	Meta    restMeta        `json:"meta"`
	Success bool            `json:"success"`
}

type restRequest struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params,omitempty"`
}

func (t *restTransport) execute(ctx context.Context, query string, args []any) (queryResult, error) {
	params, err := prepareParams(args)
	if err != nil {
		return queryResult{}, err
	}
	endpoint := "/raw"
	if t.legacy {
		endpoint = "/query"
	}
	requestID := uuid.NewString()
	start := time.Now()
	res, err := t.post(ctx, endpoint, requestID, restRequest{SQL: query, Params: params})
	if t.logger != nil {
		t.logger(QueryEvent{
			SQL:       query,
			Params:    len(params),
			Duration:  time.Since(start),
			RequestID: requestID,
			Err:       err,
		})
	}
	return res, err
}

func (t *restTransport) post(ctx context.Context, endpoint, requestID string, payload restRequest) (queryResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return queryResult{}, wrapOperational(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return queryResult{}, wrapOperational(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)

	resp, err := t.client.Do(req)
	if err != nil {
		return queryResult{}, wrapOperational(errors.Wrap(err, "http request failed"), "query")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return queryResult{}, wrapOperational(errors.Wrap(err, "read response"), "query")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return queryResult{}, operationalError("http error %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var envelope restEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return queryResult{}, wrapOperational(errors.Wrap(err, "decode response"), "query")
	}
	if !envelope.Success {
		if len(envelope.Errors) > 0 {
			return queryResult{}, operationalError("provider error: %s", envelope.Errors[0].Message)
		}
		return queryResult{}, operationalError("provider request failed")
	}
	if len(envelope.Result) == 0 {
		return queryResult{}, nil
	}
	entry := envelope.Result[0]
	return t.normalize(entry)
}

func (t *restTransport) normalize(entry restResultEntry) (queryResult, error) {
	meta := entry.Meta.toMeta()
	if len(entry.Results) == 0 {
		return queryResult{meta: meta}, nil
	}
	if t.legacy {
		var objs []json.RawMessage
		if err := json.Unmarshal(entry.Results, &objs); err != nil {
			return queryResult{}, wrapOperational(err, "decode result rows")
		}
		res, err := normalizeObjectShape(objs, meta)
		if err != nil {
			return queryResult{}, wrapOperational(err, "normalize result")
		}
		return res, nil
	}
	var raw rawResults
	if err := json.Unmarshal(entry.Results, &raw); err != nil {
		return queryResult{}, wrapOperational(err, "decode result rows")
	}
	res, err := normalizeRawShape(raw, meta)
	if err != nil {
		return queryResult{}, wrapOperational(err, "normalize result")
	}
	return res, nil
}

func (t *restTransport) close() error {
	t.client.CloseIdleConnections()
	return nil
}

func joinURL(base, path string) string {
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}
