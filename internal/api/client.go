package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/luifiio/bp4w-maq/internal/model"
)

const maxResponseBytes = 1 << 20

// Client is a thin HTTP client for the backend control API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the given base URL (e.g. http://host:port).
// A non-positive timeout falls back to 10s.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// Invoke issues one control command. It never returns an error: transport
// failures and backend rejections both come back as an Outcome with
// Success=false and a message for the user.
func (c *Client) Invoke(ctx context.Context, cmd model.Command, params Params) Outcome {
	path, ok := Endpoints[cmd]
	if !ok {
		return Outcome{Success: false, Message: fmt.Sprintf("unknown command %q", cmd)}
	}

	var body any
	if cmd == model.CommandLoggingStart {
		name := strings.TrimSpace(params.SessionName)
		if name == "" {
			name = DefaultSessionName
		}
		body = LoggingStartRequest{SessionName: name}
	}

	out, err := c.postJSON(ctx, path, body)
	if err != nil {
		return Outcome{Success: false, Message: "transport error: " + err.Error()}
	}
	return out
}

// Status fetches the backend's current status.
func (c *Client) Status(ctx context.Context) (model.SystemStatus, error) {
	var status model.SystemStatus
	if err := c.getJSON(ctx, StatusPath, &status); err != nil {
		return model.SystemStatus{}, err
	}
	return status, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any) (Outcome, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return Outcome{}, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return Outcome{}, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return Outcome{}, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return Outcome{}, err
	}
	return decodeOutcome(res, data), nil
}

func decodeOutcome(res *http.Response, data []byte) Outcome {
	ok := res.StatusCode >= 200 && res.StatusCode < 300
	msg := strings.TrimSpace(string(data))

	var out Outcome
	if err := json.Unmarshal(data, &out); err != nil {
		if !ok {
			if msg != "" {
				return Outcome{Success: false, Message: fmt.Sprintf("request failed: %s: %s", res.Status, msg)}
			}
			return Outcome{Success: false, Message: fmt.Sprintf("request failed: %s", res.Status)}
		}
		return Outcome{Success: false, Message: fmt.Sprintf("invalid response: %v", err)}
	}
	if !ok {
		out.Success = false
		if out.Message == "" {
			out.Message = fmt.Sprintf("request failed: %s", res.Status)
		}
	}
	return out
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
		msg := strings.TrimSpace(string(body))
		if msg != "" {
			return fmt.Errorf("request failed: %s: %s", res.Status, msg)
		}
		return fmt.Errorf("request failed: %s", res.Status)
	}

	decoder := json.NewDecoder(res.Body)
	return decoder.Decode(out)
}
