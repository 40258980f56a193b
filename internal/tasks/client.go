// Package tasks is a thin client for the external workspace-task service
// the /today and /newtask commands talk to.
package tasks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Task struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Due   string `json:"due,omitempty"` // YYYY-MM-DD
	Done  bool   `json:"done"`
}

type Client struct {
	base string
	key  string
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("tasks base url is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("tasks base url: %w", err)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base: base,
		key:  strings.TrimSpace(cfg.APIKey),
		http: &http.Client{Timeout: timeout},
	}, nil
}

// DueToday returns open tasks due on the given date (service-local).
func (c *Client) DueToday(ctx context.Context, day time.Time) ([]Task, error) {
	q := url.Values{}
	q.Set("due", day.Format("2006-01-02"))
	q.Set("done", "false")

	var out struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/tasks?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

func (c *Client) Create(ctx context.Context, title, due string) (Task, error) {
	body := struct {
		Title string `json:"title"`
		Due   string `json:"due,omitempty"`
	}{Title: title, Due: due}

	var out Task
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", body, &out); err != nil {
		return Task{}, err
	}
	return out, nil
}

func (c *Client) Complete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("task id is empty")
	}
	return c.do(ctx, http.MethodPost, "/v1/tasks/"+url.PathEscape(id)+"/complete", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.key != "" {
		req.Header.Set("Authorization", "Bearer "+c.key)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr)
		if apiErr.Error != "" {
			return fmt.Errorf("tasks service: %s (http %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("tasks service: http %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
