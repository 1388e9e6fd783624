package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/your-org/facegate/internal/config"
)

// Client talks to the Frigate-compatible event source: snapshot fetches,
// liveness probes and sub-label pushes. Multiple upstream instances are
// supported by aligning Source.URLs with Source.Topics.
type Client struct {
	cfg    config.SourceConfig
	client *http.Client
}

func New(cfg config.SourceConfig) *Client {
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// URLForTopic resolves the upstream base URL for a bus topic.
func (c *Client) URLForTopic(topic string) (string, error) {
	if len(c.cfg.URLs) > 0 {
		for i, t := range c.cfg.Topics {
			if t == topic && i < len(c.cfg.URLs) {
				return c.cfg.URLs[i], nil
			}
		}
	}
	if c.cfg.URL != "" {
		return c.cfg.URL, nil
	}
	return "", fmt.Errorf("no source url configured for topic %s", topic)
}

// Snapshot fetches the best available image for an event.
func (c *Client) Snapshot(ctx context.Context, topic, eventID string) ([]byte, error) {
	base, err := c.URLForTopic(topic)
	if err != nil {
		return nil, err
	}
	u := fmt.Sprintf("%s/api/events/%s/snapshot.jpg?crop=1&h=500", strings.TrimRight(base, "/"), eventID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch snapshot: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Status probes the source's version endpoint.
func (c *Client) Status(ctx context.Context, topic string) error {
	base, err := c.URLForTopic(topic)
	if err != nil {
		return err
	}
	u := strings.TrimRight(base, "/") + "/api/version"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build status request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("source status: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("source status: status %d", resp.StatusCode)
	}
	return nil
}

// PushSubLabel writes the sorted, comma-joined list of matched names back to
// the event source. Disabled sources and empty name lists are no-ops.
func (c *Client) PushSubLabel(ctx context.Context, topic, eventID string, names []string) error {
	if !c.cfg.UpdateSubLabels || len(names) == 0 {
		return nil
	}
	base, err := c.URLForTopic(topic)
	if err != nil {
		return err
	}

	sorted := append([]string(nil), names...)
	sort.Strings(sorted)

	form := url.Values{}
	form.Set("subLabel", strings.Join(sorted, ", "))

	u := fmt.Sprintf("%s/api/events/%s/sub_label", strings.TrimRight(base, "/"), eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build sub_label request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("push sub_label: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("push sub_label: status %d", resp.StatusCode)
	}
	return nil
}
