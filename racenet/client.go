package racenet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// ErrEmptyResponse marks a syntactically valid payload with no event name:
// the upstream occasionally serves these while an event is being rotated.
// Callers should treat it as a transient fetch failure, not retry inline.
var ErrEmptyResponse = errors.New("racenet: empty event response")

// Client fetches leaderboard pages from the rally results API.
type Client struct {
	BaseURL *url.URL
	HTTP    *http.Client

	// now is swappable for tests; it feeds the cache-busting nonce.
	now func() time.Time
}

func NewClient(base string) (*Client, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	return &Client{
		BaseURL: u,
		HTTP: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxConnsPerHost:     8,
				MaxIdleConnsPerHost: 8,
			},
		},
		now: time.Now,
	}, nil
}

// FetchPage requests a single (event, stage, page) leaderboard page and
// returns it wrapped in a time-stamped envelope. Stage 0 is the event
// summary. A response without an event name is rejected with
// ErrEmptyResponse.
func (c *Client) FetchPage(ctx context.Context, eventID int64, stage, page int, assists AssistFilter) (Envelope, error) {
	env := Envelope{EventID: eventID, Stage: stage, Page: page}

	if assists == "" {
		assists = AssistsAny
	}

	u := *c.BaseURL
	q := u.Query()
	q.Set("eventId", strconv.FormatInt(eventID, 10))
	q.Set("stageId", strconv.Itoa(stage))
	q.Set("page", strconv.Itoa(page))
	q.Set("assists", string(assists))
	q.Set("leaderboard", "true")
	q.Set("noCache", strconv.FormatInt(c.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return env, err
	}

	start := c.now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return env, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return env, fmt.Errorf("GET %s: status %d: %s", u.String(), resp.StatusCode, string(b))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return env, err
	}
	env.ResponseTime = c.now().Sub(start)

	if err := json.Unmarshal(body, &env.Response); err != nil {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return env, fmt.Errorf("decode event %d stage %d page %d: %v; body: %s", eventID, stage, page, err, snippet)
	}

	if env.Response.EventName == "" {
		return env, fmt.Errorf("event %d stage %d page %d: %w", eventID, stage, page, ErrEmptyResponse)
	}

	return env, nil
}
