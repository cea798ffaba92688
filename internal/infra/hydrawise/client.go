// Package hydrawise is a rate-limited client for the Hydrawise v1 REST API.
package hydrawise

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"irrigation_monitor/internal/domain/collection"
	"irrigation_monitor/internal/domain/irrigation"
	"irrigation_monitor/internal/infra/ratelimit"
)

const (
	endpointCustomerDetails = "customerdetails"
	endpointStatusSchedule  = "statusschedule"
	endpointSetZone         = "setzone"

	// notScheduled is the "time" value threshold above which a relay has no
	// upcoming run.
	notScheduled = 365 * 24 * 3600
)

// Limiter is the quota gate every request goes through.
type Limiter interface {
	Acquire(ctx context.Context, cat ratelimit.Category) error
	Advise(endpoint string, delay time.Duration)
	WaitAdvisory(ctx context.Context, endpoint string) error
}

type Config struct {
	BaseURL       string
	APIKey        string
	Timeout       time.Duration // per request
	MaxRetryAfter time.Duration // cap on a server Retry-After wait
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter Limiter
	logger  *logrus.Entry
	now     func() time.Time

	mu           sync.Mutex
	controllerID string // resolved lazily from customerdetails

	// concurrent first callers share one customerdetails request
	resolveGroup singleflight.Group
}

func NewClient(cfg Config, limiter Limiter, logger *logrus.Entry) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetryAfter <= 0 {
		cfg.MaxRetryAfter = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: limiter,
		logger:  logger,
		now:     time.Now,
	}
}

// get performs one API call: honour the endpoint's next-poll advisory, take
// a quota slot, and retry once after a 429.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, cat ratelimit.Category, out any) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.cfg.APIKey)
	reqURL := c.cfg.BaseURL + "/" + endpoint + ".php?" + params.Encode()
	log := c.logger.WithFields(logrus.Fields{"endpoint": endpoint, "category": cat})

	if err := c.limiter.WaitAdvisory(ctx, endpoint); err != nil {
		return err
	}
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Acquire(ctx, cat); err != nil {
			return err
		}
		body, retryAfter, err := c.do(ctx, reqURL)
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				return fmt.Errorf("%w: decoding %s response: %v", collection.ErrTransport, endpoint, err)
			}
			c.adviseFromBody(endpoint, body)
			return nil
		}
		if retryAfter < 0 || attempt > 0 {
			return err
		}
		log.WithField("retry_after", retryAfter).Warn("Rate limited by vendor, retrying once")
		if err := sleepContext(ctx, retryAfter); err != nil {
			return err
		}
	}
}

// do returns the body on 2xx. retryAfter is >= 0 only for a 429.
func (c *Client) do(ctx context.Context, reqURL string) ([]byte, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, -1, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, -1, ctx.Err()
		}
		return nil, -1, fmt.Errorf("%w: %s", collection.ErrTransport, redact(err.Error(), c.cfg.APIKey))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, -1, fmt.Errorf("%w: reading response: %v", collection.ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, c.retryAfter(resp.Header.Get("Retry-After")), fmt.Errorf("%w: vendor returned 429", collection.ErrTransport)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, -1, fmt.Errorf("%w: vendor returned %d", collection.ErrAuthentication, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, -1, fmt.Errorf("%w: vendor returned %d", collection.ErrTransport, resp.StatusCode)
	}
	if strings.Contains(strings.ToLower(string(body)), "unauthorised") || strings.Contains(strings.ToLower(string(body)), "invalid api key") {
		return nil, -1, fmt.Errorf("%w: vendor rejected the API key", collection.ErrAuthentication)
	}
	return body, -1, nil
}

func (c *Client) retryAfter(header string) time.Duration {
	wait := 60 * time.Second
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs >= 0 {
		wait = time.Duration(secs) * time.Second
	}
	if wait > c.cfg.MaxRetryAfter {
		wait = c.cfg.MaxRetryAfter
	}
	return wait
}

func (c *Client) adviseFromBody(endpoint string, body []byte) {
	var np struct {
		NextPoll int `json:"nextpoll"`
	}
	if json.Unmarshal(body, &np) == nil && np.NextPoll > 0 {
		c.limiter.Advise(endpoint, time.Duration(np.NextPoll)*time.Second)
	}
}

func (c *Client) customerDetails(ctx context.Context) (*customerDetails, error) {
	var out customerDetails
	params := url.Values{"type": {"controllers"}}
	if err := c.get(ctx, endpointCustomerDetails, params, ratelimit.General, &out); err != nil {
		return nil, fmt.Errorf("customerdetails: %w", err)
	}
	return &out, nil
}

func (c *Client) resolveControllerID(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.controllerID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}
	v, err, _ := c.resolveGroup.Do(endpointCustomerDetails, func() (interface{}, error) {
		details, err := c.customerDetails(ctx)
		if err != nil {
			return "", err
		}
		if details.ControllerID == 0 && len(details.Controllers) > 0 {
			details.ControllerID = details.Controllers[0].ControllerID
		}
		if details.ControllerID == 0 {
			return "", fmt.Errorf("%w: account has no controller", collection.ErrNoData)
		}
		id := strconv.FormatInt(details.ControllerID, 10)
		c.mu.Lock()
		c.controllerID = id
		c.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) statusSchedule(ctx context.Context) (*statusSchedule, error) {
	id, err := c.resolveControllerID(ctx)
	if err != nil {
		return nil, err
	}
	var out statusSchedule
	if err := c.get(ctx, endpointStatusSchedule, url.Values{"controller_id": {id}}, ratelimit.General, &out); err != nil {
		return nil, fmt.Errorf("statusschedule: %w", err)
	}
	return &out, nil
}

// ExpectedZoneCount is the number of zones configured on the controller.
func (c *Client) ExpectedZoneCount(ctx context.Context) (int, error) {
	st, err := c.statusSchedule(ctx)
	if err != nil {
		return 0, err
	}
	return len(st.Relays), nil
}

// ControllerStatus combines customerdetails and statusschedule into a
// snapshot of the controller.
func (c *Client) ControllerStatus(ctx context.Context) (*irrigation.ControllerStatus, error) {
	details, err := c.customerDetails(ctx)
	if err != nil {
		return nil, err
	}
	st, err := c.statusSchedule(ctx)
	if err != nil {
		return nil, err
	}

	out := &irrigation.ControllerStatus{FetchedAt: c.now()}
	id, _ := c.resolveControllerID(ctx)
	for _, ctl := range details.Controllers {
		if strconv.FormatInt(ctl.ControllerID, 10) != id && len(details.Controllers) > 1 {
			continue
		}
		out.ControllerID = strconv.FormatInt(ctl.ControllerID, 10)
		out.Name = ctl.Name
		if ctl.LastContact > 0 {
			out.LastContact = time.Unix(ctl.LastContact, 0)
		}
		out.Online = !strings.EqualFold(ctl.Status, "offline")
		break
	}
	base := c.now()
	if st.Time > 0 {
		base = time.Unix(st.Time, 0)
	}
	for _, r := range st.Relays {
		out.Zones = append(out.Zones, zoneState(r, base))
	}
	return out, nil
}

func zoneState(r relay, base time.Time) irrigation.ZoneState {
	z := irrigation.ZoneState{ID: strconv.Itoa(r.Relay), Name: r.Name}
	switch {
	case r.Time == 1:
		z.RunningFor = time.Duration(r.Run) * time.Second
	case r.Time > 1 && r.Time < notScheduled:
		z.NextRun = base.Add(time.Duration(r.Time) * time.Second)
		z.NextRunMinutes = float64(r.Run) / 60
	}
	if r.SuspendedUntil > 0 {
		z.SuspendedUntil = time.Unix(r.SuspendedUntil, 0)
	}
	return z
}

// relayFor maps a zone number to the vendor relay id setzone expects.
func (c *Client) relayFor(ctx context.Context, zoneID string) (string, error) {
	st, err := c.statusSchedule(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range st.Relays {
		if strconv.Itoa(r.Relay) == zoneID || strconv.FormatInt(r.RelayID, 10) == zoneID {
			return strconv.FormatInt(r.RelayID, 10), nil
		}
	}
	return "", fmt.Errorf("zone %s is not configured on the controller", zoneID)
}

func (c *Client) setZone(ctx context.Context, params url.Values) error {
	var out setZoneResponse
	if err := c.get(ctx, endpointSetZone, params, ratelimit.Privileged, &out); err != nil {
		return fmt.Errorf("setzone %s: %w", params.Get("action"), err)
	}
	if strings.EqualFold(out.MessageType, "error") {
		return fmt.Errorf("setzone %s: %s", params.Get("action"), out.Message)
	}
	c.logger.WithFields(logrus.Fields{"action": params.Get("action"), "relay_id": params.Get("relay_id")}).Info(out.Message)
	return nil
}

func (c *Client) RunZone(ctx context.Context, zoneID string, d time.Duration) error {
	relayID, err := c.relayFor(ctx, zoneID)
	if err != nil {
		return err
	}
	return c.setZone(ctx, url.Values{
		"action":    {"run"},
		"relay_id":  {relayID},
		"custom":    {strconv.Itoa(int(d / time.Second))},
		"period_id": {"999"},
	})
}

func (c *Client) StopZone(ctx context.Context, zoneID string) error {
	relayID, err := c.relayFor(ctx, zoneID)
	if err != nil {
		return err
	}
	return c.setZone(ctx, url.Values{"action": {"stop"}, "relay_id": {relayID}})
}

func (c *Client) StopAll(ctx context.Context) error {
	return c.setZone(ctx, url.Values{"action": {"stopall"}})
}

func redact(s, secret string) string {
	if secret == "" {
		return s
	}
	return strings.ReplaceAll(s, secret, "***")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// CappedEndpoints are the read endpoints whose next-poll advisories the
// limiter caps; the vendor routinely advises waits far longer than needed.
func CappedEndpoints() []string {
	return []string{endpointCustomerDetails, endpointStatusSchedule}
}
