package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/levenlabs/go-lflag"
	"github.com/robfig/cron/v3"

	"github.com/acepenergy/acep/pkg/common"
	"github.com/acepenergy/acep/pkg/log"
	"github.com/acepenergy/acep/pkg/metrics"
	"github.com/acepenergy/acep/pkg/types"
)

// Location identifies where a forecast is for.
type Location struct {
	Latitude  float64
	Longitude float64
	Timezone  string
}

func (l Location) key() string {
	return strconv.FormatFloat(l.Latitude, 'f', 3, 64) + "," +
		strconv.FormatFloat(l.Longitude, 'f', 3, 64) + "," + l.Timezone
}

type cacheEntry struct {
	fetched time.Time
	days    int
	daily   []DailyForecast
}

// Client fetches forecasts from the open-meteo API and caches them per
// location.
type Client struct {
	apiURL   string
	cacheFor time.Duration
	schedule string
	client   *http.Client
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
	known map[string]knownLocation

	cron *cron.Cron
}

type knownLocation struct {
	loc  Location
	days int
}

// Configured returns a Client whose settings come from flags.
func Configured() *Client {
	c := newClient()
	apiURL := lflag.String("weather-api-url", "https://api.open-meteo.com/v1/forecast", "URL for the open-meteo forecast API")
	cacheFor := lflag.Duration("weather-cache-duration", 30*time.Minute, "How long a fetched forecast is served before refetching")
	schedule := lflag.String("weather-refresh-schedule", "@every 30m", "Cron schedule for refreshing cached forecasts (empty disables)")

	lflag.Do(func() {
		c.apiURL = *apiURL
		c.cacheFor = *cacheFor
		c.schedule = *schedule
	})
	return c
}

// New returns a Client for the given API URL with caching of cacheFor.
func New(apiURL string, cacheFor time.Duration) *Client {
	c := newClient()
	c.apiURL = apiURL
	c.cacheFor = cacheFor
	return c
}

func newClient() *Client {
	return &Client{
		client: common.HTTPClient(30 * time.Second),
		now:    time.Now,
		cache:  make(map[string]cacheEntry),
		known:  make(map[string]knownLocation),
	}
}

// Forecast returns daily forecasts from today in the location's timezone
// through days days later. Cached results younger than the cache duration are
// returned without a request.
func (c *Client) Forecast(ctx context.Context, loc Location, days int) ([]DailyForecast, error) {
	if days < 1 {
		days = 1
	}
	key := loc.key()

	c.mu.Lock()
	c.known[key] = knownLocation{loc: loc, days: days}
	entry, ok := c.cache[key]
	c.mu.Unlock()
	if ok && entry.days >= days && c.now().Sub(entry.fetched) < c.cacheFor {
		return trimDays(entry.daily, days+1), nil
	}

	daily, err := c.fetch(ctx, loc, days)
	if err != nil {
		if ok {
			log.Ctx(ctx).WarnContext(ctx, "serving stale weather forecast", slog.Any("error", err))
			return trimDays(entry.daily, days+1), nil
		}
		return nil, err
	}
	return daily, nil
}

func trimDays(daily []DailyForecast, days int) []DailyForecast {
	if len(daily) > days {
		return daily[:days]
	}
	return daily
}

func (c *Client) fetch(ctx context.Context, loc Location, days int) ([]DailyForecast, error) {
	tz, err := time.LoadLocation(loc.Timezone)
	if err != nil || loc.Timezone == "" {
		tz = time.UTC
	}
	start := types.DayOf(c.now().In(tz))
	end := start.AddDays(days)

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	q.Set("hourly", "weather_code")
	q.Set("timezone", tz.String())
	q.Set("start_date", start.String())
	q.Set("end_date", end.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create weather request: %w", err)
	}
	body, err := common.ReadBody(c.client, req)
	if err != nil {
		metrics.WeatherFetch(false)
		return nil, fmt.Errorf("failed to fetch weather: %w", err)
	}
	var resp openMeteoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.WeatherFetch(false)
		return nil, fmt.Errorf("failed to decode weather response: %w", err)
	}
	metrics.WeatherFetch(true)

	daily := dailyForecasts(resp)
	c.mu.Lock()
	c.cache[loc.key()] = cacheEntry{fetched: c.now(), days: days, daily: daily}
	c.mu.Unlock()
	log.Ctx(ctx).DebugContext(
		ctx,
		"fetched weather forecast",
		slog.Float64("latitude", loc.Latitude),
		slog.Float64("longitude", loc.Longitude),
		slog.Int("days", len(daily)),
	)
	return daily, nil
}

// Refresh refetches every location that has been requested so far.
func (c *Client) Refresh(ctx context.Context) {
	c.mu.Lock()
	locs := make([]knownLocation, 0, len(c.known))
	for _, k := range c.known {
		locs = append(locs, k)
	}
	c.mu.Unlock()

	for _, k := range locs {
		if _, err := c.fetch(ctx, k.loc, k.days); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to refresh weather forecast", slog.Any("error", err))
		}
	}
}

// Start begins refreshing cached locations on the configured cron schedule.
// It is a no-op when the schedule is empty.
func (c *Client) Start(ctx context.Context) error {
	if c.schedule == "" {
		return nil
	}
	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.schedule, func() {
		c.Refresh(ctx)
	}); err != nil {
		return fmt.Errorf("invalid weather refresh schedule %q: %w", c.schedule, err)
	}
	c.cron.Start()
	return nil
}

// Stop halts the refresher and waits for a running refresh to finish.
func (c *Client) Stop() {
	if c.cron == nil {
		return
	}
	<-c.cron.Stop().Done()
}
