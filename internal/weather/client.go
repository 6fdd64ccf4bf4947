// Package weather fetches current conditions from OpenWeather and keeps the
// latest reading for every active challenge.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ecoproof-backend/internal/metrics"
	"ecoproof-backend/internal/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Config configures the OpenWeather client
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
	// RatePerSecond caps outbound requests; the free tier allows 60 per minute
	RatePerSecond float64
}

// Reading is a normalized current-conditions report
type Reading struct {
	City          string  `json:"city"`
	Country       string  `json:"country"`
	Latitude      float64 `json:"latitude"`
	Longitude     float64 `json:"longitude"`
	Temperature   float64 `json:"temperature"`
	FeelsLike     float64 `json:"feels_like"`
	TempMin       float64 `json:"temp_min"`
	TempMax       float64 `json:"temp_max"`
	Humidity      float64 `json:"humidity"`
	Pressure      float64 `json:"pressure"`
	WindSpeed     float64 `json:"wind_speed"`
	WindDirection float64 `json:"wind_direction"`
	Visibility    uint32  `json:"visibility"`
	Cloudiness    uint32  `json:"cloudiness"`
	Condition     string  `json:"weather_condition"`
	Description   string  `json:"weather_description"`
	Timestamp     int64   `json:"timestamp"`
	Sunrise       int64   `json:"sunrise"`
	Sunset        int64   `json:"sunset"`
}

// StatusError is a non-200 answer from the weather API
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("weather API returned status %d: %s", e.Code, e.Body)
}

type apiResponse struct {
	Coord struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	} `json:"coord"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Pressure  float64 `json:"pressure"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Visibility uint32 `json:"visibility"`
	Wind       struct {
		Speed float64 `json:"speed"`
		Deg   float64 `json:"deg"`
	} `json:"wind"`
	Clouds struct {
		All uint32 `json:"all"`
	} `json:"clouds"`
	Dt  int64 `json:"dt"`
	Sys struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Name string `json:"name"`
}

func (r *apiResponse) reading(fallback models.Coordinates) Reading {
	out := Reading{
		City:          r.Name,
		Country:       r.Sys.Country,
		Latitude:      fallback.Latitude,
		Longitude:     fallback.Longitude,
		Temperature:   r.Main.Temp,
		FeelsLike:     r.Main.FeelsLike,
		TempMin:       r.Main.TempMin,
		TempMax:       r.Main.TempMax,
		Humidity:      r.Main.Humidity,
		Pressure:      r.Main.Pressure,
		WindSpeed:     r.Wind.Speed,
		WindDirection: r.Wind.Deg,
		Visibility:    r.Visibility,
		Cloudiness:    r.Clouds.All,
		Timestamp:     r.Dt,
		Sunrise:       r.Sys.Sunrise,
		Sunset:        r.Sys.Sunset,
	}
	if r.Coord.Lat != nil {
		out.Latitude = *r.Coord.Lat
	}
	if r.Coord.Lon != nil {
		out.Longitude = *r.Coord.Lon
	}
	if len(r.Weather) > 0 {
		out.Condition = r.Weather[0].Main
		out.Description = r.Weather[0].Description
	}
	return out
}

// Client is a rate limited, caching OpenWeather client
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	cache   *expirable.LRU[string, Reading]
}

// NewClient creates a new weather client
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("weather API key is not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1),
		cache:   expirable.NewLRU[string, Reading](cfg.CacheSize, nil, cfg.CacheTTL),
	}, nil
}

// ByCoordinates returns current conditions at coords
func (c *Client) ByCoordinates(ctx context.Context, coords models.Coordinates) (*Reading, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(coords.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(coords.Longitude, 'f', -1, 64))
	// about 1km of precision is plenty for current conditions
	key := fmt.Sprintf("coord:%.2f,%.2f", coords.Latitude, coords.Longitude)
	return c.fetch(ctx, key, q, coords)
}

// ByCity returns current conditions for a city name such as "Denver,US"
func (c *Client) ByCity(ctx context.Context, city string) (*Reading, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, models.ErrInvalidInput.WithCause(errors.New("city is required"))
	}
	q := url.Values{}
	q.Set("q", city)
	return c.fetch(ctx, "city:"+strings.ToLower(city), q, models.Coordinates{})
}

func (c *Client) fetch(ctx context.Context, key string, q url.Values, fallback models.Coordinates) (*Reading, error) {
	if r, ok := c.cache.Get(key); ok {
		metrics.WeatherFetches.WithLabelValues("cache_hit").Inc()
		return &r, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/weather?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build weather request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.WeatherFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to fetch weather: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.WeatherFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to read weather response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		metrics.WeatherFetches.WithLabelValues("status_" + strconv.Itoa(resp.StatusCode)).Inc()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		metrics.WeatherFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to parse weather response: %w", err)
	}

	r := parsed.reading(fallback)
	c.cache.Add(key, r)
	metrics.WeatherFetches.WithLabelValues("ok").Inc()
	return &r, nil
}
