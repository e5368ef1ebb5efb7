package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-sampler/internal/weather"
)

// DefaultOpenWeatherURL is the OpenWeatherMap current conditions endpoint.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// OpenWeatherProvider implements the weather.Provider interface for OpenWeatherMap.
type OpenWeatherProvider struct {
	name     string
	apiKey   string
	location string
	baseURL  string
	client   *http.Client
	circuit  *gobreaker.CircuitBreaker
	now      func() time.Time
}

// Option customizes an OpenWeatherProvider.
type Option func(*OpenWeatherProvider)

// WithBaseURL points the provider at a different endpoint.
func WithBaseURL(u string) Option {
	return func(p *OpenWeatherProvider) {
		if u != "" {
			p.baseURL = u
		}
	}
}

// WithClock replaces the clock used to stamp capture times.
func WithClock(now func() time.Time) Option {
	return func(p *OpenWeatherProvider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(cfg BreakerConfig) Option {
	return func(p *OpenWeatherProvider) {
		p.circuit = newCircuitBreaker(p.name, cfg)
	}
}

func NewOpenWeatherProvider(client *http.Client, apiKey, location string, opts ...Option) *OpenWeatherProvider {
	p := &OpenWeatherProvider{
		name:     "openweathermap",
		apiKey:   apiKey,
		location: location,
		baseURL:  DefaultOpenWeatherURL,
		client:   client,
		now:      time.Now,
	}
	p.circuit = newCircuitBreaker(p.name, DefaultBreaker)

	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// Fetch performs a single GET for the configured location in metric units.
func (p *OpenWeatherProvider) Fetch(ctx context.Context) (weather.Reading, error) {
	if p.apiKey == "" {
		return weather.Reading{}, fmt.Errorf("%w: openweather api key is not configured", weather.ErrFetchFailed)
	}

	values := url.Values{}
	values.Set("q", p.location)
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")

	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return weather.Reading{}, fmt.Errorf("%w: build request: %v", weather.ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	capturedAt := p.now()

	body, err := doRequest(p.client, p.circuit, req, p.apiKey)
	if err != nil {
		return weather.Reading{}, err
	}

	conditions, err := parseOpenWeather(body)
	if err != nil {
		return weather.Reading{}, err
	}

	return weather.Reading{
		CaptureTime: capturedAt,
		Location:    p.location,
		Conditions:  conditions,
	}, nil
}

type openWeatherPayload struct {
	Sys *struct {
		Country string `json:"country"`
		Sunrise int64  `json:"sunrise"`
		Sunset  int64  `json:"sunset"`
	} `json:"sys"`
	Main *struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Pressure  float64 `json:"pressure"`
		Humidity  float64 `json:"humidity"`
	} `json:"main"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
	Wind *struct {
		Speed float64  `json:"speed"`
		Deg   *float64 `json:"deg"`
	} `json:"wind"`
	Clouds *struct {
		All float64 `json:"all"`
	} `json:"clouds"`
	Visibility *float64 `json:"visibility"`
	Rain       *struct {
		OneH *float64 `json:"1h"`
	} `json:"rain"`
	Snow *struct {
		OneH *float64 `json:"1h"`
	} `json:"snow"`
}

// parseOpenWeather maps the provider payload into flat conditions. Missing
// wind direction and visibility default to zero; any other missing section
// makes the payload malformed.
func parseOpenWeather(body []byte) (weather.Conditions, error) {
	var payload openWeatherPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return weather.Conditions{}, fmt.Errorf("%w: %v", weather.ErrFetchMalformed, err)
	}

	switch {
	case payload.Main == nil:
		return weather.Conditions{}, fmt.Errorf("%w: missing main", weather.ErrFetchMalformed)
	case payload.Sys == nil:
		return weather.Conditions{}, fmt.Errorf("%w: missing sys", weather.ErrFetchMalformed)
	case len(payload.Weather) == 0:
		return weather.Conditions{}, fmt.Errorf("%w: missing weather", weather.ErrFetchMalformed)
	case payload.Wind == nil:
		return weather.Conditions{}, fmt.Errorf("%w: missing wind", weather.ErrFetchMalformed)
	case payload.Clouds == nil:
		return weather.Conditions{}, fmt.Errorf("%w: missing clouds", weather.ErrFetchMalformed)
	}

	c := weather.Conditions{
		Country:              payload.Sys.Country,
		Temperature:          payload.Main.Temp,
		FeelsLike:            payload.Main.FeelsLike,
		TempMin:              payload.Main.TempMin,
		TempMax:              payload.Main.TempMax,
		Pressure:             roundInt(payload.Main.Pressure),
		Humidity:             roundInt(payload.Main.Humidity),
		Condition:            payload.Weather[0].Main,
		ConditionDescription: payload.Weather[0].Description,
		WindSpeed:            payload.Wind.Speed,
		Clouds:               roundInt(payload.Clouds.All),
		Sunrise:              payload.Sys.Sunrise,
		Sunset:               payload.Sys.Sunset,
	}
	if payload.Wind.Deg != nil {
		c.WindDeg = roundInt(*payload.Wind.Deg)
	}
	if payload.Visibility != nil {
		c.Visibility = roundInt(*payload.Visibility)
	}
	if payload.Rain != nil && payload.Rain.OneH != nil {
		v := *payload.Rain.OneH
		c.Rain1h = &v
	}
	if payload.Snow != nil && payload.Snow.OneH != nil {
		v := *payload.Snow.OneH
		c.Snow1h = &v
	}

	return c, nil
}

func roundInt(v float64) int {
	return int(math.Round(v))
}
