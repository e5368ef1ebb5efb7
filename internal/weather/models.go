package weather

import (
	"encoding/json"
	"time"
)

// isoLayout is ISO-8601 with millisecond precision and a numeric zone offset.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Conditions holds the normalized current conditions reported by a provider.
// Units are metric: temperatures in °C, wind speed in m/s.
type Conditions struct {
	Country string

	Temperature float64
	FeelsLike   float64
	TempMin     float64
	TempMax     float64
	Pressure    int // hPa
	Humidity    int // %

	Condition            string
	ConditionDescription string

	WindSpeed  float64
	WindDeg    int
	Clouds     int // %
	Visibility int // meters

	Sunrise int64 // epoch seconds
	Sunset  int64 // epoch seconds

	// Precipitation over the last hour in mm; nil when not reported.
	Rain1h *float64
	Snow1h *float64
}

// Reading is one sample taken by a cycle. It is passed by value and never
// modified after the provider returns it.
type Reading struct {
	// CaptureTime is the local clock right before the upstream request was
	// sent. It is never derived from the provider's own timestamp.
	CaptureTime time.Time
	Location    string
	Conditions  Conditions
}

// CaptureTimeMS returns the capture time in milliseconds since the epoch.
func (r Reading) CaptureTimeMS() int64 {
	return r.CaptureTime.UnixMilli()
}

// Message is the flat wire shape consumed by the downstream pipeline.
// Field names are a contract; do not rename.
type Message struct {
	CaptureTimeMS  int64  `json:"capture_time_ms"`
	CaptureTimeISO string `json:"capture_time_iso"`
	Location       string `json:"location"`
	Country        string `json:"country"`

	Temperature float64 `json:"temperature"`
	FeelsLike   float64 `json:"feels_like"`
	TempMin     float64 `json:"temp_min"`
	TempMax     float64 `json:"temp_max"`
	Pressure    int     `json:"pressure"`
	Humidity    int     `json:"humidity"`

	Condition            string `json:"condition"`
	ConditionDescription string `json:"condition_description"`

	WindSpeed  float64 `json:"wind_speed"`
	WindDeg    int     `json:"wind_deg"`
	Clouds     int     `json:"clouds"`
	Visibility int     `json:"visibility"`

	Sunrise int64 `json:"sunrise"`
	Sunset  int64 `json:"sunset"`

	Rain1h *float64 `json:"rain_1h,omitempty"`
	Snow1h *float64 `json:"snow_1h,omitempty"`
}

// Message flattens the reading into its wire shape.
func (r Reading) Message() Message {
	c := r.Conditions
	return Message{
		CaptureTimeMS:        r.CaptureTimeMS(),
		CaptureTimeISO:       r.CaptureTime.Local().Format(isoLayout),
		Location:             r.Location,
		Country:              c.Country,
		Temperature:          c.Temperature,
		FeelsLike:            c.FeelsLike,
		TempMin:              c.TempMin,
		TempMax:              c.TempMax,
		Pressure:             c.Pressure,
		Humidity:             c.Humidity,
		Condition:            c.Condition,
		ConditionDescription: c.ConditionDescription,
		WindSpeed:            c.WindSpeed,
		WindDeg:              c.WindDeg,
		Clouds:               c.Clouds,
		Visibility:           c.Visibility,
		Sunrise:              c.Sunrise,
		Sunset:               c.Sunset,
		Rain1h:               c.Rain1h,
		Snow1h:               c.Snow1h,
	}
}

// Encode serializes the reading as flat UTF-8 JSON.
func (r Reading) Encode() ([]byte, error) {
	return json.Marshal(r.Message())
}
