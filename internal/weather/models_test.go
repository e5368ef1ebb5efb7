package weather

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/matryer/is"
)

func sampleReading() Reading {
	return Reading{
		CaptureTime: time.UnixMilli(1700000123456),
		Location:    "Tokyo",
		Conditions: Conditions{
			Country:              "JP",
			Temperature:          15.5,
			FeelsLike:            14.8,
			TempMin:              13,
			TempMax:              17.2,
			Pressure:             1013,
			Humidity:             65,
			Condition:            "Clouds",
			ConditionDescription: "broken clouds",
			WindSpeed:            3.6,
			WindDeg:              200,
			Clouds:               75,
			Visibility:           10000,
			Sunrise:              1700000000,
			Sunset:               1700040000,
		},
	}
}

// strictMessage mirrors what a type-checking downstream consumer expects.
type strictMessage struct {
	CaptureTimeMS        int64   `json:"capture_time_ms"`
	CaptureTimeISO       string  `json:"capture_time_iso"`
	Location             string  `json:"location"`
	Country              string  `json:"country"`
	Temperature          float64 `json:"temperature"`
	FeelsLike            float64 `json:"feels_like"`
	TempMin              float64 `json:"temp_min"`
	TempMax              float64 `json:"temp_max"`
	Pressure             int     `json:"pressure"`
	Humidity             int     `json:"humidity"`
	Condition            string  `json:"condition"`
	ConditionDescription string  `json:"condition_description"`
	WindSpeed            float64 `json:"wind_speed"`
	WindDeg              int     `json:"wind_deg"`
	Clouds               int     `json:"clouds"`
	Visibility           int     `json:"visibility"`
	Sunrise              int64   `json:"sunrise"`
	Sunset               int64   `json:"sunset"`
}

func TestEncodeHasAllRequiredFields(t *testing.T) {
	is := is.New(t)

	body, err := sampleReading().Encode()
	is.NoErr(err)

	var raw map[string]any
	is.NoErr(json.Unmarshal(body, &raw))

	required := []string{
		"capture_time_ms", "capture_time_iso", "location", "country",
		"temperature", "feels_like", "temp_min", "temp_max",
		"pressure", "humidity", "condition", "condition_description",
		"wind_speed", "wind_deg", "clouds", "visibility", "sunrise", "sunset",
	}
	for _, field := range required {
		_, ok := raw[field]
		is.True(ok) // required field present
	}
	_, hasRain := raw["rain_1h"]
	is.True(!hasRain) // optional precipitation omitted when unreported

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var msg strictMessage
	is.NoErr(dec.Decode(&msg))

	is.Equal(msg.CaptureTimeMS, int64(1700000123456))
	is.Equal(msg.Temperature, 15.5)
	is.Equal(msg.Humidity, 65)
	is.Equal(msg.Pressure, 1013)
	is.Equal(msg.Location, "Tokyo")
}

func TestCaptureTimeISOMatchesMillis(t *testing.T) {
	is := is.New(t)

	msg := sampleReading().Message()

	parsed, err := time.Parse(isoLayout, msg.CaptureTimeISO)
	is.NoErr(err)
	is.Equal(parsed.UnixMilli(), msg.CaptureTimeMS)
	is.Equal(msg.CaptureTimeISO[19:23], ".456") // millisecond precision
}

func TestEncodeIncludesPrecipitationWhenReported(t *testing.T) {
	is := is.New(t)

	r := sampleReading()
	snow := 1.25
	r.Conditions.Snow1h = &snow

	body, err := r.Encode()
	is.NoErr(err)

	var raw map[string]any
	is.NoErr(json.Unmarshal(body, &raw))
	is.Equal(raw["snow_1h"], 1.25)
}
