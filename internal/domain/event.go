package domain

import (
	"context"
	"time"
)

// RawEvent represents an unprocessed message from the source topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// observationPayload is the JSON shape of a daily field observation on the
// source topic. Dates are calendar dates ("2006-01-02").
type observationPayload struct {
	FieldID       string   `json:"field_id"`
	Crop          string   `json:"crop"`
	Date          string   `json:"date"`
	PlantingDate  string   `json:"planting_date,omitempty"`
	MaxTemp       float64  `json:"max_temp"`
	MinTemp       float64  `json:"min_temp"`
	BaseTemp      float64  `json:"base_temp"`
	WindSpeed     *float64 `json:"wind_speed,omitempty"`
	RHMin         *float64 `json:"rh_min,omitempty"`
	CanopyHeight  *float64 `json:"canopy_height,omitempty"`
	CumulativeGDD *float64 `json:"cumulative_gdd,omitempty"`
}

// FieldObservation is one day of weather for a planted field. Optional
// climatic factors are nil when the producer did not measure them.
type FieldObservation struct {
	FieldID      string
	Crop         string
	Date         time.Time
	PlantingDate time.Time // zero when the crop profile's date applies
	MaxTemp      float64
	MinTemp      float64
	BaseTemp     float64

	WindSpeed     *float64
	RHMin         *float64
	CanopyHeight  *float64
	CumulativeGDD *float64
}

// KcRecord is the enriched crop coefficient for a field and day, destined
// for the sink topic.
type KcRecord struct {
	ID                string      `json:"id"`
	FieldID           string      `json:"field_id"`
	Crop              string      `json:"crop"`
	Date              string      `json:"date"`
	PlantingDate      string      `json:"planting_date"`
	DaysSincePlanting Days        `json:"days_since_planting"`
	Stage             Stage       `json:"stage"`
	Kc                float64     `json:"kc"`
	DailyGDD          float64     `json:"daily_gdd"`
	CumulativeGDD     HeatUnits   `json:"cumulative_gdd"`
	GDDStage          Stage       `json:"gdd_stage,omitempty"`
	GDDKc             *float64    `json:"gdd_kc,omitempty"`
	Environment       Environment `json:"environment"`
	ProcessedAt       time.Time   `json:"processed_at"`
}

// OutputEvent is the serialized form destined for the sink topic.
type OutputEvent struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}
