package models

import (
	"time"

	"github.com/google/uuid"
)

type AggregateFunc string

const (
	AggCount  AggregateFunc = "count"
	AggSum    AggregateFunc = "sum"
	AggMin    AggregateFunc = "min"
	AggMax    AggregateFunc = "max"
	AggAvg    AggregateFunc = "avg"
	AggStdDev AggregateFunc = "stddev"
)

func (f AggregateFunc) Valid() bool {
	switch f {
	case AggCount, AggSum, AggMin, AggMax, AggAvg, AggStdDev:
		return true
	}
	return false
}

type TimelinePeriod string

const (
	PeriodDay   TimelinePeriod = "day"
	PeriodWeek  TimelinePeriod = "week"
	PeriodMonth TimelinePeriod = "month"
	PeriodYear  TimelinePeriod = "year"
)

func (p TimelinePeriod) Valid() bool {
	switch p {
	case PeriodDay, PeriodWeek, PeriodMonth, PeriodYear:
		return true
	}
	return false
}

var ChartTypes = []string{"line", "bar", "pie", "doughnut"}

// Chart is a saved aggregation over one table. It is always computed live.
type Chart struct {
	ID                   uuid.UUID      `json:"id"`
	Name                 string         `json:"name"`
	TableID              uuid.UUID      `json:"table"`
	ChartType            string         `json:"chart_type"`
	TimelineFieldID      *uuid.UUID     `json:"timeline_field,omitempty"`
	TimelinePeriod       TimelinePeriod `json:"timeline_period,omitempty"`
	TimelineIncludeNulls bool           `json:"timeline_include_nulls"`
	XAxisFieldID         *uuid.UUID     `json:"x_axis_field,omitempty"`
	YAxisFieldID         *uuid.UUID     `json:"y_axis_field,omitempty"`
	YAxisFunction        AggregateFunc  `json:"y_axis_function"`
	OwnerID              uuid.UUID      `json:"owner_id"`
	CreatedAt            time.Time      `json:"creation_date"`
}

func (c *Chart) Prepare(owner uuid.UUID) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.OwnerID == uuid.Nil {
		c.OwnerID = owner
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.YAxisFunction == "" {
		c.YAxisFunction = AggCount
	}
	if c.TimelinePeriod == "" && c.TimelineFieldID != nil {
		c.TimelinePeriod = PeriodDay
	}
}
