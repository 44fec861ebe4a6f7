package stats

import (
	"strconv"
	"time"
)

const (
	FieldCalls        = "calls"
	FieldTurns        = "turns"
	FieldInterrupts   = "interrupts"
	FieldFailedTurns  = "failed_turns"
	FieldErrors       = "errors"
	FieldTalkMs       = "talk_ms"
	fieldLatencyTotal = "total_latency_ms"
	fieldLatencyCount = "latency_count"
)

// Metrics is one customer-hour of call counters.
type Metrics struct {
	CustomerID   int64  `json:"customer_id"`
	Date         string `json:"date"`
	Hour         int    `json:"hour"`
	Calls        int64  `json:"calls"`
	Turns        int64  `json:"turns"`
	Interrupts   int64  `json:"interrupts"`
	FailedTurns  int64  `json:"failed_turns"`
	Errors       int64  `json:"errors"`
	TalkMs       int64  `json:"talk_ms"`
	AvgLatencyMs int64  `json:"avg_latency_ms"`
}

func MetricsRedisKey(customerID int64, date string, hour int) string {
	return "customer:" + strconv.FormatInt(customerID, 10) + ":calls:" + date + ":" + strconv.Itoa(hour)
}

func bucketKey(customerID int64, at time.Time) string {
	at = at.UTC()
	return MetricsRedisKey(customerID, at.Format("2006-01-02"), at.Hour())
}
