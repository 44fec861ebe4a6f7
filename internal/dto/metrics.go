package dto

type MetricsResponse struct {
	Date         string `json:"date" example:"2026-01-15"`
	Hour         int    `json:"hour" example:"14"`
	Calls        int64  `json:"calls" example:"120"`
	Turns        int64  `json:"turns" example:"840"`
	Interrupts   int64  `json:"interrupts" example:"37"`
	FailedTurns  int64  `json:"failed_turns" example:"3"`
	Errors       int64  `json:"errors" example:"1"`
	TalkMs       int64  `json:"talk_ms" example:"5400000"`
	AvgLatencyMs int64  `json:"avg_latency_ms" example:"620"`
}

type MetricsListResponse struct {
	CustomerID int64             `json:"customer_id" example:"1042"`
	Hours      int               `json:"hours" example:"24"`
	Metrics    []MetricsResponse `json:"metrics"`
}
