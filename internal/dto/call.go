package dto

import "time"

type StartCallRequest struct {
	CallID       string `json:"call_id" example:"sip-7f3a9c"`
	CustomerID   int64  `json:"customer_id" example:"1042"`
	SystemPrompt string `json:"system_prompt" example:"You are a billing support agent."`
}

type TurnResponse struct {
	ID              string     `json:"id" example:"turn_3c1e0b7d2a9f"`
	UserText        string     `json:"user_text" example:"Where is my order?"`
	ReplyText       string     `json:"reply_text,omitempty" example:"It ships tomorrow."`
	Status          string     `json:"status" example:"completed"`
	Fallback        bool       `json:"fallback,omitempty"`
	AudioBytes      int        `json:"audio_bytes" example:"96000"`
	DurationSeconds float64    `json:"duration_seconds" example:"3"`
	LatencyMs       int64      `json:"latency_ms" example:"640"`
	CreatedAt       time.Time  `json:"created_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

type IngestStats struct {
	Accepted      uint64 `json:"accepted" example:"1200"`
	OutOfOrder    uint64 `json:"out_of_order" example:"2"`
	Overflow      uint64 `json:"overflow" example:"0"`
	Inactive      uint64 `json:"inactive" example:"0"`
	BufferedBytes int    `json:"buffered_bytes" example:"3200"`
}

type CallResponse struct {
	CallID        string         `json:"call_id" example:"sip-7f3a9c"`
	SessionID     string         `json:"session_id" example:"5d0c7c9e-8f55-4a43-9a3c-1d2f0e0b7a11"`
	CustomerID    int64          `json:"customer_id" example:"1042"`
	State         string         `json:"state" example:"active"`
	StartedAt     time.Time      `json:"started_at"`
	EndedAt       *time.Time     `json:"ended_at,omitempty"`
	EndReason     string         `json:"end_reason,omitempty" example:"hangup"`
	CurrentTurnID string         `json:"current_turn_id,omitempty"`
	HistoryLength int            `json:"history_length" example:"4"`
	Turns         []TurnResponse `json:"turns"`
	Ingest        IngestStats    `json:"ingest"`
}

type CallListResponse struct {
	Active int            `json:"active" example:"3"`
	Calls  []CallResponse `json:"calls"`
}

type AudioAcceptedResponse struct {
	Result string `json:"result" example:"accepted"`
}

type CallRecordResponse struct {
	ID               string               `json:"id"`
	CallID           string               `json:"call_id" example:"sip-7f3a9c"`
	CustomerID       int64                `json:"customer_id" example:"1042"`
	EndReason        string               `json:"end_reason" example:"hangup"`
	ErrorStage       string               `json:"error_stage,omitempty" example:"asr"`
	ErrorMessage     string               `json:"error_message,omitempty"`
	TurnCount        int                  `json:"turn_count" example:"6"`
	InterruptedTurns int                  `json:"interrupted_turns" example:"1"`
	FailedTurns      int                  `json:"failed_turns" example:"0"`
	DurationSeconds  float64              `json:"duration_seconds" example:"84.2"`
	StartedAt        time.Time            `json:"started_at"`
	EndedAt          time.Time            `json:"ended_at"`
	Turns            []TurnRecordResponse `json:"turns"`
}

type TurnRecordResponse struct {
	Seq             int     `json:"seq" example:"1"`
	Status          string  `json:"status" example:"completed"`
	UserText        string  `json:"user_text"`
	ReplyText       string  `json:"reply_text"`
	AudioBytes      int     `json:"audio_bytes"`
	DurationSeconds float64 `json:"duration_seconds"`
	LatencyMs       int64   `json:"latency_ms"`
}
