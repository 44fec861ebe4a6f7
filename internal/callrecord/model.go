package callrecord

import "time"

// CallRecord is the persisted summary of one finished call session.
type CallRecord struct {
	ID               string       `gorm:"primaryKey" json:"id"`
	CallID           string       `gorm:"not null;index" json:"call_id"`
	CustomerID       int64        `gorm:"not null;index" json:"customer_id"`
	EndReason        string       `gorm:"not null" json:"end_reason"`
	ErrorStage       string       `json:"error_stage,omitempty"`
	ErrorMessage     string       `json:"error_message,omitempty"`
	TurnCount        int          `json:"turn_count"`
	InterruptedTurns int          `json:"interrupted_turns"`
	FailedTurns      int          `json:"failed_turns"`
	AudioBytes       int          `json:"audio_bytes"`
	DurationSeconds  float64      `json:"duration_seconds"`
	StartedAt        time.Time    `gorm:"index" json:"started_at"`
	EndedAt          time.Time    `json:"ended_at"`
	Turns            []TurnRecord `gorm:"foreignKey:CallRecordID;constraint:OnDelete:CASCADE" json:"turns"`
	CreatedAt        time.Time    `json:"created_at"`
}

type TurnRecord struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	CallRecordID    string    `gorm:"not null;index" json:"-"`
	Seq             int       `gorm:"not null" json:"seq"`
	Status          string    `gorm:"not null" json:"status"`
	UserText        string    `json:"user_text"`
	ReplyText       string    `json:"reply_text"`
	AudioBytes      int       `json:"audio_bytes"`
	DurationSeconds float64   `json:"duration_seconds"`
	LatencyMs       int64     `json:"latency_ms"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Failed reports whether the call ended because of an adapter failure.
func (r *CallRecord) Failed() bool {
	return r.ErrorStage != ""
}
