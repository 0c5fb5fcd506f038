package tts

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/suPer8Hu/tts-platform/internal/audio"
)

type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

type JobType string

const (
	JobTypeTTS        JobType = "tts"
	JobTypeVoiceClone JobType = "voice_clone"
	JobTypeBatch      JobType = "batch"
)

// Params is the validated request, frozen at submission.
type Params struct {
	Text         string       `json:"text,omitempty"`
	Texts        []string     `json:"texts,omitempty"`
	Exaggeration float64      `json:"exaggeration"`
	CFGWeight    float64      `json:"cfg_weight"`
	Temperature  float64      `json:"temperature"`
	OutputFormat audio.Format `json:"output_format"`
	ReturnBase64 bool         `json:"return_base64"`

	// voice clone reference, stored as an artifact until the job ends
	ReferenceKey  string `json:"reference_key,omitempty"`
	ReferenceName string `json:"reference_name,omitempty"`
}

func (p Params) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	return string(b), err
}

func (p *Params) Scan(v any) error {
	return scanJSON(v, p)
}

type BatchItem struct {
	Success         bool    `json:"success"`
	Message         string  `json:"message,omitempty"`
	AudioKey        string  `json:"audio_key,omitempty"`
	SampleRate      int     `json:"sample_rate,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Result points at the rendered audio; the bytes live in the artifact store.
type Result struct {
	AudioKey        string       `json:"audio_key,omitempty"`
	OutputFormat    audio.Format `json:"output_format,omitempty"`
	MediaType       string       `json:"media_type,omitempty"`
	SampleRate      int          `json:"sample_rate,omitempty"`
	DurationSeconds float64      `json:"duration_seconds"`
	Chunks          int          `json:"chunks,omitempty"`
	SizeBytes       int          `json:"size_bytes,omitempty"`
	VoiceCloned     bool         `json:"voice_cloned,omitempty"`

	Items         []BatchItem `json:"items,omitempty"`
	TotalDuration float64     `json:"total_duration,omitempty"`
}

func (r Result) Value() (driver.Value, error) {
	b, err := json.Marshal(r)
	return string(b), err
}

func (r *Result) Scan(v any) error {
	return scanJSON(v, r)
}

func scanJSON(v any, dst any) error {
	switch b := v.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(b, dst)
	case string:
		return json.Unmarshal([]byte(b), dst)
	default:
		return fmt.Errorf("cannot scan %T into %T", v, dst)
	}
}

type Job struct {
	ID string `gorm:"primaryKey;size:26"` // ULID length

	Type   JobType   `gorm:"type:varchar(16);not null"`
	Status JobStatus `gorm:"type:varchar(16);index;not null"`

	IdempotencyKey *string `gorm:"type:varchar(128);uniqueIndex" json:"idempotency_key"`

	Params Params `gorm:"type:longtext;not null"`

	// Filled when completed
	Result *Result `gorm:"type:longtext"`

	// Filled when failed
	Error *string `gorm:"type:text"`

	CreatedAt   time.Time `gorm:"index"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time
}

func (Job) TableName() string { return "tts_jobs" }
