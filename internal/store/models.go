package store

import (
	"encoding/json"
	"strings"
	"time"
)

// Evaluation is the persisted output of one evaluator run.
type Evaluation struct {
	ID                uint `gorm:"primaryKey"`
	BatchID           uint `gorm:"index"` // zero for ad-hoc evaluations
	RowIndex          int
	DoseMSv           float64 `gorm:"column:dose_msv;index"`
	AgeYears          int
	Gender            string `gorm:"size:16;index"`
	AgeModifier       float64
	GenderModifier    float64
	AdjustedDoseMSv   float64 `gorm:"column:adjusted_dose_msv;index"`
	EffectCategory    string  `gorm:"size:64;index"`
	EffectDetail      string  `gorm:"size:255"`
	SeverityRank      int     `gorm:"index"`
	AdvisoryNotesJSON string  `gorm:"type:text"`
	ProcessingTimeMs  int64
	CreatedAt         time.Time `gorm:"autoCreateTime"`
}

// SetAdvisoryNotes saves the advisory notes as JSON.
func (e *Evaluation) SetAdvisoryNotes(notes []string) {
	if notes == nil {
		e.AdvisoryNotesJSON = "[]"
		return
	}
	payload, _ := json.Marshal(notes)
	e.AdvisoryNotesJSON = string(payload)
}

// AdvisoryNotes returns the decoded advisory notes slice.
func (e *Evaluation) AdvisoryNotes() []string {
	if strings.TrimSpace(e.AdvisoryNotesJSON) == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(e.AdvisoryNotesJSON), &out); err != nil {
		return nil
	}
	return out
}

// ExposureBatch represents an uploaded CSV dataset of exposure records.
type ExposureBatch struct {
	ID               uint   `gorm:"primaryKey"`
	Name             string `gorm:"size:128;index"`
	Owner            string `gorm:"size:128;index"`
	OriginalFilename string `gorm:"size:256"`
	RowCount         int
	ValidRecords     int
	InvalidRows      int
	ProcessedRecords int
	LastEvaluatedAt  *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ExposureRecord is one dose/age/gender row from an uploaded batch.
type ExposureRecord struct {
	ID        uint `gorm:"primaryKey"`
	BatchID   uint `gorm:"index"`
	RowIndex  int
	DoseMSv   float64 `gorm:"column:dose_msv"`
	AgeYears  int
	Gender    string `gorm:"size:16"`
	CreatedAt time.Time
}

// BatchRequest tracks an evaluation job launched for a batch.
type BatchRequest struct {
	ID         uint   `gorm:"primaryKey"`
	BatchID    uint   `gorm:"index"`
	Type       string `gorm:"size:32"`
	Status     string `gorm:"size:32"`
	JobID      string `gorm:"size:64"`
	StartedAt  time.Time
	FinishedAt *time.Time
	CreatedAt  time.Time
}
