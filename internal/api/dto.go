package api

import (
	"math"
	"time"

	"radiation-risk-eval/backend/internal/dose"
	"radiation-risk-eval/backend/internal/store"
)

// EvaluateRequest is the JSON body for a single evaluation.
type EvaluateRequest struct {
	DoseMSv  float64 `json:"dose_msv"`
	AgeYears int     `json:"age_years"`
	Gender   string  `json:"gender"`
}

// EvaluationDTO is the API representation for a persisted evaluation.
type EvaluationDTO struct {
	ID              uint      `json:"id"`
	BatchID         uint      `json:"batch_id,omitempty"`
	RowIndex        int       `json:"row_index,omitempty"`
	DoseMSv         float64   `json:"dose_msv"`
	AgeYears        int       `json:"age_years"`
	Gender          string    `json:"gender"`
	AgeModifier     float64   `json:"age_modifier"`
	GenderModifier  float64   `json:"gender_modifier"`
	AdjustedDoseMSv float64   `json:"adjusted_dose_msv"`
	EffectCategory  string    `json:"effect_category"`
	EffectDetail    string    `json:"effect_detail"`
	SeverityRank    int       `json:"severity_rank"`
	AdvisoryNotes   []string  `json:"advisory_notes"`
	OrganTable      bool      `json:"organ_table"`
	CreatedAt       time.Time `json:"created_at"`
}

// EvaluationsResponse holds evaluation items and totals.
type EvaluationsResponse struct {
	Items []EvaluationDTO `json:"items"`
	Total int64           `json:"total"`
}

// FromModel converts a store.Evaluation into the DTO representation.
func FromModel(e store.Evaluation) EvaluationDTO {
	return EvaluationDTO{
		ID:              e.ID,
		BatchID:         e.BatchID,
		RowIndex:        e.RowIndex,
		DoseMSv:         round2(e.DoseMSv),
		AgeYears:        e.AgeYears,
		Gender:          e.Gender,
		AgeModifier:     e.AgeModifier,
		GenderModifier:  e.GenderModifier,
		AdjustedDoseMSv: round2(e.AdjustedDoseMSv),
		EffectCategory:  e.EffectCategory,
		EffectDetail:    e.EffectDetail,
		SeverityRank:    e.SeverityRank,
		AdvisoryNotes:   e.AdvisoryNotes(),
		OrganTable:      e.AdjustedDoseMSv >= organThresholdMSv,
		CreatedAt:       e.CreatedAt,
	}
}

// BandDTO is the JSON shape of a classification band. The top band has
// no upper bound, rendered as null.
type BandDTO struct {
	LowerMSv float64  `json:"lower_msv"`
	UpperMSv *float64 `json:"upper_msv"`
	Rank     int      `json:"rank"`
	Category string   `json:"category"`
	Detail   string   `json:"detail"`
}

// BandsResponse carries the classification table plus chart geometry.
type BandsResponse struct {
	Bands []BandDTO        `json:"bands"`
	Ticks []dose.ChartTick `json:"chart_ticks"`
}

// BandFromModel converts a dose.Band into its JSON shape.
func BandFromModel(b dose.Band) BandDTO {
	dto := BandDTO{
		LowerMSv: b.LowerMSv,
		Rank:     b.Rank,
		Category: b.Category,
		Detail:   b.Detail,
	}
	if !math.IsInf(b.UpperMSv, 1) {
		upper := b.UpperMSv
		dto.UpperMSv = &upper
	}
	return dto
}

// UploadResponse reports batch statistics after processing a CSV upload.
type UploadResponse struct {
	BatchID      uint   `json:"batch_id"`
	BatchName    string `json:"batch_name"`
	Owner        string `json:"owner"`
	RowCount     int    `json:"row_count"`
	ValidRecords int    `json:"valid_records"`
	InvalidRows  int    `json:"invalid_rows"`
	Processed    int    `json:"processed_records"`
}

// BatchDTO represents metadata for an uploaded exposure dataset.
type BatchDTO struct {
	ID               uint       `json:"id"`
	Name             string     `json:"name"`
	Owner            string     `json:"owner"`
	OriginalFilename string     `json:"original_filename"`
	RowCount         int        `json:"row_count"`
	ValidRecords     int        `json:"valid_records"`
	InvalidRows      int        `json:"invalid_rows"`
	ProcessedRecords int        `json:"processed_records"`
	CreatedAt        time.Time  `json:"created_at"`
	LastEvaluatedAt  *time.Time `json:"last_evaluated_at"`
}

// BatchesResponse is the paginated response for exposure batches.
type BatchesResponse struct {
	Items []BatchDTO `json:"items"`
	Total int64      `json:"total"`
}

// BatchFromModel converts a store.ExposureBatch into a DTO.
func BatchFromModel(b store.ExposureBatch) BatchDTO {
	return BatchDTO{
		ID:               b.ID,
		Name:             b.Name,
		Owner:            b.Owner,
		OriginalFilename: b.OriginalFilename,
		RowCount:         b.RowCount,
		ValidRecords:     b.ValidRecords,
		InvalidRows:      b.InvalidRows,
		ProcessedRecords: b.ProcessedRecords,
		CreatedAt:        b.CreatedAt,
		LastEvaluatedAt:  b.LastEvaluatedAt,
	}
}

// BatchRequestDTO represents evaluation request tracking metadata.
type BatchRequestDTO struct {
	ID         uint       `json:"id"`
	BatchID    uint       `json:"batch_id"`
	Type       string     `json:"type"`
	Status     string     `json:"status"`
	JobID      string     `json:"job_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

// BatchRequestFromModel converts a store.BatchRequest into a DTO.
func BatchRequestFromModel(r store.BatchRequest) BatchRequestDTO {
	return BatchRequestDTO{
		ID:         r.ID,
		BatchID:    r.BatchID,
		Type:       r.Type,
		Status:     r.Status,
		JobID:      r.JobID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// StartEvaluationResponse describes the asynchronous batch job kickoff payload.
type StartEvaluationResponse struct {
	JobID     string    `json:"job_id"`
	BatchID   uint      `json:"batch_id"`
	RequestID uint      `json:"request_id"`
	Total     int64     `json:"total"`
	StartedAt time.Time `json:"started_at"`
}

// EvaluateStatusResponse describes the state of the active batch job.
type EvaluateStatusResponse struct {
	Running        bool           `json:"running"`
	JobID          string         `json:"job_id"`
	BatchID        uint           `json:"batch_id"`
	RequestID      uint           `json:"request_id"`
	State          string         `json:"state"`
	Message        string         `json:"message"`
	Processed      int            `json:"processed"`
	Total          int64          `json:"total"`
	LastEvaluation *EvaluationDTO `json:"last_evaluation,omitempty"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
