package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database wraps the GORM DB handle and exposes repository helpers.
type Database struct {
	gorm *gorm.DB
	mu   sync.Mutex
}

// Open initializes the SQLite-backed database at the provided path.
func Open(path string, silent bool) (*Database, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(path), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Evaluation{}, &ExposureBatch{}, &ExposureRecord{}, &BatchRequest{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		logrus.WithError(err).Warn("enable WAL mode")
	}
	if err := db.Exec("PRAGMA synchronous=NORMAL").Error; err != nil {
		logrus.WithError(err).Warn("set synchronous pragma")
	}
	if err := applyIndexes(db); err != nil {
		return nil, fmt.Errorf("apply indexes: %w", err)
	}
	return &Database{gorm: db}, nil
}

// GORM exposes the raw gorm.DB handle.
func (d *Database) GORM() *gorm.DB {
	return d.gorm
}

// Close closes the underlying database connection.
func (d *Database) Close() error {
	if d == nil {
		return nil
	}
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func applyIndexes(db *gorm.DB) error {
	stmts := []string{
		"CREATE INDEX IF NOT EXISTS idx_evaluations_batch_row ON evaluations(batch_id, row_index)",
		"CREATE INDEX IF NOT EXISTS idx_evaluations_severity_created ON evaluations(severity_rank, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_exposure_records_batch_row ON exposure_records(batch_id, row_index)",
		"CREATE INDEX IF NOT EXISTS idx_batch_requests_status ON batch_requests(status, started_at)",
	}
	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

// SaveEvaluation persists a single evaluation row.
func (d *Database) SaveEvaluation(e *Evaluation) error {
	if e == nil {
		return errors.New("evaluation is nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Create(e).Error
}

// SaveEvaluations persists a chunk of evaluation rows in one transaction.
func (d *Database) SaveEvaluations(rows []Evaluation) error {
	if len(rows) == 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.CreateInBatches(rows, 250).Error
}

// DeleteEvaluationsForBatch removes previous results before re-running a batch.
func (d *Database) DeleteEvaluationsForBatch(batchID uint) error {
	if batchID == 0 {
		return errors.New("batch id required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gorm.Where("batch_id = ?", batchID).Delete(&Evaluation{}).Error
}

// CountEvaluations returns the total number of stored evaluations.
func (d *Database) CountEvaluations() (int64, error) {
	var count int64
	if err := d.gorm.Model(&Evaluation{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountBatchResults returns the number of evaluations stored for a batch.
func (d *Database) CountBatchResults(batchID uint) (int, error) {
	var count int64
	if err := d.gorm.Model(&Evaluation{}).Where("batch_id = ?", batchID).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// EvaluationQuery encapsulates filters and pagination for listing evaluation rows.
type EvaluationQuery struct {
	Gender         string
	MinSeverity    int
	MinAdjustedMSv float64
	Query          string
	Sort           string
	Offset         int
	Limit          int
	BatchID        uint
}

// ListEvaluations returns paginated evaluation records applying optional filters.
func (d *Database) ListEvaluations(opts EvaluationQuery) ([]Evaluation, int64, error) {
	var total int64
	base := d.gorm.Model(&Evaluation{})
	if opts.BatchID > 0 {
		base = base.Where("batch_id = ?", opts.BatchID)
	}
	if gender := strings.ToLower(strings.TrimSpace(opts.Gender)); gender != "" {
		base = base.Where("gender = ?", gender)
	}
	if opts.MinSeverity > 0 {
		base = base.Where("severity_rank >= ?", opts.MinSeverity)
	}
	if opts.MinAdjustedMSv > 0 {
		base = base.Where("adjusted_dose_msv >= ?", opts.MinAdjustedMSv)
	}
	if opts.Query != "" {
		like := fmt.Sprintf("%%%s%%", opts.Query)
		base = base.Where("effect_category LIKE ? OR effect_detail LIKE ?", like, like)
	}

	if err := base.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	order := orderForSort(opts.Sort)
	queryBuilder := base.Order(order).Offset(opts.Offset)
	if opts.Limit > 0 {
		queryBuilder = queryBuilder.Limit(opts.Limit)
	}

	var rows []Evaluation
	if err := queryBuilder.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func orderForSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "severity_desc":
		return "evaluations.severity_rank DESC, evaluations.adjusted_dose_msv DESC, evaluations.id DESC"
	case "severity_asc":
		return "evaluations.severity_rank ASC, evaluations.id DESC"
	case "dose_desc":
		return "evaluations.dose_msv DESC, evaluations.id DESC"
	case "dose_asc":
		return "evaluations.dose_msv ASC, evaluations.id DESC"
	case "adjusted_desc":
		return "evaluations.adjusted_dose_msv DESC, evaluations.id DESC"
	case "adjusted_asc":
		return "evaluations.adjusted_dose_msv ASC, evaluations.id DESC"
	case "created_asc":
		return "evaluations.created_at ASC"
	case "created_desc":
		return "evaluations.created_at DESC"
	default:
		return "evaluations.id DESC"
	}
}

// CreateExposureBatch inserts a new batch record.
func (d *Database) CreateExposureBatch(name, owner, filename string) (*ExposureBatch, error) {
	batch := &ExposureBatch{Name: name, Owner: owner, OriginalFilename: filename}
	if err := d.gorm.Create(batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

// GetExposureBatch fetches a batch by ID.
func (d *Database) GetExposureBatch(id uint) (*ExposureBatch, error) {
	var batch ExposureBatch
	if err := d.gorm.First(&batch, id).Error; err != nil {
		return nil, err
	}
	return &batch, nil
}

// ListExposureBatches returns a paged set of batches, newest first.
func (d *Database) ListExposureBatches(offset, limit int) ([]ExposureBatch, int64, error) {
	var batches []ExposureBatch
	var total int64
	if err := d.gorm.Model(&ExposureBatch{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	q := d.gorm.Model(&ExposureBatch{}).Order("id DESC")
	if limit > 0 {
		q = q.Offset(offset).Limit(limit)
	}
	if err := q.Find(&batches).Error; err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

// UpdateExposureBatchStats updates aggregate statistics for a batch.
func (d *Database) UpdateExposureBatchStats(batchID uint, rowCount, validRecords, invalidRows, processed int) error {
	return d.gorm.Model(&ExposureBatch{}).
		Where("id = ?", batchID).
		Updates(map[string]any{
			"row_count":         rowCount,
			"valid_records":     validRecords,
			"invalid_rows":      invalidRows,
			"processed_records": processed,
		}).Error
}

// MarkBatchEvaluated refreshes the processed count and evaluation timestamp.
func (d *Database) MarkBatchEvaluated(batchID uint) error {
	processed, err := d.CountBatchResults(batchID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	return d.gorm.Model(&ExposureBatch{}).
		Where("id = ?", batchID).
		Updates(map[string]any{
			"processed_records": processed,
			"last_evaluated_at": &now,
		}).Error
}

// ReplaceExposureRecords replaces all records associated with a batch.
func (d *Database) ReplaceExposureRecords(batchID uint, rows []ExposureRecord) error {
	return d.gorm.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("batch_id = ?", batchID).Delete(&ExposureRecord{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].BatchID = batchID
		}
		return tx.CreateInBatches(rows, 500).Error
	})
}

// ListExposureRecords returns a chunk of batch records ordered by row index.
func (d *Database) ListExposureRecords(batchID uint, offset, limit int) ([]ExposureRecord, error) {
	var rows []ExposureRecord
	q := d.gorm.Where("batch_id = ?", batchID).Order("row_index ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountExposureRecords returns the record count for a batch.
func (d *Database) CountExposureRecords(batchID uint) (int64, error) {
	var count int64
	if err := d.gorm.Model(&ExposureRecord{}).Where("batch_id = ?", batchID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CreateBatchRequest records the start of an evaluation job.
func (d *Database) CreateBatchRequest(batchID uint, requestType, status, jobID string) (*BatchRequest, error) {
	request := &BatchRequest{
		BatchID:   batchID,
		Type:      requestType,
		Status:    status,
		JobID:     jobID,
		StartedAt: time.Now().UTC(),
	}
	if err := d.gorm.Create(request).Error; err != nil {
		return nil, err
	}
	return request, nil
}

// UpdateBatchRequest transitions a request to a terminal status.
func (d *Database) UpdateBatchRequest(requestID uint, status string) error {
	now := time.Now().UTC()
	return d.gorm.Model(&BatchRequest{}).
		Where("id = ?", requestID).
		Updates(map[string]any{
			"status":      status,
			"finished_at": &now,
		}).Error
}

// GetBatchRequest fetches a request by ID.
func (d *Database) GetBatchRequest(id uint) (*BatchRequest, error) {
	var request BatchRequest
	if err := d.gorm.First(&request, id).Error; err != nil {
		return nil, err
	}
	return &request, nil
}
