package api

import (
	"context"
	"runtime"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"radiation-risk-eval/backend/internal/dose"
	"radiation-risk-eval/backend/internal/store"
)

const evaluationThrottle = 500 * time.Millisecond

// batchJob tracks the state of a running batch evaluation.
type batchJob struct {
	id        string
	cancel    context.CancelFunc
	startedAt time.Time
	total     int64
	batchID   uint
	batchName string
	requestID uint
}

// startBatchEvaluation launches a new asynchronous evaluation job. The
// caller must hold s.jobMu prior to invoking this function.
func (s *Server) startBatchEvaluation(batch *store.ExposureBatch, totalRecords int64) (*batchJob, error) {
	ctx, cancel := context.WithCancel(context.Background())
	job := &batchJob{
		id:        uuid.NewString(),
		cancel:    cancel,
		startedAt: time.Now().UTC(),
		total:     totalRecords,
		batchID:   batch.ID,
		batchName: batch.Name,
	}

	request, err := s.db.CreateBatchRequest(batch.ID, "evaluate", "running", job.id)
	if err != nil {
		job.cancel()
		return nil, err
	}
	job.requestID = request.ID

	s.activeJob = job
	go s.runBatchEvaluation(ctx, job)
	return job, nil
}

func (s *Server) runBatchEvaluation(ctx context.Context, job *batchJob) {
	finishStatus := "completed"

	defer func() {
		if err := s.db.UpdateBatchRequest(job.requestID, finishStatus); err != nil {
			logrus.WithError(err).WithField("batch_id", job.batchID).Warn("update batch request")
		}
		if err := s.db.MarkBatchEvaluated(job.batchID); err != nil {
			logrus.WithError(err).WithField("batch_id", job.batchID).Warn("refresh batch processing info")
		}
		s.jobMu.Lock()
		s.activeJob = nil
		s.jobMu.Unlock()
	}()

	if err := s.db.DeleteEvaluationsForBatch(job.batchID); err != nil {
		finishStatus = "failed"
		s.broadcastJobError(job, "clear previous results", err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"job":        job.id,
		"batch_id":   job.batchID,
		"batch_name": job.batchName,
		"total":      job.total,
		"workers":    s.workers,
	}).Info("batch evaluation started")

	s.evalNotifier.Broadcast(EvaluationEvent{
		Type:    "started",
		JobID:   job.id,
		BatchID: job.batchID,
		Total:   job.total,
		Message: "evaluation started",
	})

	var (
		lastEmit  time.Time
		processed int
	)

	emitProgress := func(last *EvaluationDTO, force bool) {
		if !force && !lastEmit.IsZero() && time.Since(lastEmit) < evaluationThrottle {
			return
		}
		s.evalNotifier.Broadcast(EvaluationEvent{
			Type:       "progress",
			JobID:      job.id,
			BatchID:    job.batchID,
			Total:      job.total,
			Processed:  processed,
			Evaluation: last,
		})
		lastEmit = time.Now()
	}

	offset := 0
	for {
		select {
		case <-ctx.Done():
			finishStatus = "cancelled"
			s.evalNotifier.Broadcast(EvaluationEvent{
				Type:      "cancelled",
				JobID:     job.id,
				BatchID:   job.batchID,
				Total:     job.total,
				Processed: processed,
				Message:   "evaluation cancelled",
			})
			return
		default:
		}

		records, err := s.db.ListExposureRecords(job.batchID, offset, s.chunkSize)
		if err != nil {
			finishStatus = "failed"
			s.broadcastJobError(job, "list batch records", err)
			return
		}
		if len(records) == 0 {
			break
		}
		offset += len(records)

		rows := s.evaluateRecords(records)
		if err := s.db.SaveEvaluations(rows); err != nil {
			finishStatus = "failed"
			s.broadcastJobError(job, "save evaluations", err)
			return
		}

		processed += len(rows)
		var last *EvaluationDTO
		if len(rows) > 0 {
			dto := FromModel(rows[len(rows)-1])
			last = &dto
		}
		emitProgress(last, false)
	}

	s.evalNotifier.Broadcast(EvaluationEvent{
		Type:      "completed",
		JobID:     job.id,
		BatchID:   job.batchID,
		Total:     job.total,
		Processed: processed,
		Message:   "evaluation completed",
	})
	logrus.WithFields(logrus.Fields{
		"job":       job.id,
		"batch_id":  job.batchID,
		"processed": processed,
	}).Info("batch evaluation finished")
}

// evaluateRecords runs the evaluator over a chunk of records using a
// small worker pool and returns rows ordered by row index.
func (s *Server) evaluateRecords(records []store.ExposureRecord) []store.Evaluation {
	type indexed struct {
		pos int
		row store.Evaluation
	}

	taskCh := make(chan int)
	resultCh := make(chan indexed, len(records))

	workers := s.workers
	if workers > len(records) {
		workers = len(records)
	}
	for i := 0; i < workers; i++ {
		go func() {
			for pos := range taskCh {
				record := records[pos]
				started := time.Now()
				in := dose.Input{
					DoseMSv:  record.DoseMSv,
					AgeYears: record.AgeYears,
					Gender:   dose.ParseGender(record.Gender),
				}
				row := evaluationRow(in, dose.Evaluate(in), record.BatchID, record.RowIndex)
				row.ProcessingTimeMs = time.Since(started).Milliseconds()
				resultCh <- indexed{pos: pos, row: row}
			}
		}()
	}

	for pos := range records {
		taskCh <- pos
	}
	close(taskCh)

	results := make([]indexed, 0, len(records))
	for len(results) < len(records) {
		results = append(results, <-resultCh)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].pos < results[j].pos })

	rows := make([]store.Evaluation, 0, len(results))
	for _, item := range results {
		rows = append(rows, item.row)
	}
	return rows
}

func (s *Server) broadcastJobError(job *batchJob, stage string, err error) {
	logrus.WithError(err).WithFields(logrus.Fields{
		"job":      job.id,
		"batch_id": job.batchID,
	}).Error(stage)
	s.evalNotifier.Broadcast(EvaluationEvent{
		Type:    "error",
		JobID:   job.id,
		BatchID: job.batchID,
		Message: stage + ": " + err.Error(),
	})
}

func defaultWorkerCount() int {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 8 {
		workers = 8
	}
	return workers
}
