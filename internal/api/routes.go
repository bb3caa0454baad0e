package api

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"radiation-risk-eval/backend/internal/dose"
	"radiation-risk-eval/backend/internal/reference"
	"radiation-risk-eval/backend/internal/store"
)

const organThresholdMSv = reference.OrganDisplayThresholdMSv

// Config defines server dependencies.
type Config struct {
	DBPath         string
	AllowedOrigins []string
	SilentDB       bool
	Workers        int
	ChunkSize      int
}

// Server wires HTTP handlers with persistence and the dose evaluator.
type Server struct {
	db             *store.Database
	allowedOrigins []string
	evalNotifier   *EvaluationNotifier
	jobMu          sync.Mutex
	activeJob      *batchJob
	workers        int
	chunkSize      int
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	server := &Server{
		db:             db,
		allowedOrigins: cfg.AllowedOrigins,
		evalNotifier:   NewEvaluationNotifier(),
		workers:        cfg.Workers,
		chunkSize:      cfg.ChunkSize,
	}
	if server.workers <= 0 {
		server.workers = defaultWorkerCount()
	}
	if server.chunkSize <= 0 {
		server.chunkSize = 1000
	}

	return server, nil
}

// Close releases the underlying database handle.
func (s *Server) Close() error {
	return s.db.Close()
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)

	api := r.Group("/api")
	{
		api.POST("/evaluate", s.handleEvaluate)
		api.GET("/evaluations", s.handleEvaluations)
		api.GET("/bands", s.handleBands)
		api.GET("/organs", s.handleOrgans)
		api.POST("/upload", s.handleUpload)
		api.GET("/batches", s.handleListBatches)
		api.GET("/batches/:id", s.handleGetBatch)
		api.GET("/batches/:id/results", s.handleBatchResults)
		api.POST("/batches/:id/evaluate", s.handleEvaluateBatch)
		api.GET("/requests/:id/status", s.handleRequestStatus)
		api.GET("/evaluate/status", s.handleEvaluateStatus)
		api.DELETE("/evaluate/:jobID", s.handleCancelEvaluate)
		api.GET("/evaluate/stream", s.handleEvaluateStream)
		api.GET("/export.csv", s.handleExportCSV)
		api.GET("/export.json", s.handleExportJSON)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	evaluations, err := s.db.CountEvaluations()
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"dose_range_msv": []float64{dose.MinDoseMSv, dose.MaxDoseMSv},
		"age_range":      []int{dose.MinAge, dose.MaxAge},
		"genders":        []string{dose.GenderMale.String(), dose.GenderFemale.String(), dose.GenderUndisclosed.String()},
		"band_count":     len(dose.Bands()),
		"evaluations":    evaluations,
		"workers":        s.workers,
	})
}

func (s *Server) handleEvaluate(c *gin.Context) {
	var req EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	started := time.Now()
	in := dose.Input{
		DoseMSv:  req.DoseMSv,
		AgeYears: req.AgeYears,
		Gender:   dose.ParseGender(req.Gender),
	}
	result := dose.Evaluate(in)

	row := evaluationRow(in, result, 0, 0)
	row.ProcessingTimeMs = time.Since(started).Milliseconds()
	if err := s.db.SaveEvaluation(&row); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	dto := FromModel(row)
	s.evalNotifier.Broadcast(EvaluationEvent{Type: "evaluation", Evaluation: &dto})
	logrus.WithFields(logrus.Fields{
		"dose_msv":     row.DoseMSv,
		"adjusted_msv": row.AdjustedDoseMSv,
		"severity":     row.SeverityRank,
	}).Debug("evaluation stored")

	c.JSON(http.StatusOK, dto)
}

func (s *Server) handleEvaluations(c *gin.Context) {
	batchID := uint(0)
	if value := strings.TrimSpace(firstNonEmpty(c.Query("batch_id"), c.Query("batchId"))); value != "" {
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil || parsed == 0 {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid batch_id: %s", value))
			return
		}
		batchID = uint(parsed)
	}
	s.renderResults(c, batchID)
}

func (s *Server) renderResults(c *gin.Context, batchID uint) {
	query := strings.TrimSpace(c.Query("q"))
	minSeverity, _ := strconv.Atoi(c.Query("minSeverity"))
	minDose, _ := strconv.ParseFloat(c.Query("minAdjustedDose"), 64)
	gender := strings.TrimSpace(c.Query("gender"))
	sort := strings.TrimSpace(c.Query("sort"))
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 100
	}
	offset := page * pageSize

	rows, total, err := s.db.ListEvaluations(store.EvaluationQuery{
		Query:          query,
		MinSeverity:    minSeverity,
		MinAdjustedMSv: minDose,
		Gender:         gender,
		Sort:           sort,
		Offset:         offset,
		Limit:          pageSize,
		BatchID:        batchID,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]EvaluationDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.JSON(http.StatusOK, EvaluationsResponse{Items: dtos, Total: total})
}

func (s *Server) handleBands(c *gin.Context) {
	bands := dose.Bands()
	dtos := make([]BandDTO, 0, len(bands))
	for _, b := range bands {
		dtos = append(dtos, BandFromModel(b))
	}
	c.JSON(http.StatusOK, BandsResponse{Bands: dtos, Ticks: dose.ChartTicks()})
}

func (s *Server) handleOrgans(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"threshold_msv": reference.OrganDisplayThresholdMSv,
		"organs":        reference.OrganEffects(),
	})
}

func (s *Server) handleUpload(c *gin.Context) {
	batchName := strings.TrimSpace(c.PostForm("batch_name"))
	if batchName == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("batch_name is required"))
		return
	}
	ownerName := strings.TrimSpace(c.PostForm("owner_name"))
	if ownerName == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("owner_name is required"))
		return
	}

	fileHeader, err := c.FormFile("records")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			s.renderError(c, http.StatusBadRequest, errors.New("records csv file is required"))
		} else {
			s.renderError(c, http.StatusBadRequest, err)
		}
		return
	}

	path, cleanup, err := saveFormFile(fileHeader)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if cleanup != nil {
		defer cleanup()
	}

	parsed, err := parseExposureCSV(path)
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if len(parsed.records) == 0 {
		s.renderError(c, http.StatusBadRequest, errors.New("no exposure records detected in csv"))
		return
	}

	batch, err := s.db.CreateExposureBatch(batchName, ownerName, fileHeader.Filename)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if err := s.db.ReplaceExposureRecords(batch.ID, parsed.records); err != nil {
		s.renderError(c, http.StatusInternalServerError, fmt.Errorf("store batch records: %w", err))
		return
	}
	if err := s.db.UpdateExposureBatchStats(batch.ID, parsed.rowCount, len(parsed.records), parsed.invalidRows, 0); err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	logrus.WithFields(logrus.Fields{
		"batch_id": batch.ID,
		"rows":     parsed.rowCount,
		"valid":    len(parsed.records),
		"invalid":  parsed.invalidRows,
	}).Info("exposure batch uploaded")

	c.JSON(http.StatusOK, UploadResponse{
		BatchID:      batch.ID,
		BatchName:    batch.Name,
		Owner:        batch.Owner,
		RowCount:     parsed.rowCount,
		ValidRecords: len(parsed.records),
		InvalidRows:  parsed.invalidRows,
		Processed:    0,
	})
}

func (s *Server) handleListBatches(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 25
	}
	offset := page * pageSize

	rows, total, err := s.db.ListExposureBatches(offset, pageSize)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]BatchDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, BatchFromModel(row))
	}
	c.JSON(http.StatusOK, BatchesResponse{Items: dtos, Total: total})
}

func (s *Server) handleGetBatch(c *gin.Context) {
	batchID, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	batch, err := s.db.GetExposureBatch(batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("batch %d not found", batchID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	processed, err := s.db.CountBatchResults(batch.ID)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dto := BatchFromModel(*batch)
	dto.ProcessedRecords = processed
	c.JSON(http.StatusOK, dto)
}

func (s *Server) handleBatchResults(c *gin.Context) {
	batchID, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	if _, err := s.db.GetExposureBatch(batchID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("batch %d not found", batchID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	s.renderResults(c, batchID)
}

func (s *Server) handleRequestStatus(c *gin.Context) {
	requestID, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	request, err := s.db.GetBatchRequest(requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("request %d not found", requestID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	c.JSON(http.StatusOK, BatchRequestFromModel(*request))
}

func (s *Server) handleEvaluateBatch(c *gin.Context) {
	batchID, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	batch, err := s.db.GetExposureBatch(batchID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("batch %d not found", batchID))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}

	totalRecords, err := s.db.CountExposureRecords(batch.ID)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	if totalRecords == 0 {
		s.renderError(c, http.StatusBadRequest, errors.New("batch has no records to evaluate"))
		return
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.activeJob != nil {
		s.renderError(c, http.StatusConflict, errors.New("evaluation already running"))
		return
	}

	job, err := s.startBatchEvaluation(batch, totalRecords)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusAccepted, StartEvaluationResponse{
		JobID:     job.id,
		BatchID:   batch.ID,
		RequestID: job.requestID,
		Total:     job.total,
		StartedAt: job.startedAt,
	})
}

func (s *Server) handleCancelEvaluate(c *gin.Context) {
	jobID := strings.TrimSpace(c.Param("jobID"))
	if jobID == "" {
		s.renderError(c, http.StatusBadRequest, errors.New("job id required"))
		return
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if s.activeJob == nil {
		s.renderError(c, http.StatusNotFound, errors.New("no evaluation running"))
		return
	}
	if s.activeJob.id != jobID {
		s.renderError(c, http.StatusNotFound, errors.New("job not found"))
		return
	}

	s.activeJob.cancel()
	logrus.WithField("job", jobID).Info("evaluation cancellation requested")
	s.evalNotifier.Broadcast(EvaluationEvent{
		Type:    "progress",
		JobID:   s.activeJob.id,
		BatchID: s.activeJob.batchID,
		Total:   s.activeJob.total,
		Message: "cancellation requested",
	})

	c.JSON(http.StatusAccepted, gin.H{"status": "cancelling"})
}

func (s *Server) handleEvaluateStatus(c *gin.Context) {
	s.jobMu.Lock()
	job := s.activeJob
	s.jobMu.Unlock()

	status := s.evalNotifier.LastStatus()

	resp := EvaluateStatusResponse{
		Running: job != nil,
	}

	if job != nil {
		resp.JobID = job.id
		resp.BatchID = job.batchID
		resp.RequestID = job.requestID
		resp.Total = job.total
	}

	if status != nil {
		resp.State = status.Type
		resp.Message = status.Message
		if status.Processed != 0 {
			resp.Processed = status.Processed
		}
		if status.Total != 0 {
			resp.Total = status.Total
		}
		if status.BatchID != 0 {
			resp.BatchID = status.BatchID
		}
		if status.Evaluation != nil {
			copyEval := *status.Evaluation
			resp.LastEvaluation = &copyEval
		}
	}

	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleEvaluateStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.evalNotifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("evaluation websocket connected")
	defer s.evalNotifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("evaluation websocket closed")
			} else {
				logrus.WithError(err).Warn("evaluation websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) handleExportCSV(c *gin.Context) {
	batchID := uint(0)
	if value := strings.TrimSpace(firstNonEmpty(c.Query("batch_id"), c.Query("batchId"))); value != "" {
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil || parsed == 0 {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid batch_id: %s", value))
			return
		}
		batchID = uint(parsed)
	}

	rows, _, err := s.db.ListEvaluations(store.EvaluationQuery{Limit: -1, BatchID: batchID})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename=radiation-risk-export.csv")
	c.Header("Content-Type", "text/csv")

	writer := csv.NewWriter(c.Writer)
	headers := []string{"dose_msv", "age_years", "gender", "age_modifier", "gender_modifier", "adjusted_dose_msv", "effect_category", "severity_rank", "advisory_notes", "created_at"}
	if err := writer.Write(headers); err != nil {
		return
	}
	for _, row := range rows {
		dto := FromModel(row)
		line := []string{
			fmt.Sprintf("%.2f", dto.DoseMSv),
			strconv.Itoa(dto.AgeYears),
			dto.Gender,
			fmt.Sprintf("%.2f", dto.AgeModifier),
			fmt.Sprintf("%.2f", dto.GenderModifier),
			fmt.Sprintf("%.2f", dto.AdjustedDoseMSv),
			dto.EffectCategory,
			strconv.Itoa(dto.SeverityRank),
			strings.Join(dto.AdvisoryNotes, "|"),
			dto.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := writer.Write(line); err != nil {
			return
		}
	}
	writer.Flush()
}

func (s *Server) handleExportJSON(c *gin.Context) {
	batchID := uint(0)
	if value := strings.TrimSpace(firstNonEmpty(c.Query("batch_id"), c.Query("batchId"))); value != "" {
		parsed, err := strconv.ParseUint(value, 10, 64)
		if err != nil || parsed == 0 {
			s.renderError(c, http.StatusBadRequest, fmt.Errorf("invalid batch_id: %s", value))
			return
		}
		batchID = uint(parsed)
	}

	rows, _, err := s.db.ListEvaluations(store.EvaluationQuery{Limit: -1, BatchID: batchID})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]EvaluationDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.Header("Content-Disposition", "attachment; filename=radiation-risk-export.json")
	c.JSON(http.StatusOK, dtos)
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// evaluationRow converts an evaluator input/result pair into its persisted form.
func evaluationRow(in dose.Input, result dose.Result, batchID uint, rowIndex int) store.Evaluation {
	row := store.Evaluation{
		BatchID:         batchID,
		RowIndex:        rowIndex,
		DoseMSv:         result.DoseMSv,
		AgeYears:        in.AgeYears,
		Gender:          in.Gender.String(),
		AgeModifier:     result.Modifiers.Age,
		GenderModifier:  result.Modifiers.Gender,
		AdjustedDoseMSv: result.AdjustedDoseMSv,
		EffectCategory:  result.Band.Category,
		EffectDetail:    result.Band.Detail,
		SeverityRank:    result.Band.Rank,
	}
	row.SetAdvisoryNotes(result.AdvisoryNotes)
	return row
}

func saveFormFile(header *multipart.FileHeader) (string, func(), error) {
	if header == nil {
		return "", nil, errors.New("file header is nil")
	}
	src, err := header.Open()
	if err != nil {
		return "", nil, err
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "upload-*"+filepath.Ext(header.Filename))
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(tmp.Name()) }
	return tmp.Name(), cleanup, nil
}

func parseUintParam(value string) (uint, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("identifier is required")
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier: %w", err)
	}
	if parsed == 0 {
		return 0, errors.New("identifier must be greater than zero")
	}
	return uint(parsed), nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
