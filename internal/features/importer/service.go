package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"civic-os/internal/config"
	"civic-os/internal/features/lookup"
	"civic-os/internal/features/schema"
	"civic-os/internal/spreadsheet"
	"civic-os/pkg/utils"

	"go.uber.org/zap"
)

// ErrBulkInsert marks a failed bulk insert: the wizard is back in Results
// with its validated rows intact, so the caller may retry.
var ErrBulkInsert = errors.New("bulk insert failed")

// DataService is the slice of the data plane the orchestrator needs
type DataService interface {
	FetchRows(ctx context.Context, table string, columns []string, token string) ([]map[string]any, error)
	BulkInsert(ctx context.Context, table string, rows []map[string]any, token string, progress func(pct int)) error
}

// CreateJobRequest carries one uploaded file into the wizard
type CreateJobRequest struct {
	EntityKey string
	FileName  string
	FileSize  int64
	File      io.Reader
	Token     string
	UserID    string
}

// JobStatus is a live snapshot of a wizard run
type JobStatus struct {
	Job                *ImportJob `json:"job"`
	ValidationProgress int        `json:"validation_progress"`
	UploadProgress     int        `json:"upload_progress"`
	CanProceedToImport bool       `json:"can_proceed_to_import"`
}

type ImportService interface {
	CreateJob(ctx context.Context, req CreateJobRequest) (*ImportJob, error)
	GetStatus(ctx context.Context, id string) (*JobStatus, error)
	GetUserJobs(ctx context.Context, userID string) ([]ImportJob, error)
	Cancel(id string) error
	Confirm(ctx context.Context, id, token string) (*ImportJob, error)
	Reset(ctx context.Context, id string) error
	ErrorReport(id string) (string, []byte, error)
	Subscribe(id string) (<-chan Event, func(), error)
	PurgeSessions(cutoff time.Time) int
	Shutdown()
}

// session is one live wizard run. The mutex makes the orchestrator the only
// writer of wizard state; the worker communicates through events alone.
type session struct {
	mu          sync.Mutex
	wizard      *Wizard
	worker      *Worker
	job         *ImportJob
	subscribers map[chan Event]struct{}
	updatedAt   time.Time
}

func (s *session) broadcast(ev Event) {
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop rather than stall the pump
		}
	}
}

// terminateWorker tears down the live worker, if any. Safe to call twice.
func (s *session) terminateWorker() {
	if s.worker != nil {
		s.worker.Terminate()
		s.worker = nil
	}
}

// closeSubscribers ends every listener's stream. Called once the run can
// produce no further events, so websocket readers drain and return.
func (s *session) closeSubscribers() {
	for ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}

func (s *session) touch() {
	s.updatedAt = time.Now()
}

type ImportServiceImpl struct {
	ImportRepo    ImportRepository
	SchemaService schema.SchemaService
	LookupService lookup.LookupService
	Data          DataService
	Config        *config.Config
	Logger        *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session
}

func NewImportService(
	importRepo ImportRepository,
	schemaService schema.SchemaService,
	lookupService lookup.LookupService,
	data DataService,
	cfg *config.Config,
	logger *zap.Logger,
) ImportService {
	return &ImportServiceImpl{
		ImportRepo:    importRepo,
		SchemaService: schemaService,
		LookupService: lookupService,
		Data:          data,
		Config:        cfg,
		Logger:        logger,
		sessions:      make(map[string]*session),
	}
}

func (s *ImportServiceImpl) CreateJob(ctx context.Context, req CreateJobRequest) (*ImportJob, error) {
	if req.EntityKey == "" {
		return nil, fmt.Errorf("entity is required")
	}

	maxBytes := int64(s.Config.MaxImportFileMB) * 1024 * 1024
	if req.FileSize > maxBytes {
		return nil, fmt.Errorf("file is %s; the maximum import size is %dMB",
			utils.FormatFileSizeMB(req.FileSize), s.Config.MaxImportFileMB)
	}

	payload, err := io.ReadAll(io.LimitReader(req.File, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(payload)) > maxBytes {
		return nil, fmt.Errorf("file is %s; the maximum import size is %dMB",
			utils.FormatFileSizeMB(int64(len(payload))), s.Config.MaxImportFileMB)
	}

	parsed, err := spreadsheet.Parse(bytes.NewReader(payload), req.FileName)
	if err != nil {
		return nil, fmt.Errorf("could not read '%s' as a spreadsheet: %w", req.FileName, err)
	}

	specs, err := s.SchemaService.GetColumnSpecs(ctx, req.EntityKey, req.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to load column metadata: %w", err)
	}

	lookups, err := s.LookupService.BuildForSpecs(ctx, specs, req.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	serialized := lookup.Serialize(lookups)

	job := &ImportJob{
		UserID:    req.UserID,
		EntityKey: req.EntityKey,
		FileName:  req.FileName,
		FileSize:  int64(len(payload)),
		Step:      StepValidating,
		TotalRows: len(parsed.Rows),
	}
	if err := s.ImportRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to record import job: %w", err)
	}
	s.saveUpload(job, payload)

	wizard := NewWizard(req.EntityKey)
	if err := wizard.BeginValidation(req.FileName, job.FileSize, parsed.Headers, parsed.Rows, parsed.DataStartRow); err != nil {
		return nil, err
	}

	worker := NewWorker()
	sess := &session{
		wizard:      wizard,
		worker:      worker,
		job:         job,
		subscribers: make(map[chan Event]struct{}),
		updatedAt:   time.Now(),
	}

	s.mu.Lock()
	s.sessions[job.ID.Hex()] = sess
	s.mu.Unlock()

	// Submit under the session lock so a concurrent Shutdown cannot
	// terminate the worker between the nil check and the send
	sess.mu.Lock()
	if sess.worker != nil {
		sess.worker.Validate(ValidateRequest{
			EntityKey: req.EntityKey,
			Rows:      parsed.Rows,
			Specs:     specs,
			Lookups:   serialized,
			StartRow:  parsed.DataStartRow,
		})
	}
	sess.mu.Unlock()

	go s.pumpEvents(sess)

	s.Logger.Info("import validation started",
		zap.String("jobId", job.ID.Hex()),
		zap.String("entity", req.EntityKey),
		zap.Int("rows", len(parsed.Rows)))

	return job, nil
}

// pumpEvents is the single reader of the worker's event stream. Events arrive
// in emission order, so progress is monotonic and exactly one terminal event
// reaches the wizard.
func (s *ImportServiceImpl) pumpEvents(sess *session) {
	sess.mu.Lock()
	worker := sess.worker
	sess.mu.Unlock()
	if worker == nil {
		return
	}

	for ev := range worker.Events() {
		sess.mu.Lock()
		sess.touch()

		switch ev.Type {
		case EventProgress:
			if ev.Progress != nil {
				sess.wizard.SetValidationProgress(ev.Progress.Percentage)
			}

		case EventComplete:
			if ev.Results != nil {
				sess.wizard.CompleteValidation(ev.Results.ValidRows, ev.Results.ErrorSummary)
				sess.job.Step = StepResults
				sess.job.ValidRowCount = sess.wizard.ValidRowCount
				sess.job.ErrorSummary = sess.wizard.ErrorSummary
				s.persist(sess.job)
			}
			sess.terminateWorker()

		case EventCancelled:
			sess.wizard.FailValidation("Validation was cancelled")
			sess.job.Step = StepChoose
			sess.job.ErrorMessage = sess.wizard.ErrorMessage
			s.persist(sess.job)
			sess.terminateWorker()

		case EventError:
			sess.wizard.FailValidation(fmt.Sprintf("Validation failed: %s", ev.Error))
			sess.job.Step = StepChoose
			sess.job.ErrorMessage = sess.wizard.ErrorMessage
			s.persist(sess.job)
			sess.terminateWorker()
			s.Logger.Error("validation worker fault",
				zap.String("jobId", sess.job.ID.Hex()),
				zap.String("fault", ev.Error))
		}

		sess.broadcast(ev)
		sess.mu.Unlock()
	}
}

func (s *ImportServiceImpl) GetStatus(ctx context.Context, id string) (*JobStatus, error) {
	if sess := s.session(id); sess != nil {
		sess.mu.Lock()
		defer sess.mu.Unlock()
		jobCopy := *sess.job
		jobCopy.Step = sess.wizard.Step
		jobCopy.ValidRowCount = sess.wizard.ValidRowCount
		jobCopy.ImportedCount = sess.wizard.ImportedCount
		jobCopy.ErrorMessage = sess.wizard.ErrorMessage
		jobCopy.ErrorSummary = sess.wizard.ErrorSummary
		return &JobStatus{
			Job:                &jobCopy,
			ValidationProgress: sess.wizard.ValidationProgress,
			UploadProgress:     sess.wizard.UploadProgress,
			CanProceedToImport: sess.wizard.CanProceedToImport(),
		}, nil
	}

	job, err := s.ImportRepo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("import job not found: %w", err)
	}
	return &JobStatus{Job: job}, nil
}

func (s *ImportServiceImpl) GetUserJobs(ctx context.Context, userID string) ([]ImportJob, error) {
	return s.ImportRepo.FindByUserID(ctx, userID, 50)
}

// Cancel is advisory: the wizard stays in Validating until the worker
// acknowledges with a cancelled event.
func (s *ImportServiceImpl) Cancel(id string) error {
	sess := s.session(id)
	if sess == nil {
		return fmt.Errorf("no active import for job '%s'", id)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.wizard.Step != StepValidating || sess.worker == nil {
		return fmt.Errorf("job '%s' is not validating", id)
	}
	sess.worker.Cancel()
	return nil
}

// Confirm performs the single all-or-nothing bulk insert. Any server-side
// rejection fails the whole batch and returns the wizard to Results with the
// validated rows intact.
func (s *ImportServiceImpl) Confirm(ctx context.Context, id, token string) (*ImportJob, error) {
	sess := s.session(id)
	if sess == nil {
		return nil, fmt.Errorf("no active import for job '%s'", id)
	}

	sess.mu.Lock()
	sess.touch()
	if err := sess.wizard.BeginImport(); err != nil {
		sess.mu.Unlock()
		return nil, err
	}
	rows := sess.wizard.ValidRows
	entity := sess.wizard.EntityKey
	sess.job.Step = StepImporting
	s.persist(sess.job)
	sess.mu.Unlock()

	err := s.Data.BulkInsert(ctx, entity, rows, token, func(pct int) {
		sess.mu.Lock()
		sess.wizard.SetUploadProgress(pct)
		sess.broadcast(Event{Type: EventProgress, Progress: &Progress{
			CurrentRow: len(rows) * pct / 100,
			TotalRows:  len(rows),
			Percentage: pct,
			Stage:      "importing",
		}})
		sess.mu.Unlock()
	})

	sess.mu.Lock()

	if err != nil {
		sess.wizard.FailImport(fmt.Sprintf("Import failed: %v", err))
		sess.job.Step = StepResults
		sess.job.ErrorMessage = sess.wizard.ErrorMessage
		s.persist(sess.job)
		sess.mu.Unlock()
		s.Logger.Error("bulk insert failed",
			zap.String("jobId", id),
			zap.String("entity", entity),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrBulkInsert, err)
	}

	sess.wizard.CompleteImport()
	now := time.Now()
	sess.job.Step = StepSuccess
	sess.job.ImportedCount = sess.wizard.ImportedCount
	sess.job.ErrorMessage = ""
	sess.job.CompletedAt = &now
	s.persist(sess.job)

	jobCopy := *sess.job

	// The run is over: end subscriber streams so websocket readers drain
	sess.closeSubscribers()
	sess.mu.Unlock()

	// Release the session so the source and validated rows can be collected.
	// Status reads fall back to the persisted job. The session lock is not
	// held here; session-map locks always come first.
	s.removeSession(id)

	s.Logger.Info("import completed",
		zap.String("jobId", id),
		zap.String("entity", entity),
		zap.Int("imported", jobCopy.ImportedCount))

	return &jobCopy, nil
}

func (s *ImportServiceImpl) removeSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Reset starts the run over, discarding validated rows and any live worker
func (s *ImportServiceImpl) Reset(ctx context.Context, id string) error {
	sess := s.session(id)
	if sess == nil {
		return fmt.Errorf("no active import for job '%s'", id)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.touch()
	sess.terminateWorker()
	sess.wizard.Reset()
	sess.job.Step = StepChoose
	sess.job.ValidRowCount = 0
	sess.job.ImportedCount = 0
	sess.job.ErrorMessage = ""
	sess.job.ErrorSummary = nil
	s.persist(sess.job)
	return nil
}

// ErrorReport renders the most recent validation pass's errors against the
// original rows.
func (s *ImportServiceImpl) ErrorReport(id string) (string, []byte, error) {
	sess := s.session(id)
	if sess == nil {
		return "", nil, fmt.Errorf("no active import for job '%s'", id)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.wizard.Step == StepChoose || sess.wizard.Step == StepValidating {
		return "", nil, fmt.Errorf("no validation results available yet")
	}

	data, err := BuildErrorReport(sess.wizard.Headers, sess.wizard.SourceRows, sess.wizard.StartRow, sess.wizard.ErrorSummary)
	if err != nil {
		return "", nil, fmt.Errorf("failed to build error report: %w", err)
	}

	name := strings.TrimSuffix(sess.job.FileName, filepath.Ext(sess.job.FileName)) + "_errors.xlsx"
	return name, data, nil
}

// Subscribe attaches a listener to the run's event stream. The returned
// function detaches it.
func (s *ImportServiceImpl) Subscribe(id string) (<-chan Event, func(), error) {
	sess := s.session(id)
	if sess == nil {
		return nil, nil, fmt.Errorf("no active import for job '%s'", id)
	}

	ch := make(chan Event, 64)
	sess.mu.Lock()
	if sess.subscribers == nil {
		sess.mu.Unlock()
		return nil, nil, fmt.Errorf("import '%s' has finished", id)
	}
	sess.subscribers[ch] = struct{}{}
	sess.mu.Unlock()

	cancel := func() {
		sess.mu.Lock()
		if _, live := sess.subscribers[ch]; live {
			delete(sess.subscribers, ch)
			close(ch)
		}
		sess.mu.Unlock()
	}
	return ch, cancel, nil
}

// PurgeSessions drops sessions idle since before the cutoff, ending their
// workers and subscriber streams. Runs alongside the stored-job sweep.
func (s *ImportServiceImpl) PurgeSessions(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		stale := sess.updatedAt.Before(cutoff)
		if stale {
			sess.terminateWorker()
			sess.closeSubscribers()
		}
		sess.mu.Unlock()

		if stale {
			delete(s.sessions, id)
			purged++
		}
	}
	return purged
}

// Shutdown terminates every live worker and stream. Called on application stop.
func (s *ImportServiceImpl) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.mu.Lock()
		sess.terminateWorker()
		sess.closeSubscribers()
		sess.mu.Unlock()
	}
}

func (s *ImportServiceImpl) session(id string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

func (s *ImportServiceImpl) persist(job *ImportJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.ImportRepo.Update(ctx, job); err != nil {
		s.Logger.Warn("failed to persist import job", zap.String("jobId", job.ID.Hex()), zap.Error(err))
	}
}

// saveUpload keeps the original file on disk for audit; failures are logged,
// never fatal to the run.
func (s *ImportServiceImpl) saveUpload(job *ImportJob, payload []byte) {
	if s.Config.FSPath == "" {
		return
	}
	if err := os.MkdirAll(s.Config.FSPath, 0755); err != nil {
		s.Logger.Warn("failed to create upload dir", zap.Error(err))
		return
	}
	name := fmt.Sprintf("%s_%s", job.ID.Hex(), strings.ReplaceAll(filepath.Base(job.FileName), " ", "_"))
	path := filepath.Join(s.Config.FSPath, name)
	if err := os.WriteFile(path, payload, 0644); err != nil {
		s.Logger.Warn("failed to save upload", zap.Error(err))
		return
	}
	job.FilePath = path
}
