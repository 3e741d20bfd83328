package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

// JobTypeTimetableRun identifies queued timetable searches.
const JobTypeTimetableRun = "timetable_run"

type academicYearReader interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

type courseReader interface {
	ListByAcademicYear(ctx context.Context, academicYearID string) ([]models.Course, error)
}

type teacherReader interface {
	ListByAcademicYear(ctx context.Context, academicYearID string) ([]models.Teacher, error)
}

type classroomReader interface {
	ListByAcademicYear(ctx context.Context, academicYearID string) ([]models.Classroom, error)
}

type scheduleStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, schedule *models.Schedule) error
	InsertSlots(ctx context.Context, exec sqlx.ExtContext, scheduleID string, slots []models.ScheduleSlot) error
	ListByAcademicYear(ctx context.Context, academicYearID string) ([]models.Schedule, error)
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

// commitmentStore feeds the search and audits stored schedules.
type commitmentStore interface {
	scheduler.CommitmentStore
	ListDoubleBookings(ctx context.Context) ([]models.SlotBooking, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type runQueue interface {
	TryEnqueue(job jobs.Job) error
}

// TimetableServiceConfig carries the search defaults applied to requests that omit them.
type TimetableServiceConfig struct {
	Defaults      scheduler.Params
	ExternalScope scheduler.CommitmentScope
	RunTTL        time.Duration
	// ProgressInterval throttles how often in-flight progress is written to the run store.
	ProgressInterval time.Duration
}

// TimetableService runs timetable searches and persists their winners.
type TimetableService struct {
	years       academicYearReader
	courses     courseReader
	teachers    teacherReader
	classrooms  classroomReader
	schedules   scheduleStore
	commitments commitmentStore
	tx          txProvider
	runs        RunStore
	queue       runQueue
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         TimetableServiceConfig
	now         func() time.Time

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewTimetableService wires timetable dependencies.
func NewTimetableService(
	years academicYearReader,
	courses courseReader,
	teachers teacherReader,
	classrooms classroomReader,
	schedules scheduleStore,
	commitments commitmentStore,
	tx txProvider,
	runs RunStore,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg TimetableServiceConfig,
) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if runs == nil {
		runs = NewMemoryRunStore()
	}
	if cfg.RunTTL <= 0 {
		cfg.RunTTL = 30 * time.Minute
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = time.Second
	}
	if cfg.ExternalScope == "" {
		cfg.ExternalScope = scheduler.ScopeAllTerms
	}
	if cfg.Defaults.PopulationSize <= 0 {
		cfg.Defaults.PopulationSize = 50
	}
	if cfg.Defaults.Generations <= 0 {
		cfg.Defaults.Generations = 100
	}
	if cfg.Defaults.Workers <= 0 {
		cfg.Defaults.Workers = 1
	}
	return &TimetableService{
		years:       years,
		courses:     courses,
		teachers:    teachers,
		classrooms:  classrooms,
		schedules:   schedules,
		commitments: commitments,
		tx:          tx,
		runs:        runs,
		metrics:     metrics,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
		active:      make(map[string]context.CancelFunc),
	}
}

// AttachQueue enables asynchronous submission. The queue handler should call HandleJob.
func (s *TimetableService) AttachQueue(q runQueue) {
	s.queue = q
}

// LoadTerm reads everything a search needs for one term.
func (s *TimetableService) LoadTerm(ctx context.Context, termID string) (scheduler.TermData, error) {
	year, err := s.years.FindByID(ctx, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return scheduler.TermData{}, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return scheduler.TermData{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	courses, err := s.courses.ListByAcademicYear(ctx, termID)
	if err != nil {
		return scheduler.TermData{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load courses")
	}
	teachers, err := s.teachers.ListByAcademicYear(ctx, termID)
	if err != nil {
		return scheduler.TermData{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	classrooms, err := s.classrooms.ListByAcademicYear(ctx, termID)
	if err != nil {
		return scheduler.TermData{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load classrooms")
	}
	return scheduler.TermData{Term: *year, Courses: courses, Teachers: teachers, Classrooms: classrooms}, nil
}

// ValidateTerm rejects terms a search cannot place every course in.
func (s *TimetableService) ValidateTerm(data scheduler.TermData) error {
	if len(data.Courses) == 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "academic year has no courses")
	}
	if len(data.Classrooms) == 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "academic year has no classrooms")
	}
	var orphans []string
	for _, course := range data.Courses {
		if len(course.TeacherIDs) == 0 {
			orphans = append(orphans, course.Name)
		}
	}
	if len(orphans) > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "courses without a qualified teacher: "+strings.Join(orphans, ", "))
	}
	return nil
}

func (s *TimetableService) resolveParams(req dto.GenerateTimetableRequest) (scheduler.Params, scheduler.CommitmentScope, error) {
	params := s.cfg.Defaults
	if req.PopulationSize != nil {
		params.PopulationSize = *req.PopulationSize
	}
	if req.Generations != nil {
		params.Generations = *req.Generations
	}
	if req.MutationRate != nil {
		params.MutationRate = *req.MutationRate
	}
	if req.EliteSize != nil {
		params.EliteSize = *req.EliteSize
	}
	if req.Workers != nil {
		params.Workers = *req.Workers
	}
	if req.Seed != nil {
		params.Seed = *req.Seed
	}
	if err := params.Validate(); err != nil {
		return params, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	scope := s.cfg.ExternalScope
	if req.ExternalScope != "" {
		parsed, err := scheduler.ParseCommitmentScope(req.ExternalScope)
		if err != nil {
			return params, "", appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
		}
		scope = parsed
	}
	return params, scope, nil
}

// prepare validates the request and the term, returning a fresh queued run.
func (s *TimetableService) prepare(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableRun, scheduler.TermData, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, scheduler.TermData{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable request")
	}
	params, scope, err := s.resolveParams(req)
	if err != nil {
		return nil, scheduler.TermData{}, err
	}
	data, err := s.LoadTerm(ctx, req.TermID)
	if err != nil {
		return nil, scheduler.TermData{}, err
	}
	if err := s.ValidateTerm(data); err != nil {
		return nil, scheduler.TermData{}, err
	}
	now := s.now().UTC()
	run := &dto.TimetableRun{
		ID:            uuid.NewString(),
		TermID:        req.TermID,
		Status:        dto.RunStatusQueued,
		State:         scheduler.StateIdle,
		Params:        params,
		ExternalScope: scope,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return run, data, nil
}

// Generate runs a search synchronously and returns the finished run with its
// rendered table and conflict report.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableRunResponse, error) {
	return s.GenerateWithProgress(ctx, req, nil)
}

// GenerateWithProgress is Generate with a per-generation observer.
func (s *TimetableService) GenerateWithProgress(ctx context.Context, req dto.GenerateTimetableRequest, observe scheduler.ProgressFunc) (*dto.TimetableRunResponse, error) {
	run, data, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.putRun(ctx, run); err != nil {
		return nil, err
	}
	tctx, err := s.execute(ctx, run, data, observe)
	if err != nil {
		return nil, err
	}

	resp := &dto.TimetableRunResponse{Run: run}
	if len(run.Best) > 0 && tctx != nil {
		presenter := scheduler.NewPresenter(tctx, s.commitments)
		grid := presenter.Grid(run.Best)
		resp.Grid = &grid
		report, err := presenter.Analyze(ctx, run.Best)
		if err != nil {
			s.logger.Warn("conflict analysis failed", zap.String("run_id", run.ID), zap.Error(err))
		} else {
			resp.Report = &report
		}
	}
	return resp, nil
}

// Submit queues a search and returns the run record immediately.
func (s *TimetableService) Submit(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.TimetableRun, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "background timetable runs are disabled")
	}
	run, _, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.putRun(ctx, run); err != nil {
		return nil, err
	}
	job := jobs.Job{ID: run.ID, Type: JobTypeTimetableRun, Payload: run.ID}
	if err := s.queue.TryEnqueue(job); err != nil {
		_ = s.runs.Delete(ctx, run.ID)
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "timetable queue is full, retry later")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrServiceUnavailable.Code, appErrors.ErrServiceUnavailable.Status, "timetable queue unavailable")
	}
	s.logger.Info("timetable run queued", zap.String("run_id", run.ID), zap.String("term_id", run.TermID))
	return run, nil
}

// HandleJob executes a queued run. Search failures are recorded on the run and
// do not surface as job errors, so the queue never re-runs a search.
func (s *TimetableService) HandleJob(ctx context.Context, job jobs.Job) error {
	runID, ok := job.Payload.(string)
	if !ok || runID == "" {
		runID = job.ID
	}
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return fmt.Errorf("load run %s: %w", runID, err)
	}
	if run.Status != dto.RunStatusQueued {
		s.logger.Info("skipping timetable run", zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
		return nil
	}
	data, err := s.LoadTerm(ctx, run.TermID)
	if err == nil {
		err = s.ValidateTerm(data)
	}
	if err != nil {
		s.fail(ctx, run, err)
		return nil
	}
	_, err = s.execute(ctx, run, data, nil)
	return err
}

// execute drives the search and records its outcome on run. The returned error
// only reports run store failures.
func (s *TimetableService) execute(ctx context.Context, run *dto.TimetableRun, data scheduler.TermData, observe scheduler.ProgressFunc) (*scheduler.Context, error) {
	log := s.logger.With(zap.String("run_id", run.ID), zap.String("term_id", run.TermID))
	if reqID := requestid.FromContext(ctx); reqID != "" {
		log = log.With(zap.String("request_id", reqID))
	}

	runCtx, cancel := context.WithCancel(ctx)
	claimed, err := s.claim(ctx, run, cancel)
	if err != nil || !claimed {
		cancel()
		return nil, err
	}
	defer func() {
		s.untrack(run.ID)
		cancel()
	}()

	tctx, err := scheduler.NewContext(data, run.ExternalScope)
	if err != nil {
		s.fail(ctx, run, err)
		return nil, nil
	}

	run.Status = dto.RunStatusRunning
	run.State = scheduler.StateRunning
	if err := s.putRun(ctx, run); err != nil {
		return nil, err
	}

	var lastWrite time.Time
	progress := func(p scheduler.Progress) {
		snapshot := p
		run.Progress = &snapshot
		if observe != nil {
			observe(p)
		}
		if s.now().Sub(lastWrite) < s.cfg.ProgressInterval {
			return
		}
		lastWrite = s.now()
		run.UpdatedAt = lastWrite.UTC()
		if err := s.runs.Put(ctx, run, s.cfg.RunTTL); err != nil {
			log.Warn("failed to persist run progress", zap.Error(err))
		}
	}

	driver := scheduler.NewDriver(tctx, s.commitments, s.metrics, log)
	result, runErr := driver.Run(runCtx, run.Params, progress)
	if result != nil {
		run.State = result.State
		run.Best = result.Best
		run.Fitness = result.Fitness
		run.Generations = result.Generations
		run.DurationMillis = result.Duration.Milliseconds()
	}

	switch {
	case runErr != nil:
		run.Status = dto.RunStatusFailed
		run.Error = runErr.Error()
		if run.State == "" || run.State == scheduler.StateRunning {
			run.State = scheduler.StateFailed
		}
		log.Warn("timetable run failed", zap.Error(runErr))
	case run.State == scheduler.StateFailed || run.State == scheduler.StateCancelled:
		run.Status = dto.RunStatusFailed
		run.Error = strings.ToLower(string(run.State))
	default:
		run.Status = dto.RunStatusCompleted
		log.Info("timetable run completed",
			zap.String("state", string(run.State)),
			zap.Float64("fitness", run.Fitness),
			zap.Int("generations", run.Generations))
	}
	// the outcome is recorded even when the caller has gone away
	if err := s.putRun(context.WithoutCancel(ctx), run); err != nil {
		return tctx, err
	}
	return tctx, nil
}

func (s *TimetableService) fail(ctx context.Context, run *dto.TimetableRun, cause error) {
	run.Status = dto.RunStatusFailed
	run.State = scheduler.StateFailed
	run.Error = cause.Error()
	if err := s.putRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("failed to record run failure", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (s *TimetableService) putRun(ctx context.Context, run *dto.TimetableRun) error {
	run.UpdatedAt = s.now().UTC()
	if err := s.runs.Put(ctx, run, s.cfg.RunTTL); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store timetable run")
	}
	return nil
}

// claim registers run as executing on this instance unless it left the queued
// status in the meantime, in which case run is refreshed from the store.
func (s *TimetableService) claim(ctx context.Context, run *dto.TimetableRun, cancel context.CancelFunc) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, err := s.runs.Get(ctx, run.ID)
	switch {
	case errors.Is(err, appErrors.ErrCacheMiss):
		return false, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found or expired")
	case err != nil:
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	case current.Status != dto.RunStatusQueued:
		s.logger.Info("timetable run no longer queued", zap.String("run_id", run.ID), zap.String("status", string(current.Status)))
		*run = *current
		return false, nil
	}
	s.active[run.ID] = cancel
	return true, nil
}

func (s *TimetableService) untrack(id string) {
	s.mu.Lock()
	delete(s.active, id)
	s.mu.Unlock()
}

func (s *TimetableService) getRun(ctx context.Context, runID string) (*dto.TimetableRun, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		s.metrics.RecordRunLookup(false)
		if errors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "timetable run not found or expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable run")
	}
	s.metrics.RecordRunLookup(true)
	return run, nil
}

// Status returns the current record of a run.
func (s *TimetableService) Status(ctx context.Context, runID string) (*dto.TimetableRun, error) {
	return s.getRun(ctx, runID)
}

// Cancel stops a queued or running search. Running searches stop at the next
// generation boundary and keep the best candidate found so far.
func (s *TimetableService) Cancel(ctx context.Context, runID string) (*dto.TimetableRun, error) {
	// held across the store write so a worker cannot claim the run in between
	s.mu.Lock()
	defer s.mu.Unlock()

	run, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Finished() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "timetable run already finished")
	}

	cancel, running := s.active[runID]
	if running {
		cancel()
		return run, nil
	}
	if run.Status == dto.RunStatusQueued {
		run.Status = dto.RunStatusFailed
		run.State = scheduler.StateCancelled
		run.Error = strings.ToLower(string(scheduler.StateCancelled))
		if err := s.putRun(ctx, run); err != nil {
			return nil, err
		}
		return run, nil
	}
	return nil, appErrors.Clone(appErrors.ErrConflict, "timetable run is owned by another instance")
}

// AnalyzeRun renders a finished run against the current commitments.
func (s *TimetableService) AnalyzeRun(ctx context.Context, runID string) (*dto.TimetableAnalysisResponse, error) {
	run, err := s.getRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !run.Finished() || len(run.Best) == 0 {
		return nil, appErrors.ErrRunNotReady
	}
	scope := run.ExternalScope
	if run.ScheduleID != "" {
		// the saved copy would otherwise conflict with itself
		scope = scheduler.ScopeOtherTerms
	}
	return s.analyze(ctx, run.TermID, scope, run.Best)
}

// AnalyzeSchedule renders a stored schedule against schedules of other terms.
func (s *TimetableService) AnalyzeSchedule(ctx context.Context, scheduleID string) (*dto.TimetableAnalysisResponse, error) {
	schedule, err := s.Get(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	candidate, err := CandidateFromSlots(schedule.Slots)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored schedule has malformed slots")
	}
	return s.analyze(ctx, schedule.AcademicYearID, scheduler.ScopeOtherTerms, candidate)
}

func (s *TimetableService) analyze(ctx context.Context, termID string, scope scheduler.CommitmentScope, c scheduler.Candidate) (*dto.TimetableAnalysisResponse, error) {
	data, err := s.LoadTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	tctx, err := s.termContext(ctx, data, scope)
	if err != nil {
		return nil, err
	}

	presenter := scheduler.NewPresenter(tctx, s.commitments)
	report, err := presenter.Analyze(ctx, c)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to analyse conflicts")
	}
	evaluator := scheduler.NewEvaluator(scheduler.NewScorer(tctx, s.commitments), s.logger)
	fitness, err := evaluator.Score(ctx, c)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to score timetable")
	}
	return &dto.TimetableAnalysisResponse{
		TermID:  termID,
		Fitness: fitness,
		Grid:    presenter.Grid(c),
		Report:  report,
		Details: presenter.Details(c),
	}, nil
}

// termContext builds a search context with the commitments stored right now.
func (s *TimetableService) termContext(ctx context.Context, data scheduler.TermData, scope scheduler.CommitmentScope) (*scheduler.Context, error) {
	tctx, err := scheduler.NewContext(data, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrPreconditionFailed.Code, appErrors.ErrPreconditionFailed.Status, err.Error())
	}
	if err := tctx.RefreshCommitments(ctx, s.commitments); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load commitments")
	}
	return tctx, nil
}

// Save persists the winner of a finished run in one transaction. The stored
// score is recomputed against the current commitments. A failed save keeps the
// run so it can be retried; saving an already saved run is a no-op.
func (s *TimetableService) Save(ctx context.Context, req dto.SaveTimetableRequest) (resp *dto.SaveTimetableResponse, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save request")
	}
	run, err := s.getRun(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if !run.Finished() {
		return nil, appErrors.ErrRunNotReady
	}
	if len(run.Best) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "timetable run produced no timetable")
	}
	if run.ScheduleID != "" {
		return &dto.SaveTimetableResponse{ScheduleID: run.ScheduleID, FitnessScore: run.FitnessScore, Slots: len(run.Best)}, nil
	}

	data, err := s.LoadTerm(ctx, run.TermID)
	if err != nil {
		return nil, err
	}
	// commitments saved since the search finished count against the stored score
	tctx, err := s.termContext(ctx, data, run.ExternalScope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSaveFailed.Code, appErrors.ErrSaveFailed.Status, appErrors.ErrSaveFailed.Message)
	}
	fitness, err := scheduler.NewEvaluator(scheduler.NewScorer(tctx, s.commitments), s.logger).Score(ctx, run.Best)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSaveFailed.Code, appErrors.ErrSaveFailed.Status, "failed to score timetable")
	}
	fitnessScore := int(math.Round(fitness * 100))

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = DefaultScheduleName(data.Term.Name, s.now())
	}

	schedule := &models.Schedule{
		Name:           name,
		AcademicYearID: run.TermID,
		CreatedAt:      s.now().UTC(),
		FitnessScore:   fitnessScore,
	}
	slots := SlotsFromCandidate(run.Best)

	defer func() {
		s.metrics.RecordSave(err == nil)
	}()

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSaveFailed.Code, appErrors.ErrSaveFailed.Status, appErrors.ErrSaveFailed.Message)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.schedules.Create(ctx, tx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSaveFailed.Code, appErrors.ErrSaveFailed.Status, appErrors.ErrSaveFailed.Message)
	}
	if err = s.schedules.InsertSlots(ctx, tx, schedule.ID, slots); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSaveFailed.Code, appErrors.ErrSaveFailed.Status, appErrors.ErrSaveFailed.Message)
	}
	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrSaveFailed.Code, appErrors.ErrSaveFailed.Status, appErrors.ErrSaveFailed.Message)
	}

	run.ScheduleID = schedule.ID
	run.FitnessScore = fitnessScore
	if perr := s.putRun(ctx, run); perr != nil {
		s.logger.Warn("failed to mark run as saved", zap.String("run_id", run.ID), zap.Error(perr))
	}
	s.logger.Info("timetable saved",
		zap.String("schedule_id", schedule.ID),
		zap.String("term_id", run.TermID),
		zap.Int("fitness_score", fitnessScore))

	return &dto.SaveTimetableResponse{
		ScheduleID:   schedule.ID,
		Name:         schedule.Name,
		FitnessScore: fitnessScore,
		Slots:        len(slots),
	}, nil
}

// List returns the stored schedules of a term, newest first.
func (s *TimetableService) List(ctx context.Context, query dto.TimetableQuery) ([]models.Schedule, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "termId is required")
	}
	schedules, err := s.schedules.ListByAcademicYear(ctx, query.TermID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	return schedules, nil
}

// Get returns a stored schedule with its slots.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return schedule, nil
}

// Delete removes a stored schedule and its slots.
func (s *TimetableService) Delete(ctx context.Context, id string) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = s.schedules.Delete(ctx, tx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit deletion")
	}
	return nil
}

// Audit reports teachers booked more than once for the same day and time
// across every stored schedule, whatever the term.
func (s *TimetableService) Audit(ctx context.Context) (*dto.CommitmentAuditResponse, error) {
	bookings, err := s.commitments.ListDoubleBookings(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to audit stored schedules")
	}

	resp := &dto.CommitmentAuditResponse{Conflicts: []dto.DoubleBooking{}}
	for _, b := range bookings {
		n := len(resp.Conflicts)
		if n == 0 || !sameBooking(resp.Conflicts[n-1], b) {
			resp.Conflicts = append(resp.Conflicts, dto.DoubleBooking{
				TeacherID:   b.TeacherID,
				TeacherName: b.TeacherName,
				Day:         b.DayOfWeek,
				DayName:     dayName(b.DayOfWeek),
				Time:        slotLabel(b.StartTime, b.EndTime),
			})
			n++
		}
		resp.Conflicts[n-1].Entries = append(resp.Conflicts[n-1].Entries, dto.BookingEntry{
			ScheduleID:   b.ScheduleID,
			ScheduleName: b.ScheduleName,
			TermID:       b.AcademicYearID,
			CourseID:     b.CourseID,
			CourseName:   b.CourseName,
		})
	}
	resp.Total = len(resp.Conflicts)
	if resp.Total > 0 {
		s.logger.Warn("stored schedules double-book teachers", zap.Int("conflicts", resp.Total))
	}
	return resp, nil
}

func sameBooking(group dto.DoubleBooking, b models.SlotBooking) bool {
	return group.TeacherID == b.TeacherID && group.Day == b.DayOfWeek && group.Time == slotLabel(b.StartTime, b.EndTime)
}

func dayName(day int) string {
	if scheduler.ValidDay(day) {
		return scheduler.DayNames[day]
	}
	return fmt.Sprintf("day %d", day)
}

func slotLabel(start, end string) string {
	from, err := scheduler.ParseClock(start)
	if err != nil {
		return start + "-" + end
	}
	to, err := scheduler.ParseClock(end)
	if err != nil {
		return start + "-" + end
	}
	return scheduler.TimeSlot{Start: from, End: to}.String()
}

// DefaultScheduleName names a schedule after its term and save date.
func DefaultScheduleName(termName string, at time.Time) string {
	return fmt.Sprintf("Schedule %s - %s", termName, at.Format("2006-01-02"))
}

// SlotsFromCandidate converts assignments to persisted slot rows.
func SlotsFromCandidate(c scheduler.Candidate) []models.ScheduleSlot {
	slots := make([]models.ScheduleSlot, 0, len(c))
	for _, a := range c {
		slots = append(slots, models.ScheduleSlot{
			CourseID:    a.CourseID,
			TeacherID:   a.TeacherID,
			ClassroomID: a.ClassroomID,
			DayOfWeek:   a.Day,
			StartTime:   a.Slot.Start.SQL(),
			EndTime:     a.Slot.End.SQL(),
		})
	}
	return slots
}

// CandidateFromSlots rebuilds assignments from persisted slot rows.
func CandidateFromSlots(slots []models.ScheduleSlot) (scheduler.Candidate, error) {
	c := make(scheduler.Candidate, 0, len(slots))
	for _, slot := range slots {
		start, err := scheduler.ParseClock(slot.StartTime)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", slot.ID, err)
		}
		end, err := scheduler.ParseClock(slot.EndTime)
		if err != nil {
			return nil, fmt.Errorf("slot %s: %w", slot.ID, err)
		}
		c = append(c, scheduler.Assignment{
			CourseID:    slot.CourseID,
			TeacherID:   slot.TeacherID,
			ClassroomID: slot.ClassroomID,
			Day:         slot.DayOfWeek,
			Slot:        scheduler.TimeSlot{Start: start, End: end},
		})
	}
	return c, nil
}
