package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/transport-portal/internal/cache"
	"github.com/spec-kit/transport-portal/internal/config"
	"github.com/spec-kit/transport-portal/internal/domain"
	"github.com/spec-kit/transport-portal/internal/events"
	"github.com/spec-kit/transport-portal/internal/observability"
	"github.com/spec-kit/transport-portal/internal/repository"
	"github.com/spec-kit/transport-portal/internal/validation"
	"github.com/spec-kit/transport-portal/internal/workflow"
	apperrors "github.com/spec-kit/transport-portal/pkg/util/errorutil"
)

// ApplicationService coordinates the application lifecycle: every call is
// gated by the access policy, computed by the workflow engine and persisted
// through a single locked write.
type ApplicationService struct {
	apps          repository.ApplicationRepository
	stats         cache.StatsCache
	dispatcher    events.Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	cfg           config.WorkflowConfig
	now           func() time.Time
	nextRegNumber workflow.RegistrationNumberFunc

	// staleMu guards staleKinds: kinds whose cache invalidation failed and
	// must bypass the cache until one succeeds.
	staleMu    sync.Mutex
	staleKinds map[domain.ApplicationKind]bool
}

// ApplicationDependencies bundles collaborators for the application service.
type ApplicationDependencies struct {
	ApplicationRepo repository.ApplicationRepository
	StatsCache      cache.StatsCache
	Dispatcher      events.Dispatcher
	Metrics         *observability.Metrics
	Logger          *zap.Logger
	Config          config.WorkflowConfig
	// Clock and RegistrationNumbers default to time.Now and
	// workflow.GenerateRegistrationNumber.
	Clock               func() time.Time
	RegistrationNumbers workflow.RegistrationNumberFunc
}

// CreateApplicationInput describes a submission.
type CreateApplicationInput struct {
	Kind            domain.ApplicationKind
	ApplicationType domain.ApplicationType
	Details         domain.Details
}

// ListApplicationsInput describes listing filters. OwnerID is honoured for
// admins only; public callers always see their own records.
type ListApplicationsInput struct {
	Kind            domain.ApplicationKind
	OwnerID         *string
	Statuses        []domain.ApplicationStatus
	ApplicationType *domain.ApplicationType
	Category        *string
	Search          *string
	Page            int
	Limit           int
}

// ApplicationPage is one page of a listing.
type ApplicationPage struct {
	Items      []domain.Application
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// UpdateApplicationInput carries the optional parts of an update. DetailsPatch
// is merged over the stored details, so partial edits are allowed.
type UpdateApplicationInput struct {
	DetailsPatch map[string]json.RawMessage
	Status       *domain.ApplicationStatus
	Fees         *workflow.FeeAdjustment
}

// Empty reports whether the input requests no change.
func (in UpdateApplicationInput) Empty() bool {
	return len(in.DetailsPatch) == 0 && in.Status == nil && (in.Fees == nil || in.Fees.Empty())
}

// NewApplicationService constructs the service.
func NewApplicationService(deps ApplicationDependencies) *ApplicationService {
	svc := &ApplicationService{
		apps:          deps.ApplicationRepo,
		stats:         deps.StatsCache,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		cfg:           deps.Config,
		now:           deps.Clock,
		nextRegNumber: deps.RegistrationNumbers,
		staleKinds:    make(map[domain.ApplicationKind]bool),
	}
	if svc.stats == nil {
		svc.stats = cache.NewMemoryStatsCache()
	}
	if svc.logger == nil {
		svc.logger = zap.NewNop()
	}
	if svc.now == nil {
		svc.now = time.Now
	}
	if svc.nextRegNumber == nil {
		svc.nextRegNumber = workflow.GenerateRegistrationNumber
	}
	if svc.cfg.RegistrationRetryAttempts <= 0 {
		svc.cfg.RegistrationRetryAttempts = 1
	}
	if svc.cfg.DefaultPageSize <= 0 {
		svc.cfg.DefaultPageSize = 10
	}
	if svc.cfg.MaxPageSize < svc.cfg.DefaultPageSize {
		svc.cfg.MaxPageSize = svc.cfg.DefaultPageSize
	}
	return svc
}

// Create submits a new application owned by the caller.
func (s *ApplicationService) Create(ctx context.Context, actor domain.Actor, input CreateApplicationInput) (*domain.Application, error) {
	if actor.ID == "" {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	if !input.Kind.AcceptsType(input.ApplicationType) {
		return nil, apperrors.NewValidationError("Validation failed", map[string]any{
			"applicationType": "must be one of: " + joinTypes(domain.ApplicationTypes[input.Kind]),
		})
	}
	if input.Details == nil || input.Details.Kind() != input.Kind {
		return nil, apperrors.NewValidationError("invalid application details", nil)
	}
	if err := validation.Struct(input.Details); err != nil {
		return nil, err
	}

	app := workflow.NewApplication(actor.ID, input.ApplicationType, input.Details, s.now())
	if err := s.apps.Create(ctx, &app); err != nil {
		return nil, mapApplicationError(input.Kind, "", err)
	}

	s.metrics.IncApplicationCreated(string(app.Kind))
	s.invalidateStats(ctx, app.Kind)
	s.publishEvent(ctx, events.EventApplicationCreated, &app, actor, events.ApplicationCreatedPayload{
		ApplicationType: app.ApplicationType,
		TotalFee:        app.Fees.Total,
	})
	return &app, nil
}

// List returns a page of applications visible to the caller, newest first.
func (s *ApplicationService) List(ctx context.Context, actor domain.Actor, input ListApplicationsInput) (*ApplicationPage, error) {
	if actor.ID == "" {
		return nil, apperrors.NewUnauthorized("authentication required")
	}
	for _, status := range input.Statuses {
		if !status.Valid() {
			return nil, apperrors.NewValidationError("Validation failed", map[string]any{"status": "unknown status " + string(status)})
		}
	}
	if input.ApplicationType != nil && !input.Kind.AcceptsType(*input.ApplicationType) {
		return nil, apperrors.NewValidationError("Validation failed", map[string]any{
			"applicationType": "must be one of: " + joinTypes(domain.ApplicationTypes[input.Kind]),
		})
	}

	page, limit := s.pageBounds(input.Page, input.Limit)
	filter := repository.ApplicationFilter{
		Kind:            input.Kind,
		Statuses:        input.Statuses,
		ApplicationType: input.ApplicationType,
		Category:        input.Category,
		SearchTerm:      input.Search,
		Limit:           limit,
		Offset:          (page - 1) * limit,
	}
	if actor.IsAdmin() {
		filter.OwnerID = input.OwnerID
	} else {
		ownerID := actor.ID
		filter.OwnerID = &ownerID
	}

	items, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, mapApplicationError(input.Kind, "", err)
	}
	totalPages := (total + limit - 1) / limit
	return &ApplicationPage{Items: items, Total: total, Page: page, Limit: limit, TotalPages: totalPages}, nil
}

// Get returns one application if the caller may read it.
func (s *ApplicationService) Get(ctx context.Context, actor domain.Actor, kind domain.ApplicationKind, id string) (*domain.Application, error) {
	app, err := s.apps.GetByID(ctx, kind, id)
	if err != nil {
		return nil, mapApplicationError(kind, id, err)
	}
	if err := gate(*app, actor, workflow.OpRead); err != nil {
		return nil, mapApplicationError(kind, id, err)
	}
	return app, nil
}

// Update applies detail edits, a status change and a fee adjustment in one
// atomic write. A registration number collision during approval is retried
// with a fresh number.
func (s *ApplicationService) Update(ctx context.Context, actor domain.Actor, kind domain.ApplicationKind, id string, input UpdateApplicationInput) (*domain.Application, error) {
	if input.Empty() {
		return s.Get(ctx, actor, kind, id)
	}

	for attempt := 1; ; attempt++ {
		var before domain.Application
		updated, err := s.apps.Mutate(ctx, kind, id, func(app *domain.Application) error {
			before = app.Clone()
			next, err := s.applyUpdate(*app, actor, input)
			if err != nil {
				return err
			}
			*app = next
			return nil
		})
		if err == nil {
			s.afterUpdate(ctx, actor, before, updated, input)
			return updated, nil
		}
		if repository.IsDuplicate(err, "registrationNumber") && attempt < s.cfg.RegistrationRetryAttempts {
			s.metrics.IncRegistrationRetry(string(kind))
			s.logger.Warn("registration number collision; retrying",
				zap.String("application_id", id),
				zap.Int("attempt", attempt))
			continue
		}
		return nil, mapApplicationError(kind, id, err)
	}
}

func (s *ApplicationService) applyUpdate(app domain.Application, actor domain.Actor, input UpdateApplicationInput) (domain.Application, error) {
	now := s.now()
	if err := gate(app, actor, workflow.OpRead); err != nil {
		return app, err
	}

	next := app
	if len(input.DetailsPatch) > 0 {
		if err := gate(app, actor, workflow.OpUpdateFields); err != nil {
			return app, err
		}
		details, err := mergeDetails(app.Details, input.DetailsPatch)
		if err != nil {
			return app, err
		}
		if next, err = workflow.ReplaceDetails(next, details, now); err != nil {
			return app, err
		}
	}

	if input.Status != nil {
		if *input.Status != next.Status {
			if err := gate(next, actor, workflow.OpUpdateStatus); err != nil {
				return app, err
			}
		}
		var err error
		if next, err = workflow.Transition(next, *input.Status, actor, now, s.nextRegNumber); err != nil {
			return app, err
		}
	}

	if input.Fees != nil && !input.Fees.Empty() {
		if err := gate(next, actor, workflow.OpUpdateFees); err != nil {
			return app, err
		}
		var err error
		if next, err = workflow.ApplyFeeAdjustment(next, *input.Fees, now); err != nil {
			return app, err
		}
	}
	return next, nil
}

func (s *ApplicationService) afterUpdate(ctx context.Context, actor domain.Actor, before domain.Application, after *domain.Application, input UpdateApplicationInput) {
	s.invalidateStats(ctx, after.Kind)
	if before.Status != after.Status {
		s.metrics.IncStatusTransition(string(after.Kind), string(before.Status), string(after.Status))
		s.publishEvent(ctx, events.EventApplicationStatusChanged, after, actor, events.ApplicationStatusChangedPayload{
			OldStatus:          before.Status,
			NewStatus:          after.Status,
			RegistrationNumber: after.RegistrationNumber,
		})
	}
	detailsChanged := len(input.DetailsPatch) > 0
	feesChanged := before.Fees.Base != after.Fees.Base ||
		before.Fees.Penalty != after.Fees.Penalty ||
		before.Fees.PaymentStatus != after.Fees.PaymentStatus
	if detailsChanged || feesChanged {
		s.publishEvent(ctx, events.EventApplicationUpdated, after, actor, events.ApplicationUpdatedPayload{
			DetailsChanged: detailsChanged,
			FeesChanged:    feesChanged,
			TotalFee:       after.Fees.Total,
		})
	}
}

// Delete removes an application. Owners may only withdraw pending ones.
func (s *ApplicationService) Delete(ctx context.Context, actor domain.Actor, kind domain.ApplicationKind, id string) error {
	var removed domain.Application
	err := s.apps.Delete(ctx, kind, id, func(app *domain.Application) error {
		if err := gate(*app, actor, workflow.OpDelete); err != nil {
			return err
		}
		removed = app.Clone()
		return nil
	})
	if err != nil {
		return mapApplicationError(kind, id, err)
	}
	s.invalidateStats(ctx, kind)
	s.publishEvent(ctx, events.EventApplicationDeleted, &removed, actor, nil)
	return nil
}

// AddNote appends an admin note to the application's ledger.
func (s *ApplicationService) AddNote(ctx context.Context, actor domain.Actor, kind domain.ApplicationKind, id, text string) (*domain.Application, *domain.Note, error) {
	app, err := s.apps.GetByID(ctx, kind, id)
	if err != nil {
		return nil, nil, mapApplicationError(kind, id, err)
	}
	if err := gate(*app, actor, workflow.OpAddNote); err != nil {
		return nil, nil, mapApplicationError(kind, id, err)
	}
	_, note, err := workflow.AppendNote(*app, actor.ID, text, s.now())
	if err != nil {
		return nil, nil, mapApplicationError(kind, id, err)
	}
	if err := s.apps.AppendNote(ctx, kind, id, &note); err != nil {
		return nil, nil, mapApplicationError(kind, id, err)
	}

	s.invalidateStats(ctx, kind)

	updated, err := s.apps.GetByID(ctx, kind, id)
	if err != nil {
		return nil, nil, mapApplicationError(kind, id, err)
	}
	s.publishEvent(ctx, events.EventApplicationNoteAdded, updated, actor, events.ApplicationNoteAddedPayload{
		NoteID:      note.ID,
		BodyPreview: preview(note.Text, 80),
	})
	return updated, &note, nil
}

// Stats aggregates every application of a kind. Admin only.
func (s *ApplicationService) Stats(ctx context.Context, actor domain.Actor, kind domain.ApplicationKind) (*workflow.Stats, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin role required")
	}
	return s.kindStats(ctx, kind)
}

// Overview aggregates all kinds concurrently. Admin only.
func (s *ApplicationService) Overview(ctx context.Context, actor domain.Actor) (map[domain.ApplicationKind]workflow.Stats, error) {
	if !actor.IsAdmin() {
		return nil, apperrors.NewForbidden("admin role required")
	}

	results := make([]workflow.Stats, len(domain.Kinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range domain.Kinds {
		g.Go(func() error {
			stats, err := s.kindStats(gctx, kind)
			if err != nil {
				return err
			}
			results[i] = *stats
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	overview := make(map[domain.ApplicationKind]workflow.Stats, len(domain.Kinds))
	for i, kind := range domain.Kinds {
		overview[kind] = results[i]
	}
	return overview, nil
}

// kindStats serves from cache when the generation read before the snapshot is
// still current; otherwise it recomputes and stores under that generation.
func (s *ApplicationService) kindStats(ctx context.Context, kind domain.ApplicationKind) (*workflow.Stats, error) {
	if !s.retryStaleInvalidation(ctx, kind) {
		s.metrics.IncStatsCacheLookup(string(kind), "bypass")
		return s.aggregate(ctx, kind)
	}

	gen, err := s.stats.Generation(ctx, kind)
	cacheUsable := err == nil
	if err != nil {
		s.metrics.IncStatsCacheLookup(string(kind), "error")
		s.logger.Warn("stats cache unavailable", zap.String("kind", string(kind)), zap.Error(err))
	}

	if cacheUsable {
		cached, ok, err := s.stats.Get(ctx, kind, gen)
		switch {
		case err != nil:
			s.metrics.IncStatsCacheLookup(string(kind), "error")
			s.logger.Warn("stats cache read failed", zap.String("kind", string(kind)), zap.Error(err))
		case ok:
			s.metrics.IncStatsCacheLookup(string(kind), "hit")
			return cached, nil
		default:
			s.metrics.IncStatsCacheLookup(string(kind), "miss")
		}
	}

	stats, err := s.aggregate(ctx, kind)
	if err != nil {
		return nil, err
	}

	if cacheUsable {
		if err := s.stats.Set(ctx, kind, gen, *stats); err != nil {
			s.logger.Warn("stats cache write failed", zap.String("kind", string(kind)), zap.Error(err))
		}
	}
	return stats, nil
}

func (s *ApplicationService) aggregate(ctx context.Context, kind domain.ApplicationKind) (*workflow.Stats, error) {
	records, err := s.apps.Snapshot(ctx, kind)
	if err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("snapshot %s: %w", kind, err))
	}
	stats := workflow.Aggregate(records)
	return &stats, nil
}

func (s *ApplicationService) pageBounds(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = s.cfg.DefaultPageSize
	}
	if limit > s.cfg.MaxPageSize {
		limit = s.cfg.MaxPageSize
	}
	return page, limit
}

// invalidateStats advances the cache generation for kind. When that fails the
// entry at the current generation is evicted and kind is marked stale, so
// reads recompute until an invalidation goes through.
func (s *ApplicationService) invalidateStats(ctx context.Context, kind domain.ApplicationKind) {
	err := s.stats.Invalidate(ctx, kind)
	if err == nil {
		return
	}
	s.logger.Warn("stats cache invalidation failed", zap.String("kind", string(kind)), zap.Error(err))
	s.markStale(kind, true)
	if gen, genErr := s.stats.Generation(ctx, kind); genErr == nil {
		if evictErr := s.stats.Evict(ctx, kind, gen); evictErr != nil {
			s.logger.Warn("stats cache eviction failed", zap.String("kind", string(kind)), zap.Error(evictErr))
		}
	}
}

// retryStaleInvalidation reports whether the cache may serve kind.
func (s *ApplicationService) retryStaleInvalidation(ctx context.Context, kind domain.ApplicationKind) bool {
	s.staleMu.Lock()
	stale := s.staleKinds[kind]
	s.staleMu.Unlock()
	if !stale {
		return true
	}
	if err := s.stats.Invalidate(ctx, kind); err != nil {
		return false
	}
	s.markStale(kind, false)
	return true
}

func (s *ApplicationService) markStale(kind domain.ApplicationKind, stale bool) {
	s.staleMu.Lock()
	defer s.staleMu.Unlock()
	if stale {
		s.staleKinds[kind] = true
	} else {
		delete(s.staleKinds, kind)
	}
}

func (s *ApplicationService) publishEvent(ctx context.Context, eventType events.EventType, app *domain.Application, actor domain.Actor, payload interface{}) {
	if s.dispatcher == nil || app == nil {
		return
	}
	event := events.Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Kind:          app.Kind,
		ApplicationID: app.ID,
		OwnerID:       app.OwnerID,
		Actor:         events.Actor{ID: actor.ID, Role: actor.Role},
		Timestamp:     s.now(),
		Payload:       payload,
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed",
			zap.String("event_type", string(eventType)),
			zap.String("application_id", app.ID),
			zap.Error(err))
	}
}

// gate wraps a policy denial so it maps to a forbidden response naming op.
func gate(app domain.Application, actor domain.Actor, op workflow.Operation) error {
	if workflow.Authorize(app, actor, op) {
		return nil
	}
	return &policyDenial{op: op}
}

type policyDenial struct {
	op workflow.Operation
}

func (d *policyDenial) Error() string {
	return fmt.Sprintf("operation %s not permitted", d.op)
}

func (d *policyDenial) Unwrap() error {
	return workflow.ErrForbidden
}

var denialMessages = map[workflow.Operation]string{
	workflow.OpRead:         "you do not have access to this application",
	workflow.OpUpdateFields: "application details can only be changed by the owner while the application is Pending",
	workflow.OpUpdateStatus: "only administrators can change application status",
	workflow.OpUpdateFees:   "only administrators can adjust fees",
	workflow.OpDelete:       "applications can only be deleted by the owner while Pending",
	workflow.OpAddNote:      "only administrators can add notes",
}

// mergeDetails overlays patch on the JSON form of current and decodes the
// result as the same details type.
func mergeDetails(current domain.Details, patch map[string]json.RawMessage) (domain.Details, error) {
	raw, err := json.Marshal(current)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return nil, fmt.Errorf("decode details: %w", err)
	}
	for key, value := range patch {
		merged[key] = value
	}
	data, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode details: %w", err)
	}
	details, err := domain.DecodeDetails(current.Kind(), data)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid application details", map[string]any{"details": err.Error()})
	}
	if err := validation.Struct(details); err != nil {
		return nil, err
	}
	return details, nil
}

// mapApplicationError converts repository and workflow errors to DomainErrors.
func mapApplicationError(kind domain.ApplicationKind, id string, err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var denial *policyDenial
	if errors.As(err, &denial) {
		return apperrors.NewForbidden(denialMessages[denial.op])
	}
	var dup *repository.DuplicateError
	if errors.As(err, &dup) {
		return apperrors.NewDuplicateField(dup.Field, dup.Value)
	}

	switch {
	case errors.Is(err, repository.ErrNotFound):
		details := map[string]any{}
		if id != "" {
			details["id"] = id
		}
		return apperrors.NewNotFound(string(kind), details)
	case errors.Is(err, workflow.ErrForbidden):
		return apperrors.NewForbidden(denialMessages[workflow.OpUpdateStatus])
	case errors.Is(err, workflow.ErrInvalidTransition):
		return apperrors.NewInvalidTransition(err.Error(), nil)
	case errors.Is(err, workflow.ErrUnknownStatus):
		return apperrors.NewValidationError("Validation failed", map[string]any{"status": err.Error()})
	case errors.Is(err, workflow.ErrInvalidFees):
		return apperrors.NewValidationError("Validation failed", map[string]any{"fees": err.Error()})
	case errors.Is(err, workflow.ErrEmptyNote):
		return apperrors.NewValidationError("Validation failed", map[string]any{"text": "is required"})
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewDomainError("TIMEOUT", "request timed out", http.StatusGatewayTimeout, nil)
	default:
		return apperrors.NewInternalError(err)
	}
}

func joinTypes(types []domain.ApplicationType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
