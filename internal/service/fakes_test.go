package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/orchestrator"
	"github.com/spec-kit/repair-service/internal/repository"
)

// memCaseRepo is an in-memory CaseRepository for tests.
type memCaseRepo struct {
	mu     sync.Mutex
	nextID int
	cases  map[string]*domain.Case
	// assignErrs forces AssignTechnician failures per technician id.
	assignErrs  map[string]error
	assignCalls []string
	updateErr   error
}

func newMemCaseRepo() *memCaseRepo {
	return &memCaseRepo{cases: map[string]*domain.Case{}, assignErrs: map[string]error{}}
}

func (r *memCaseRepo) put(kase *domain.Case) *domain.Case {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kase.ID == "" {
		r.nextID++
		kase.ID = fmt.Sprintf("case-%d", r.nextID)
	}
	clone := *kase
	r.cases[kase.ID] = &clone
	return kase
}

func (r *memCaseRepo) Create(ctx context.Context, kase *domain.Case) error {
	kase.CreatedAt = time.Now()
	kase.UpdatedAt = kase.CreatedAt
	r.put(kase)
	return nil
}

func (r *memCaseRepo) Update(ctx context.Context, kase *domain.Case) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cases[kase.ID]; !ok {
		return pgx.ErrNoRows
	}
	kase.UpdatedAt = time.Now()
	clone := *kase
	r.cases[kase.ID] = &clone
	return nil
}

func (r *memCaseRepo) GetByID(ctx context.Context, id string) (*domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kase, ok := r.cases[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *kase
	return &clone, nil
}

func (r *memCaseRepo) ListWithFilter(ctx context.Context, filter repository.CaseFilter) ([]domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Case{}
	for _, kase := range r.cases {
		out = append(out, *kase)
	}
	return out, nil
}

func (r *memCaseRepo) ListDueForSLACheck(ctx context.Context, olderThan time.Time, limit int) ([]domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Case{}
	for _, kase := range r.cases {
		if kase.Status == domain.CaseStatusCompleted || kase.Status == domain.CaseStatusCancelled {
			continue
		}
		if kase.LastSLACheck == nil || kase.LastSLACheck.Before(olderThan) {
			out = append(out, *kase)
		}
	}
	return out, nil
}

func (r *memCaseRepo) ListActiveByTechnician(ctx context.Context, technicianID string) ([]domain.Case, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Case{}
	for _, kase := range r.cases {
		if kase.TechnicianID != nil && *kase.TechnicianID == technicianID && !kase.IsTerminal() {
			out = append(out, *kase)
		}
	}
	return out, nil
}

func (r *memCaseRepo) AssignTechnician(ctx context.Context, caseID, technicianID string, maxActive int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.assignCalls = append(r.assignCalls, technicianID)
	if err, ok := r.assignErrs[technicianID]; ok {
		return err
	}
	kase, ok := r.cases[caseID]
	if !ok {
		return pgx.ErrNoRows
	}
	now := time.Now()
	kase.TechnicianID = &technicianID
	kase.AssignedAt = &now
	if kase.Status == domain.CaseStatusOpen {
		kase.Status = domain.CaseStatusAssigned
	}
	return nil
}

func (r *memCaseRepo) UpdateSLAState(ctx context.Context, caseID string, prevCheck *time.Time, status domain.ComplianceStatus, level int, checkedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kase, ok := r.cases[caseID]
	if !ok {
		return false, pgx.ErrNoRows
	}
	if (kase.LastSLACheck == nil) != (prevCheck == nil) {
		return false, nil
	}
	if kase.LastSLACheck != nil && prevCheck != nil && !kase.LastSLACheck.Equal(*prevCheck) {
		return false, nil
	}
	kase.SLAStatus = &status
	kase.EscalationLevel = level
	kase.LastSLACheck = &checkedAt
	return true, nil
}

func (r *memCaseRepo) SetWorkflowInstance(ctx context.Context, caseID, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	kase, ok := r.cases[caseID]
	if !ok {
		return pgx.ErrNoRows
	}
	kase.WorkflowInstanceID = &instanceID
	return nil
}

// memTechnicianRepo is an in-memory TechnicianRepository.
type memTechnicianRepo struct {
	mu    sync.Mutex
	techs []domain.Technician
}

func (r *memTechnicianRepo) Create(ctx context.Context, tech *domain.Technician) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tech.ID == "" {
		tech.ID = fmt.Sprintf("tech-%d", len(r.techs)+1)
	}
	tech.CreatedAt = time.Now()
	tech.UpdatedAt = tech.CreatedAt
	r.techs = append(r.techs, *tech)
	return nil
}

func (r *memTechnicianRepo) Update(ctx context.Context, tech *domain.Technician) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.techs {
		if r.techs[i].ID == tech.ID {
			r.techs[i] = *tech
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (r *memTechnicianRepo) GetByID(ctx context.Context, id string) (*domain.Technician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.techs {
		if r.techs[i].ID == id {
			clone := r.techs[i]
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memTechnicianRepo) List(ctx context.Context, filter repository.TechnicianFilter) ([]domain.Technician, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.Technician{}
	for _, tech := range r.techs {
		if filter.Active != nil && tech.Active != *filter.Active {
			continue
		}
		out = append(out, tech)
	}
	return out, nil
}

// memSLAConfigRepo resolves configurations from a static map.
type memSLAConfigRepo struct {
	byKey        map[string]*domain.SLAConfiguration
	byWorkflowID map[string]*domain.SLAConfiguration
	resolveErr   error
}

func newMemSLAConfigRepo() *memSLAConfigRepo {
	return &memSLAConfigRepo{
		byKey:        map[string]*domain.SLAConfiguration{},
		byWorkflowID: map[string]*domain.SLAConfiguration{},
	}
}

func (r *memSLAConfigRepo) add(cfg *domain.SLAConfiguration) {
	r.byKey[cfg.CustomerTier+"|"+cfg.ServiceType] = cfg
	if cfg.WorkflowConfigID != nil {
		r.byWorkflowID[*cfg.WorkflowConfigID] = cfg
	}
}

func (r *memSLAConfigRepo) GetByID(ctx context.Context, id string) (*domain.SLAConfiguration, error) {
	for _, cfg := range r.byKey {
		if cfg.ID == id {
			return cfg, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memSLAConfigRepo) ResolveForCase(ctx context.Context, customerTier, serviceType string) (*domain.SLAConfiguration, error) {
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	for _, key := range []string{
		customerTier + "|" + serviceType,
		customerTier + "|*",
		"*|*",
	} {
		if cfg, ok := r.byKey[key]; ok {
			return cfg, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memSLAConfigRepo) GetByWorkflowConfig(ctx context.Context, workflowConfigID string) (*domain.SLAConfiguration, error) {
	if cfg, ok := r.byWorkflowID[workflowConfigID]; ok {
		return cfg, nil
	}
	return nil, pgx.ErrNoRows
}

// memEscalationRepo appends records in memory.
type memEscalationRepo struct {
	mu      sync.Mutex
	records []domain.EscalationRecord
	err     error
}

func (r *memEscalationRepo) Append(ctx context.Context, record *domain.EscalationRecord) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = fmt.Sprintf("esc-%d", len(r.records)+1)
	record.CreatedAt = time.Now()
	r.records = append(r.records, *record)
	return nil
}

func (r *memEscalationRepo) ListByCase(ctx context.Context, caseID string) ([]domain.EscalationRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []domain.EscalationRecord{}
	for _, record := range r.records {
		if record.CaseID == caseID {
			out = append(out, record)
		}
	}
	return out, nil
}

func (r *memEscalationRepo) MaxLevel(ctx context.Context, caseID string) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, record := range r.records {
		if record.CaseID == caseID && record.Level > max {
			max = record.Level
		}
	}
	return max, nil
}

// memWorkflowRepo mirrors instances in memory.
type memWorkflowRepo struct {
	mu        sync.Mutex
	instances map[string]*domain.WorkflowInstance
}

func newMemWorkflowRepo() *memWorkflowRepo {
	return &memWorkflowRepo{instances: map[string]*domain.WorkflowInstance{}}
}

func (r *memWorkflowRepo) Save(ctx context.Context, instance *domain.WorkflowInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *instance
	r.instances[instance.ID] = &clone
	return nil
}

func (r *memWorkflowRepo) UpdateState(ctx context.Context, instanceID string, status domain.WorkflowStatus, currentStep domain.WorkflowStep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	instance, ok := r.instances[instanceID]
	if !ok {
		return pgx.ErrNoRows
	}
	instance.Status = status
	instance.CurrentStep = currentStep
	return nil
}

func (r *memWorkflowRepo) GetByID(ctx context.Context, id string) (*domain.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	instance, ok := r.instances[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *instance
	return &clone, nil
}

func (r *memWorkflowRepo) GetActiveByCase(ctx context.Context, caseID string) (*domain.WorkflowInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, instance := range r.instances {
		if instance.CaseID == caseID && instance.IsActive() {
			clone := *instance
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

// fakeOrchestratorClient records calls and delegates to overridable funcs.
type fakeOrchestratorClient struct {
	mu           sync.Mutex
	selectCalls  int
	startCalls   int
	stepCalls    int
	eventCalls   int
	selectFn     func(ctx context.Context, criteria orchestrator.Criteria) (*orchestrator.WorkflowConfig, error)
	startFn      func(ctx context.Context, definitionID, caseID string, initial map[string]any) (*orchestrator.Instance, error)
	completeFn   func(ctx context.Context, instanceID string, step domain.WorkflowStep, result map[string]any) error
	postEventFn  func(ctx context.Context, instanceID, eventType string, data map[string]any) error
	lastEventTyp string
}

func (f *fakeOrchestratorClient) SelectConfiguration(ctx context.Context, criteria orchestrator.Criteria) (*orchestrator.WorkflowConfig, error) {
	f.mu.Lock()
	f.selectCalls++
	f.mu.Unlock()
	if f.selectFn != nil {
		return f.selectFn(ctx, criteria)
	}
	return &orchestrator.WorkflowConfig{ID: "wfc-1", DefinitionID: "repair_standard"}, nil
}

func (f *fakeOrchestratorClient) StartInstance(ctx context.Context, definitionID, caseID string, initial map[string]any) (*orchestrator.Instance, error) {
	f.mu.Lock()
	f.startCalls++
	f.mu.Unlock()
	if f.startFn != nil {
		return f.startFn(ctx, definitionID, caseID, initial)
	}
	return &orchestrator.Instance{
		ID:           "wf-" + caseID,
		DefinitionID: definitionID,
		Status:       domain.WorkflowStatusRunning,
		CurrentStep:  domain.StepDeviceIntake,
	}, nil
}

func (f *fakeOrchestratorClient) CompleteStep(ctx context.Context, instanceID string, step domain.WorkflowStep, result map[string]any) error {
	f.mu.Lock()
	f.stepCalls++
	f.mu.Unlock()
	if f.completeFn != nil {
		return f.completeFn(ctx, instanceID, step, result)
	}
	return nil
}

func (f *fakeOrchestratorClient) PostEvent(ctx context.Context, instanceID, eventType string, data map[string]any) error {
	f.mu.Lock()
	f.eventCalls++
	f.lastEventTyp = eventType
	f.mu.Unlock()
	if f.postEventFn != nil {
		return f.postEventFn(ctx, instanceID, eventType, data)
	}
	return nil
}

func (f *fakeOrchestratorClient) GetInstance(ctx context.Context, instanceID string) (*orchestrator.Instance, error) {
	return nil, pgx.ErrNoRows
}

// recordingDispatcher captures published events.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(ctx context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {}

func (d *recordingDispatcher) byType(eventType events.EventType) []events.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := []events.Event{}
	for _, event := range d.events {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

func hoursAgo(h float64) time.Time {
	return time.Now().Add(-time.Duration(h * float64(time.Hour)))
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }
