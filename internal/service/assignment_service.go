package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/repair-service/internal/config"
	"github.com/spec-kit/repair-service/internal/domain"
	"github.com/spec-kit/repair-service/internal/events"
	"github.com/spec-kit/repair-service/internal/observability"
	"github.com/spec-kit/repair-service/internal/repository"
	apperrors "github.com/spec-kit/repair-service/pkg/util/errorutil"
)

// Scoring weights, expressed on a 0-100 scale.
const (
	weightSkill        = 0.40
	weightWorkload     = 0.30
	weightAvailability = 0.20
	weightLocation     = 0.10

	neutralSkillScore    = 50
	locationMatchScore   = 100
	locationMissScore    = 30
	locationUnknownScore = 50

	// maxReassignmentsPerTechnician bounds rebalancing proposals per
	// overloaded technician.
	maxReassignmentsPerTechnician = 3
)

// AssignmentCriteria describes what the case needs from a technician.
type AssignmentCriteria struct {
	DeviceType string
	Category   string
	Priority   domain.CasePriority
	Location   *string
}

func (c AssignmentCriteria) skillTags() []string {
	tags := []string{}
	if c.DeviceType != "" {
		tags = append(tags, c.DeviceType)
	}
	if c.Category != "" {
		tags = append(tags, c.Category)
	}
	return tags
}

// TechnicianScore is one ranked candidate with its score breakdown.
type TechnicianScore struct {
	Technician        domain.Technician
	Score             float64
	SkillScore        float64
	WorkloadScore     float64
	AvailabilityScore float64
	LocationScore     float64
}

// ReassignmentSuggestion proposes moving a case off an overloaded technician.
type ReassignmentSuggestion struct {
	CaseID           string
	Priority         domain.CasePriority
	FromTechnicianID string
	ToTechnicianID   string
}

// AssignmentService scores technicians and performs workload-aware
// assignment.
type AssignmentService struct {
	cases       repository.CaseRepository
	technicians repository.TechnicianRepository
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	cfg         config.AssignmentConfig
	logger      *zap.Logger
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	CaseRepo       repository.CaseRepository
	TechnicianRepo repository.TechnicianRepository
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Config         config.AssignmentConfig
	Logger         *zap.Logger
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentService{
		cases:       deps.CaseRepo,
		technicians: deps.TechnicianRepo,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		cfg:         deps.Config,
		logger:      logger,
	}
}

// ScoreTechnician computes the weighted fitness score for one candidate.
// Pure; always in [0, 100].
func (s *AssignmentService) ScoreTechnician(tech *domain.Technician, criteria AssignmentCriteria) TechnicianScore {
	score := TechnicianScore{Technician: *tech}

	tags := criteria.skillTags()
	if len(tags) == 0 {
		score.SkillScore = neutralSkillScore
	} else {
		matched := 0
		for _, tag := range tags {
			if tech.HasSkill(tag) {
				matched++
			}
		}
		score.SkillScore = float64(matched) / float64(len(tags)) * 100
	}

	maxActive := s.cfg.MaxCasesPerTechnician
	remaining := maxActive - tech.Workload
	if remaining < 0 {
		remaining = 0
	}
	score.WorkloadScore = float64(remaining) / float64(maxActive) * 100

	// active technicians are always considered available; a richer
	// availability model (shift calendars) plugs in here
	score.AvailabilityScore = 100

	switch {
	case criteria.Location == nil || tech.Location == nil:
		score.LocationScore = locationUnknownScore
	case *criteria.Location == *tech.Location:
		score.LocationScore = locationMatchScore
	default:
		score.LocationScore = locationMissScore
	}

	score.Score = weightSkill*score.SkillScore +
		weightWorkload*score.WorkloadScore +
		weightAvailability*score.AvailabilityScore +
		weightLocation*score.LocationScore
	return score
}

// RankCandidates filters eligible technicians and orders them best-first.
// Ties break deterministically: lower current workload, then technician id.
func (s *AssignmentService) RankCandidates(techs []domain.Technician, criteria AssignmentCriteria) []TechnicianScore {
	tags := criteria.skillTags()
	ranked := make([]TechnicianScore, 0, len(techs))
	for i := range techs {
		tech := techs[i]
		if !tech.Active || tech.Workload >= s.cfg.MaxCasesPerTechnician {
			continue
		}
		if len(tags) > 0 && !hasAnySkill(&tech, tags) {
			continue
		}
		ranked = append(ranked, s.ScoreTechnician(&tech, criteria))
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Technician.Workload != ranked[j].Technician.Workload {
			return ranked[i].Technician.Workload < ranked[j].Technician.Workload
		}
		return ranked[i].Technician.ID < ranked[j].Technician.ID
	})
	return ranked
}

func hasAnySkill(tech *domain.Technician, tags []string) bool {
	for _, tag := range tags {
		if tech.HasSkill(tag) {
			return true
		}
	}
	return false
}

// AutoAssign picks the best-scoring eligible technician and writes the
// assignment onto the case. Returns (nil, nil) when no candidate exists.
// The store's conditional update guards against concurrent assignments
// pushing a technician past the cap; on a lost race the next candidate is
// tried.
func (s *AssignmentService) AutoAssign(ctx context.Context, caseID string, criteria AssignmentCriteria) (*domain.Technician, error) {
	active := true
	techs, err := s.technicians.List(ctx, repository.TechnicianFilter{Active: &active, Limit: 500})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	ranked := s.RankCandidates(techs, criteria)
	if len(ranked) == 0 {
		s.logger.Info("no eligible technician for case", zap.String("case_id", caseID))
		return nil, nil
	}

	for _, candidate := range ranked {
		err := s.cases.AssignTechnician(ctx, caseID, candidate.Technician.ID, s.cfg.MaxCasesPerTechnician)
		if err == nil {
			if s.metrics != nil {
				s.metrics.AutoAssignments.Inc()
			}
			s.publishAssigned(ctx, caseID, candidate)
			tech := candidate.Technician
			return &tech, nil
		}
		if errors.Is(err, pgx.ErrNoRows) {
			// candidate hit the cap concurrently, or the case vanished;
			// confirm the case still exists before trying the next one
			if _, getErr := s.cases.GetByID(ctx, caseID); getErr != nil {
				if errors.Is(getErr, pgx.ErrNoRows) {
					return nil, apperrors.NewNotFound("case", map[string]any{"case_id": caseID})
				}
				return nil, apperrors.MapError(getErr)
			}
			continue
		}
		return nil, apperrors.MapError(err)
	}
	return nil, nil
}

// Candidates returns the ranked eligible technicians for the given
// criteria without assigning anyone.
func (s *AssignmentService) Candidates(ctx context.Context, criteria AssignmentCriteria) ([]TechnicianScore, error) {
	active := true
	techs, err := s.technicians.List(ctx, repository.TechnicianFilter{Active: &active, Limit: 500})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return s.RankCandidates(techs, criteria), nil
}

// ListTechnicians returns the roster with computed workloads.
func (s *AssignmentService) ListTechnicians(ctx context.Context, filter repository.TechnicianFilter) ([]domain.Technician, error) {
	techs, err := s.technicians.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return techs, nil
}

// CreateTechnician registers a new roster entry.
func (s *AssignmentService) CreateTechnician(ctx context.Context, tech *domain.Technician) error {
	if tech.Name == "" || tech.Email == "" {
		return apperrors.NewValidationError("name, email required", nil)
	}
	if err := s.technicians.Create(ctx, tech); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// UpdateTechnician rewrites an existing roster entry.
func (s *AssignmentService) UpdateTechnician(ctx context.Context, tech *domain.Technician) error {
	if tech.ID == "" {
		return apperrors.NewValidationError("technician id required", nil)
	}
	err := s.technicians.Update(ctx, tech)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound("technician", map[string]any{"technician_id": tech.ID})
	}
	if err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

// SuggestReassignments proposes moving the lowest-priority, most recent
// active cases off technicians above the cap onto the least-loaded
// technician under it.
func (s *AssignmentService) SuggestReassignments(ctx context.Context) ([]ReassignmentSuggestion, error) {
	active := true
	techs, err := s.technicians.List(ctx, repository.TechnicianFilter{Active: &active, Limit: 500})
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	projected := make(map[string]int, len(techs))
	for _, tech := range techs {
		projected[tech.ID] = tech.Workload
	}

	suggestions := []ReassignmentSuggestion{}
	for _, tech := range techs {
		if tech.Workload <= s.cfg.MaxCasesPerTechnician {
			continue
		}
		cases, err := s.cases.ListActiveByTechnician(ctx, tech.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		// lowest priority first, most recent first within a priority
		sort.SliceStable(cases, func(i, j int) bool {
			ri, rj := domain.PriorityRank(cases[i].Priority), domain.PriorityRank(cases[j].Priority)
			if ri != rj {
				return ri < rj
			}
			return cases[i].CreatedAt.After(cases[j].CreatedAt)
		})

		moved := 0
		for _, kase := range cases {
			if moved >= maxReassignmentsPerTechnician {
				break
			}
			target := leastLoadedTarget(techs, projected, tech.ID, s.cfg.MaxCasesPerTechnician)
			if target == nil {
				break
			}
			suggestions = append(suggestions, ReassignmentSuggestion{
				CaseID:           kase.ID,
				Priority:         kase.Priority,
				FromTechnicianID: tech.ID,
				ToTechnicianID:   target.ID,
			})
			projected[target.ID]++
			projected[tech.ID]--
			moved++
		}
	}
	return suggestions, nil
}

func leastLoadedTarget(techs []domain.Technician, projected map[string]int, excludeID string, maxActive int) *domain.Technician {
	var best *domain.Technician
	for i := range techs {
		tech := &techs[i]
		if tech.ID == excludeID || !tech.Active {
			continue
		}
		if projected[tech.ID] >= maxActive {
			continue
		}
		if best == nil || projected[tech.ID] < projected[best.ID] ||
			(projected[tech.ID] == projected[best.ID] && tech.ID < best.ID) {
			best = tech
		}
	}
	return best
}

func (s *AssignmentService) publishAssigned(ctx context.Context, caseID string, candidate TechnicianScore) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventCaseAssigned,
		CaseID:    caseID,
		Timestamp: time.Now(),
		Payload: events.CaseAssignedPayload{
			TechnicianID: candidate.Technician.ID,
			Score:        candidate.Score,
			Auto:         true,
		},
	})
}
