package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/timetable-api/internal/models"
)

// ErrStructuralInput matches every *StructuralInputError via errors.Is.
var ErrStructuralInput = errors.New("structural input error")

// StructuralInputError is returned when the scope lacks the inputs required to build any timetable.
type StructuralInputError struct {
	Missing []string
}

func (e *StructuralInputError) Error() string {
	return fmt.Sprintf("%s: no %s available for the requested scope", ErrStructuralInput.Error(), strings.Join(e.Missing, ", "))
}

// Is lets callers match the error with errors.Is(err, ErrStructuralInput).
func (e *StructuralInputError) Is(target error) bool {
	return target == ErrStructuralInput
}

// Fallback reasons recorded on an Outcome.
const (
	FallbackConflicts     = "conflicts"
	FallbackMalformed     = "malformed_candidate"
	FallbackProducerError = "producer_error"
)

// Outcome is the accepted schedule together with everything worth warning about.
type Outcome struct {
	Slots              []models.TimetableSlot `json:"slots"`
	Strategy           string                 `json:"strategy"`
	Fallback           bool                   `json:"fallback"`
	FallbackReason     string                 `json:"fallbackReason,omitempty"`
	PrimaryError       string                 `json:"primaryError,omitempty"`
	RejectedConflicts  []string               `json:"rejectedConflicts"`
	RejectedDetail     []Conflict             `json:"-"`
	RemainingConflicts []string               `json:"remainingConflicts"`
	Coverage           []CoverageShortfall    `json:"coverage"`
	CoverageRatio      float64                `json:"coverageRatio"`
	LoadWarnings       []string               `json:"loadWarnings"`
}

// HasWarnings reports whether the outcome should be published with warnings.
func (o *Outcome) HasWarnings() bool {
	return o.Fallback ||
		len(o.RemainingConflicts) > 0 ||
		len(o.Coverage) > 0 ||
		len(o.LoadWarnings) > 0
}

// Warnings flattens every warning into display messages.
func (o *Outcome) Warnings() []string {
	warnings := make([]string, 0, len(o.RemainingConflicts)+len(o.Coverage)+len(o.LoadWarnings)+1)
	if o.Fallback {
		warnings = append(warnings, fmt.Sprintf("primary candidate rejected (%s); fallback strategy %s used", o.FallbackReason, o.Strategy))
	}
	warnings = append(warnings, o.RemainingConflicts...)
	for _, shortfall := range o.Coverage {
		warnings = append(warnings, shortfall.Message())
	}
	warnings = append(warnings, o.LoadWarnings...)
	return warnings
}

// Orchestrator runs the primary producer, validates its candidate and falls back when it is unusable.
type Orchestrator struct {
	primary  CandidateProducer
	fallback CandidateProducer
	logger   *zap.Logger
}

// NewOrchestrator constructs an orchestrator. A nil fallback defaults to the base greedy strategy.
func NewOrchestrator(primary, fallback CandidateProducer, logger *zap.Logger) *Orchestrator {
	if fallback == nil {
		fallback = NewGenerator(StrategyBase)
	}
	if primary == nil {
		primary = NewGenerator(StrategyEnhanced)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{primary: primary, fallback: fallback, logger: logger}
}

// CheckStructure rejects scopes that have nothing to schedule or nowhere to schedule it.
func CheckStructure(demand Demand, supply Supply) error {
	missing := make([]string, 0, 3)
	if len(demand.Subjects) == 0 {
		missing = append(missing, "subjects")
	}
	if len(supply.Classrooms) == 0 {
		missing = append(missing, "classrooms")
	}
	if len(supply.Grid) == 0 {
		missing = append(missing, "time slots")
	}
	if len(missing) > 0 {
		return &StructuralInputError{Missing: missing}
	}
	return nil
}

// Plan produces a published-ready outcome or a structural error. It never returns conflicts as errors.
func (o *Orchestrator) Plan(ctx context.Context, demand Demand, supply Supply) (*Outcome, error) {
	if err := CheckStructure(demand, supply); err != nil {
		return nil, err
	}

	outcome := &Outcome{
		RejectedConflicts:  make([]string, 0),
		RemainingConflicts: make([]string, 0),
	}

	slots, err := o.primary.ProduceCandidate(ctx, demand, supply)
	if err == nil {
		err = CheckReferences(slots, demand, supply)
	}
	switch {
	case err == nil:
		result := ValidateAgainst(slots, supply.Occupied)
		if result.Valid {
			outcome.Strategy = o.primary.Name()
			outcome.Slots = slots
			o.finish(outcome, demand, supply)
			return outcome, nil
		}
		outcome.FallbackReason = FallbackConflicts
		outcome.RejectedConflicts = result.Errors
		outcome.RejectedDetail = result.Conflicts
		o.logger.Warn("primary candidate has conflicts",
			zap.String("producer", o.primary.Name()),
			zap.Int("conflicts", len(result.Errors)),
		)
	case errors.Is(err, ErrMalformedCandidate):
		outcome.FallbackReason = FallbackMalformed
		outcome.PrimaryError = err.Error()
		o.logger.Warn("primary candidate malformed", zap.String("producer", o.primary.Name()), zap.Error(err))
	default:
		outcome.FallbackReason = FallbackProducerError
		outcome.PrimaryError = err.Error()
		o.logger.Warn("primary producer failed", zap.String("producer", o.primary.Name()), zap.Error(err))
	}

	fallbackSlots, err := o.fallback.ProduceCandidate(ctx, demand, supply)
	if err != nil {
		return nil, fmt.Errorf("fallback producer %s: %w", o.fallback.Name(), err)
	}
	outcome.Fallback = true
	outcome.Strategy = o.fallback.Name()
	outcome.Slots = fallbackSlots
	if remaining := ValidateAgainst(fallbackSlots, supply.Occupied); !remaining.Valid {
		outcome.RemainingConflicts = remaining.Errors
	}
	o.finish(outcome, demand, supply)
	return outcome, nil
}

func (o *Orchestrator) finish(outcome *Outcome, demand Demand, supply Supply) {
	outcome.Coverage, outcome.CoverageRatio = CoverageReport(demand.Subjects, supply.Faculty, outcome.Slots)
	outcome.LoadWarnings = CheckFacultyLoad(demand.Subjects, supply.Faculty, outcome.Slots)
	if len(outcome.Coverage) > 0 {
		o.logger.Info("coverage shortfall",
			zap.Int64("department_id", demand.DepartmentID),
			zap.Int("semester", demand.Semester),
			zap.Int("subjects", len(outcome.Coverage)),
			zap.Float64("ratio", outcome.CoverageRatio),
		)
	}
}
