package session

// Stage identifies one screen of the workflow. Transitions are validated by
// the reducer; nothing outside this package mutates a stage directly.
type Stage string

const (
	StageUpload             Stage = "upload"
	StageAnalysis           Stage = "analysis"
	StageBoundaryReview     Stage = "boundary_review"
	StageBoundaryEdit       Stage = "boundary_edit"
	StagePreGenerationQuery Stage = "pre_generation_query"
	StageAccessPoints       Stage = "access_points"
	StageConceptSelection   Stage = "concept_selection"
	StagePlanRefinement     Stage = "plan_refinement"
	StagePlanEdit           Stage = "plan_edit"
	StagePlanAnalysis       Stage = "plan_analysis"
)

var allStages = map[Stage]bool{
	StageUpload:             true,
	StageAnalysis:           true,
	StageBoundaryReview:     true,
	StageBoundaryEdit:       true,
	StagePreGenerationQuery: true,
	StageAccessPoints:       true,
	StageConceptSelection:   true,
	StagePlanRefinement:     true,
	StagePlanEdit:           true,
	StagePlanAnalysis:       true,
}

// ParseStage validates a stage name read from storage or the wire.
func ParseStage(s string) (Stage, bool) {
	st := Stage(s)
	return st, allStages[st]
}

// backTarget maps each stage to where back-navigation lands. StageUpload is
// absent: back is a no-op there. StageAnalysis maps to StageUpload via a full
// reset, handled specially by the reducer.
var backTarget = map[Stage]Stage{
	StageAnalysis:           StageUpload,
	StageBoundaryReview:     StageAnalysis,
	StageBoundaryEdit:       StageBoundaryReview,
	StagePreGenerationQuery: StageBoundaryReview,
	StageAccessPoints:       StagePreGenerationQuery,
	StageConceptSelection:   StagePreGenerationQuery,
	StagePlanRefinement:     StageConceptSelection,
	StagePlanEdit:           StagePlanRefinement,
	StagePlanAnalysis:       StagePlanRefinement,
}
