package capability

import (
	"context"
	"errors"
	"fmt"

	"siteplan/internal/artifact"
	"siteplan/internal/params"
)

// ErrNoResult is returned when the model response carries no image part.
var ErrNoResult = errors.New("capability: no image in model response")

// Error wraps a failed adapter call with the operation that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("capability %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

func opErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// ConceptStyle names one road-network variant generated during concept
// selection.
type ConceptStyle string

const (
	StyleGrid     ConceptStyle = "grid"
	StyleLoop     ConceptStyle = "loop"
	StyleCulDeSac ConceptStyle = "cul_de_sac"
	StyleOrganic  ConceptStyle = "organic"
)

// ConceptDescriptor pairs a style with its display label and the prompt-side
// description handed to the generator.
type ConceptDescriptor struct {
	Style       ConceptStyle `json:"style"`
	Label       string       `json:"label"`
	Description string       `json:"description"`
}

// ConceptStyles returns the candidate descriptors in display order. The
// order is stable and independent of completion order.
func ConceptStyles() []ConceptDescriptor {
	return []ConceptDescriptor{
		{Style: StyleGrid, Label: "Grid Network", Description: "orthogonal street grid with uniform rectangular blocks"},
		{Style: StyleLoop, Label: "Loop Network", Description: "perimeter loop road with internal connector streets"},
		{Style: StyleCulDeSac, Label: "Cul-de-sac Network", Description: "branching dead-end courts off a central spine road"},
		{Style: StyleOrganic, Label: "Organic Network", Description: "curvilinear streets following the parcel contours"},
	}
}

// ConceptRequest carries everything the generator needs for one candidate.
type ConceptRequest struct {
	Boundary     artifact.Artifact
	AccessPoints *artifact.Artifact
	Purpose      string
	Priority     string
	Parameters   params.SiteParameters
	Style        ConceptDescriptor
}

// RefineRequest carries a plan-refinement call. Mask is nil for the textual
// path and set for the mask-guided visual path.
type RefineRequest struct {
	Plan       artifact.Artifact
	Reference  artifact.Artifact
	Mask       *artifact.Artifact
	Query      string
	Parameters params.SiteParameters
}

// SuggestionKind selects which suggestion list is being refreshed.
type SuggestionKind string

const (
	SuggestBoundary SuggestionKind = "boundary"
	SuggestPlan     SuggestionKind = "plan"
)

// DefaultSuggestions is the fixed fallback returned when a suggestion fetch
// fails or parses badly.
func DefaultSuggestions(kind SuggestionKind) []string {
	switch kind {
	case SuggestBoundary:
		return []string{
			"Close the gap on the northern edge",
			"Follow the fence line on the east side",
			"Exclude the drainage easement",
		}
	default:
		return []string{
			"Add more green space between lots",
			"Widen the main access road",
			"Increase lot sizes along the boundary",
		}
	}
}

// Adapter is the full set of asynchronous, fallible operations the workflow
// consumes. Implementations must not mutate session state; results feed back
// through the state machine.
type Adapter interface {
	// SummarizeSurvey describes the survey drawing in prose.
	SummarizeSurvey(ctx context.Context, survey artifact.Artifact) (string, error)

	// RecommendParameters returns reasoning text containing a labeled
	// parameter block extractable by params.ExtractFromText.
	RecommendParameters(ctx context.Context, survey artifact.Artifact, transcript string) (string, error)

	// DetectBoundary returns a transparent overlay with a single closed
	// red outline of the buildable parcel.
	DetectBoundary(ctx context.Context, survey artifact.Artifact) (artifact.Artifact, error)

	// RefineBoundary redraws the boundary overlay following the query and
	// optional mask.
	RefineBoundary(ctx context.Context, survey, boundary artifact.Artifact, mask *artifact.Artifact, query string) (artifact.Artifact, error)

	// GenerateConcept produces one site-plan candidate for a network style.
	GenerateConcept(ctx context.Context, req ConceptRequest) (artifact.Artifact, error)

	// RefinePlan produces the next plan revision (textual or mask-guided).
	RefinePlan(ctx context.Context, req RefineRequest) (artifact.Artifact, error)

	// UpdateParameters applies a natural-language request to the current
	// parameters and returns a schema-validated complete object.
	UpdateParameters(ctx context.Context, query string, current params.SiteParameters) (params.SiteParameters, error)

	// AnalyzePlan streams a compliance report as ordered text chunks. The
	// sequence is finite and not restartable; onChunk is called from a
	// single goroutine in arrival order.
	AnalyzePlan(ctx context.Context, plan artifact.Artifact, p params.SiteParameters, onChunk func(chunk string)) error

	// Suggestions returns exactly three short refinement prompts. It never
	// fails outward; parse or transport failures fall back to the fixed
	// defaults.
	Suggestions(ctx context.Context, kind SuggestionKind, contextText string) []string
}
