package capability

import (
	"context"
	"errors"
	"fmt"

	"siteplan/internal/artifact"
	"siteplan/internal/params"
)

// tinyPNG is a valid 1x1 transparent PNG used as every fake image payload.
var tinyPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a,
	0x00, 0x00, 0x00, 0x0d, 0x49, 0x48, 0x44, 0x52,
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4,
	0x89, 0x00, 0x00, 0x00, 0x0a, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4e, 0x44, 0xae,
	0x42, 0x60, 0x82,
}

// FakePNG returns a copy of the stub image payload for tests.
func FakePNG() []byte { return append([]byte(nil), tinyPNG...) }

// Fake is a deterministic in-memory Adapter for offline use and tests.
// FailOps marks operation names that return an error; FailStyles marks
// concept styles whose generation fails.
type Fake struct {
	FailOps    map[string]bool
	FailStyles map[ConceptStyle]bool

	// AnalysisChunks overrides the streamed report; a nil slice streams
	// a small built-in report.
	AnalysisChunks []string
}

func NewFake() *Fake {
	return &Fake{FailOps: map[string]bool{}, FailStyles: map[ConceptStyle]bool{}}
}

func (f *Fake) fail(op string) error {
	if f.FailOps[op] {
		return opErr(op, errors.New("fake failure"))
	}
	return nil
}

func (f *Fake) image(role artifact.Role, name string) artifact.Artifact {
	return artifact.Artifact{Role: role, Name: name, MIME: "image/png", Data: FakePNG()}
}

func (f *Fake) SummarizeSurvey(ctx context.Context, survey artifact.Artifact) (string, error) {
	if err := f.fail("summarize_survey"); err != nil {
		return "", err
	}
	return "A roughly rectangular 2.4 ha parcel with road frontage on the south edge and a drainage easement to the northeast.", nil
}

func (f *Fake) RecommendParameters(ctx context.Context, survey artifact.Artifact, transcript string) (string, error) {
	if err := f.fail("recommend_parameters"); err != nil {
		return "", err
	}
	return `Given the parcel, I recommend:
Maximum Buildable Coverage: 45%
Minimum Green Coverage: 28%
Minimum Open Space: 18%
Minimum Lot Size: 320 sqm
Minimum Lot Width: 11 m
Minimum Number of Lots: 20
Front Setback: 5 m
Rear Setback: 4 m
Side Setback: 3 m
Road Width: 9 m
Sidewalk Width: 1.5 m`, nil
}

func (f *Fake) DetectBoundary(ctx context.Context, survey artifact.Artifact) (artifact.Artifact, error) {
	if err := f.fail("detect_boundary"); err != nil {
		return artifact.Artifact{}, err
	}
	return f.image(artifact.RoleBoundary, "boundary.png"), nil
}

func (f *Fake) RefineBoundary(ctx context.Context, survey, boundary artifact.Artifact, mask *artifact.Artifact, query string) (artifact.Artifact, error) {
	if err := f.fail("refine_boundary"); err != nil {
		return artifact.Artifact{}, err
	}
	return f.image(artifact.RoleBoundary, "boundary.png"), nil
}

func (f *Fake) GenerateConcept(ctx context.Context, req ConceptRequest) (artifact.Artifact, error) {
	if f.FailStyles[req.Style.Style] {
		return artifact.Artifact{}, opErr("generate_concept:"+string(req.Style.Style), errors.New("fake failure"))
	}
	if err := f.fail("generate_concept"); err != nil {
		return artifact.Artifact{}, err
	}
	return f.image(artifact.RolePlan, fmt.Sprintf("concept_%s.png", req.Style.Style)), nil
}

func (f *Fake) RefinePlan(ctx context.Context, req RefineRequest) (artifact.Artifact, error) {
	op := "refine_plan"
	if req.Mask != nil {
		op = "refine_plan_visual"
	}
	if err := f.fail(op); err != nil {
		return artifact.Artifact{}, err
	}
	return f.image(artifact.RolePlan, "plan.png"), nil
}

func (f *Fake) UpdateParameters(ctx context.Context, query string, current params.SiteParameters) (params.SiteParameters, error) {
	if f.FailOps["update_parameters"] {
		return params.SiteParameters{}, &params.SchemaError{Err: errors.New("fake schema failure")}
	}
	updated := current
	updated.RoadWidthM = current.RoadWidthM + 1
	return updated, nil
}

func (f *Fake) AnalyzePlan(ctx context.Context, plan artifact.Artifact, p params.SiteParameters, onChunk func(chunk string)) error {
	if err := f.fail("analyze_plan"); err != nil {
		return err
	}
	chunks := f.AnalysisChunks
	if chunks == nil {
		chunks = []string{"Coverage: 43% (within limit). ", "Green space: 26%. ", "All setbacks satisfied."}
	}
	for _, c := range chunks {
		select {
		case <-ctx.Done():
			return opErr("analyze_plan", ctx.Err())
		default:
		}
		onChunk(c)
	}
	return nil
}

func (f *Fake) Suggestions(ctx context.Context, kind SuggestionKind, contextText string) []string {
	if f.FailOps["suggestions"] {
		return DefaultSuggestions(kind)
	}
	return []string{
		fmt.Sprintf("fake %s suggestion 1", kind),
		fmt.Sprintf("fake %s suggestion 2", kind),
		fmt.Sprintf("fake %s suggestion 3", kind),
	}
}

var _ Adapter = (*Fake)(nil)
var _ Adapter = (*GeminiAdapter)(nil)
