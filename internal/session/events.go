package session

import (
	"siteplan/internal/artifact"
	"siteplan/internal/capability"
	"siteplan/internal/params"
)

// Event is one input to the reducer: either a user action or the completion
// of an asynchronous capability call. Completion events carry the epoch that
// was current when their effect was emitted; the reducer silently discards
// completions from an earlier epoch.
type Event interface {
	event()
}

// ---------------------------------------------------------------------------
// user events
// ---------------------------------------------------------------------------

// UploadPDF is the initial file selection. Non-PDF uploads are rejected
// before any state change.
type UploadPDF struct {
	Name string
	MIME string
	Data []byte
}

// ChooseOption answers the pending structured choice (purpose, then priority).
type ChooseOption struct{ Text string }

// ProceedToBoundary moves from the analysis conversation to boundary review
// and kicks off detection.
type ProceedToBoundary struct{}

// RetryDetection re-runs boundary detection, replacing the current overlay.
type RetryDetection struct{}

// RequestBoundaryEdit opens the boundary editor.
type RequestBoundaryEdit struct{}

// SubmitBoundaryRefinement asks for a redrawn boundary overlay.
type SubmitBoundaryRefinement struct {
	Query string
	Mask  *artifact.Artifact
}

// ConfirmBoundary accepts the current boundary.
type ConfirmBoundary struct{}

// DeclineAccessPoints skips entrance marking; concept generation starts
// immediately.
type DeclineAccessPoints struct{}

// OptAccessPoints opens the entrance-marking stage.
type OptAccessPoints struct{}

// ConfirmAccessPoints submits the marked entrances overlay.
type ConfirmAccessPoints struct{ Points *artifact.Artifact }

// ChooseConcept selects a generated candidate as the working plan.
type ChooseConcept struct{ Style capability.ConceptStyle }

// SubmitPlanRefinement asks for a textual plan revision.
type SubmitPlanRefinement struct{ Query string }

// StartPlanEdit opens the canvas editor.
type StartPlanEdit struct{}

// SubmitVisualRefinement asks for a mask-guided plan revision.
type SubmitVisualRefinement struct {
	Query string
	Mask  *artifact.Artifact
}

// RequestAnalysis starts the streaming compliance analysis.
type RequestAnalysis struct{}

// UpdateParamsForm overwrites the parameters from the numeric form.
type UpdateParamsForm struct{ Parameters params.SiteParameters }

// SubmitParamsQuery applies a natural-language parameter update.
type SubmitParamsQuery struct{ Query string }

// GoBack navigates to the back-map target of the current stage, discarding
// exactly the state the forward step produced.
type GoBack struct{}

// StartOver performs the full reset to the upload stage.
type StartOver struct{}

func (UploadPDF) event()                {}
func (ChooseOption) event()             {}
func (ProceedToBoundary) event()        {}
func (RetryDetection) event()           {}
func (RequestBoundaryEdit) event()      {}
func (SubmitBoundaryRefinement) event() {}
func (ConfirmBoundary) event()          {}
func (DeclineAccessPoints) event()      {}
func (OptAccessPoints) event()          {}
func (ConfirmAccessPoints) event()      {}
func (ChooseConcept) event()            {}
func (SubmitPlanRefinement) event()     {}
func (StartPlanEdit) event()            {}
func (SubmitVisualRefinement) event()   {}
func (RequestAnalysis) event()          {}
func (UpdateParamsForm) event()         {}
func (SubmitParamsQuery) event()        {}
func (GoBack) event()                   {}
func (StartOver) event()                {}

// ---------------------------------------------------------------------------
// completion events (emitted by the effect executor)
// ---------------------------------------------------------------------------

type RasterDone struct {
	Epoch    uint64
	Artifact artifact.Artifact
}

type RasterFailed struct {
	Epoch uint64
	Err   error
}

type SummaryDone struct {
	Epoch uint64
	Text  string
}

type SummaryFailed struct {
	Epoch uint64
	Err   error
}

type RecommendationDone struct {
	Epoch uint64
	Text  string
}

type RecommendationFailed struct {
	Epoch uint64
	Err   error
}

type BoundaryDetected struct {
	Epoch    uint64
	Artifact artifact.Artifact
}

type BoundaryDetectFailed struct {
	Epoch uint64
	Err   error
}

type BoundaryRefined struct {
	Epoch    uint64
	Artifact artifact.Artifact
}

type BoundaryRefineFailed struct {
	Epoch uint64
	Err   error
}

type ConceptReady struct {
	Epoch    uint64
	Style    capability.ConceptStyle
	Artifact artifact.Artifact
}

type ConceptFailed struct {
	Epoch uint64
	Style capability.ConceptStyle
	Err   error
}

type PlanRefined struct {
	Epoch    uint64
	Artifact artifact.Artifact
}

type PlanRefineFailed struct {
	Epoch uint64
	Err   error
}

type VisualRefined struct {
	Epoch    uint64
	Artifact artifact.Artifact
}

type VisualRefineFailed struct {
	Epoch uint64
	Err   error
}

type AnalysisChunk struct {
	Epoch uint64
	Text  string
}

type AnalysisDone struct{ Epoch uint64 }

type AnalysisFailed struct {
	Epoch uint64
	Err   error
}

type SuggestionsFetched struct {
	Epoch uint64
	Kind  capability.SuggestionKind
	Items []string
}

type ParamsQueryDone struct {
	Epoch      uint64
	Parameters params.SiteParameters
}

type ParamsQueryFailed struct {
	Epoch uint64
	Err   error
}

func (RasterDone) event()           {}
func (RasterFailed) event()         {}
func (SummaryDone) event()          {}
func (SummaryFailed) event()        {}
func (RecommendationDone) event()   {}
func (RecommendationFailed) event() {}
func (BoundaryDetected) event()     {}
func (BoundaryDetectFailed) event() {}
func (BoundaryRefined) event()      {}
func (BoundaryRefineFailed) event() {}
func (ConceptReady) event()         {}
func (ConceptFailed) event()        {}
func (PlanRefined) event()          {}
func (PlanRefineFailed) event()     {}
func (VisualRefined) event()        {}
func (VisualRefineFailed) event()   {}
func (AnalysisChunk) event()        {}
func (AnalysisDone) event()         {}
func (AnalysisFailed) event()       {}
func (SuggestionsFetched) event()   {}
func (ParamsQueryDone) event()      {}
func (ParamsQueryFailed) event()    {}

// ---------------------------------------------------------------------------
// effects (returned by the reducer, executed asynchronously)
// ---------------------------------------------------------------------------

// Effect describes an asynchronous capability call the executor must run.
// Each effect is tagged with the epoch current when it was emitted so the
// matching completion can be staleness-checked.
type Effect interface {
	effect()
	epoch() uint64
}

type EffectRasterize struct {
	Epoch uint64
	PDF   []byte
}

type EffectSummarize struct{ Epoch uint64 }

type EffectRecommend struct{ Epoch uint64 }

type EffectDetectBoundary struct{ Epoch uint64 }

type EffectRefineBoundary struct {
	Epoch uint64
	Query string
	Mask  *artifact.Artifact
}

type EffectGenerateConcept struct {
	Epoch uint64
	Style capability.ConceptDescriptor
}

type EffectRefinePlan struct {
	Epoch  uint64
	Query  string
	Mask   *artifact.Artifact
	Visual bool
}

type EffectAnalyzePlan struct{ Epoch uint64 }

type EffectFetchSuggestions struct {
	Epoch uint64
	Kind  capability.SuggestionKind
}

type EffectUpdateParams struct {
	Epoch uint64
	Query string
}

func (EffectRasterize) effect()        {}
func (EffectSummarize) effect()        {}
func (EffectRecommend) effect()        {}
func (EffectDetectBoundary) effect()   {}
func (EffectRefineBoundary) effect()   {}
func (EffectGenerateConcept) effect()  {}
func (EffectRefinePlan) effect()       {}
func (EffectAnalyzePlan) effect()      {}
func (EffectFetchSuggestions) effect() {}
func (EffectUpdateParams) effect()     {}

func (e EffectRasterize) epoch() uint64        { return e.Epoch }
func (e EffectSummarize) epoch() uint64        { return e.Epoch }
func (e EffectRecommend) epoch() uint64        { return e.Epoch }
func (e EffectDetectBoundary) epoch() uint64   { return e.Epoch }
func (e EffectRefineBoundary) epoch() uint64   { return e.Epoch }
func (e EffectGenerateConcept) epoch() uint64  { return e.Epoch }
func (e EffectRefinePlan) epoch() uint64       { return e.Epoch }
func (e EffectAnalyzePlan) epoch() uint64      { return e.Epoch }
func (e EffectFetchSuggestions) epoch() uint64 { return e.Epoch }
func (e EffectUpdateParams) epoch() uint64     { return e.Epoch }
