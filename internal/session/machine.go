package session

import (
	"fmt"
	"strings"

	"siteplan/internal/artifact"
	"siteplan/internal/capability"
	"siteplan/internal/params"
)

// InputError reports a user event rejected before any state change. The
// gateway maps it to a 4xx response; the session is untouched.
type InputError struct {
	Reason string
}

func (e *InputError) Error() string { return "input: " + e.Reason }

func inputErr(format string, args ...any) error {
	return &InputError{Reason: fmt.Sprintf(format, args...)}
}

const (
	purposePrompt  = "What is the primary purpose of this development?"
	priorityPrompt = "What should the layout prioritize?"
	thinkingText   = "Thinking..."
)

func purposeOptions() []string {
	return []string{"Residential", "Commercial", "Mixed-Use"}
}

func priorityOptions() []string {
	return []string{"Balanced Layout", "Maximize Lot Count", "Green Space Focus"}
}

// Reduce applies one event to a session and returns the next session plus
// the effects the executor must run. It performs no IO and never blocks.
//
// User events may fail with an InputError, leaving the session unchanged.
// Completion events never fail: stale or out-of-place completions are
// silently discarded.
func Reduce(s Session, ev Event) (Session, []Effect, error) {
	// The recoverable error screen only offers a full reset.
	if s.Err != "" {
		switch ev.(type) {
		case StartOver, GoBack:
		default:
			if isUserEvent(ev) {
				return s, nil, inputErr("session is in an error state; start over to continue")
			}
		}
	}

	switch e := ev.(type) {

	// -- upload ---------------------------------------------------------

	case UploadPDF:
		if s.Stage != StageUpload {
			return s, nil, inputErr("upload is only accepted at the upload stage")
		}
		if s.Busy {
			return s, nil, inputErr("a conversion is already running")
		}
		if strings.TrimSpace(e.MIME) != "application/pdf" {
			return s, nil, inputErr("file %q is not a PDF", e.Name)
		}
		if len(e.Data) == 0 {
			return s, nil, inputErr("file %q is empty", e.Name)
		}
		next := s.clone()
		next.Busy = true
		return next, []Effect{EffectRasterize{Epoch: next.Epoch, PDF: e.Data}}, nil

	case RasterDone:
		if e.Epoch != s.Epoch || s.Stage != StageUpload {
			return s, nil, nil
		}
		next := s.clone()
		a := e.Artifact
		next.Survey = &a
		next.Stage = StageAnalysis
		next.Busy = false
		next.Conversation = next.Conversation.
			AppendBot("I received your survey. Let me take a look.").
			AppendBot(purposePrompt, purposeOptions()...)
		var effs []Effect
		if next.SurveySummary == "" {
			effs = append(effs, EffectSummarize{Epoch: next.Epoch})
		}
		return next, effs, nil

	case RasterFailed:
		if e.Epoch != s.Epoch || s.Stage != StageUpload {
			return s, nil, nil
		}
		next := s.clone()
		next.Busy = false
		next.Err = fmt.Sprintf("could not convert the PDF: %v", e.Err)
		return next, nil, nil

	// -- analysis conversation -----------------------------------------

	case SummaryDone:
		if e.Epoch != s.Epoch || s.SurveySummary != "" {
			return s, nil, nil
		}
		next := s.clone()
		next.SurveySummary = strings.TrimSpace(e.Text)
		if next.Stage == StageAnalysis && next.Purpose == "" {
			// Re-ask so the pending options stay on the latest message.
			next.Conversation = next.Conversation.
				AppendBot(next.SurveySummary).
				AppendBot(purposePrompt, purposeOptions()...)
		}
		return next, nil, nil

	case SummaryFailed:
		if e.Epoch != s.Epoch {
			return s, nil, nil
		}
		next := s.clone()
		next.Err = fmt.Sprintf("survey summarization failed: %v", e.Err)
		return next, nil, nil

	case ChooseOption:
		if s.Stage != StageAnalysis {
			return s, nil, inputErr("no choice is pending at stage %s", s.Stage)
		}
		text := strings.TrimSpace(e.Text)
		l, opts := s.Conversation.ConsumeOptions()
		if len(opts) == 0 {
			return s, nil, inputErr("no choice is pending")
		}
		if !contains(opts, text) {
			return s, nil, inputErr("%q is not one of the offered options", text)
		}
		next := s.clone()
		next.Conversation = l.AppendUser(text)
		switch {
		case next.Purpose == "":
			next.Purpose = text
			next.Conversation = next.Conversation.AppendBot(priorityPrompt, priorityOptions()...)
			return next, nil, nil
		case next.Priority == "":
			next.Priority = text
			next.Conversation = next.Conversation.PushThinking(thinkingText)
			next.Busy = true
			return next, []Effect{EffectRecommend{Epoch: next.Epoch}}, nil
		default:
			return s, nil, inputErr("no choice is pending")
		}

	case RecommendationDone:
		if e.Epoch != s.Epoch || s.Stage != StageAnalysis || s.Priority == "" {
			return s, nil, nil
		}
		next := s.clone()
		next.Busy = false
		next.RecommendationText = strings.TrimSpace(e.Text)
		next.Conversation = next.Conversation.ResolveThinking(next.RecommendationText)
		p := params.ExtractFromText(next.RecommendationText, next.Parameters)
		next.Parameters = &p
		return next, nil, nil

	case RecommendationFailed:
		if e.Epoch != s.Epoch {
			return s, nil, nil
		}
		next := s.clone()
		next.Busy = false
		next.Conversation = next.Conversation.PopThinking()
		next.Err = fmt.Sprintf("parameter recommendation failed: %v", e.Err)
		return next, nil, nil

	// -- boundary -------------------------------------------------------

	case ProceedToBoundary:
		if s.Stage != StageAnalysis {
			return s, nil, inputErr("cannot proceed to boundary review from stage %s", s.Stage)
		}
		if s.Parameters == nil {
			return s, nil, inputErr("parameter recommendation has not completed yet")
		}
		next := s.clone()
		next.Stage = StageBoundaryReview
		next.Busy = true
		return next, []Effect{EffectDetectBoundary{Epoch: next.Epoch}}, nil

	case RetryDetection:
		if s.Stage != StageBoundaryReview {
			return s, nil, inputErr("detection can only be retried during boundary review")
		}
		if s.Busy {
			return s, nil, inputErr("detection is already running")
		}
		next := s.clone()
		next.Busy = true
		return next, []Effect{EffectDetectBoundary{Epoch: next.Epoch}}, nil

	case BoundaryDetected:
		if e.Epoch != s.Epoch || s.Stage != StageBoundaryReview {
			return s, nil, nil
		}
		next := s.clone()
		a := e.Artifact
		next.Boundary = &a
		next.Busy = false
		return next, []Effect{EffectFetchSuggestions{Epoch: next.Epoch, Kind: capability.SuggestBoundary}}, nil

	case BoundaryDetectFailed:
		if e.Epoch != s.Epoch || s.Stage != StageBoundaryReview {
			return s, nil, nil
		}
		next := s.clone()
		next.Busy = false
		next.Err = fmt.Sprintf("boundary detection failed: %v", e.Err)
		return next, nil, nil

	case RequestBoundaryEdit:
		if s.Stage != StageBoundaryReview || s.Boundary == nil {
			return s, nil, inputErr("there is no boundary to edit yet")
		}
		if s.Busy {
			return s, nil, inputErr("wait for the running detection to finish")
		}
		next := s.clone()
		next.Stage = StageBoundaryEdit
		return next, nil, nil

	case SubmitBoundaryRefinement:
		if s.Stage != StageBoundaryEdit {
			return s, nil, inputErr("boundary refinement is only available in the boundary editor")
		}
		if s.Busy {
			return s, nil, inputErr("a refinement is already running")
		}
		if strings.TrimSpace(e.Query) == "" && e.Mask == nil {
			return s, nil, inputErr("describe the change or draw on the overlay")
		}
		next := s.clone()
		next.Busy = true
		return next, []Effect{EffectRefineBoundary{Epoch: next.Epoch, Query: e.Query, Mask: e.Mask}}, nil

	case BoundaryRefined:
		if e.Epoch != s.Epoch || s.Stage != StageBoundaryEdit {
			return s, nil, nil
		}
		next := s.clone()
		a := e.Artifact
		next.Boundary = &a
		next.Busy = false
		next.Stage = StageBoundaryReview
		return next, []Effect{EffectFetchSuggestions{Epoch: next.Epoch, Kind: capability.SuggestBoundary}}, nil

	case BoundaryRefineFailed:
		if e.Epoch != s.Epoch || s.Stage != StageBoundaryEdit {
			return s, nil, nil
		}
		next := s.clone()
		next.Busy = false
		next.Err = fmt.Sprintf("boundary refinement failed: %v", e.Err)
		return next, nil, nil

	case ConfirmBoundary:
		if s.Stage != StageBoundaryReview {
			return s, nil, inputErr("the boundary can only be confirmed during boundary review")
		}
		if s.Boundary == nil {
			return s, nil, inputErr("there is no boundary to confirm yet")
		}
		if s.Busy {
			return s, nil, inputErr("wait for the running detection to finish")
		}
		next := s.clone()
		next.Stage = StagePreGenerationQuery
		return next, nil, nil

	// -- access points and concept generation --------------------------

	case DeclineAccessPoints:
		if s.Stage != StagePreGenerationQuery {
			return s, nil, inputErr("not at the pre-generation query")
		}
		return enterConceptSelection(s)

	case OptAccessPoints:
		if s.Stage != StagePreGenerationQuery {
			return s, nil, inputErr("not at the pre-generation query")
		}
		next := s.clone()
		next.Stage = StageAccessPoints
		return next, nil, nil

	case ConfirmAccessPoints:
		if s.Stage != StageAccessPoints {
			return s, nil, inputErr("not at the access point editor")
		}
		if e.Points == nil || e.Points.Empty() {
			return s, nil, inputErr("mark at least one entrance before confirming")
		}
		next := s.clone()
		next.AccessPoints = e.Points
		return enterConceptSelection(next)

	case ConceptReady:
		if e.Epoch != s.Epoch {
			return s, nil, nil
		}
		slot, ok := s.Concepts[e.Style]
		if !ok || !slot.Pending() {
			return s, nil, nil
		}
		next := s.clone()
		a := e.Artifact
		slot.Artifact = &a
		next.Concepts[e.Style] = slot
		return next, nil, nil

	case ConceptFailed:
		if e.Epoch != s.Epoch {
			return s, nil, nil
		}
		slot, ok := s.Concepts[e.Style]
		if !ok || !slot.Pending() {
			return s, nil, nil
		}
		next := s.clone()
		slot.Failed = true
		next.Concepts[e.Style] = slot
		return next, nil, nil

	case ChooseConcept:
		if s.Stage != StageConceptSelection {
			return s, nil, inputErr("concepts can only be chosen during concept selection")
		}
		slot, ok := s.Concepts[e.Style]
		if !ok {
			return s, nil, inputErr("unknown concept style %q", e.Style)
		}
		if slot.Artifact == nil {
			return s, nil, inputErr("concept %q is not ready", e.Style)
		}
		next := s.clone()
		plan := *slot.Artifact
		plan.Role = artifact.RolePlan
		plan.Name = "plan.png"
		next.Plan = &plan
		next.Stage = StagePlanRefinement
		return next, []Effect{EffectFetchSuggestions{Epoch: next.Epoch, Kind: capability.SuggestPlan}}, nil

	// -- plan refinement ------------------------------------------------

	case SubmitPlanRefinement:
		if s.Stage != StagePlanRefinement {
			return s, nil, inputErr("plan refinement is only available at the plan stage")
		}
		if s.Busy {
			return s, nil, inputErr("a refinement is already running")
		}
		q := strings.TrimSpace(e.Query)
		if q == "" {
			return s, nil, inputErr("describe the change you want")
		}
		next := s.clone()
		next.Busy = true
		next.Conversation = next.Conversation.AppendUser(q).PushThinking(thinkingText)
		return next, []Effect{EffectRefinePlan{Epoch: next.Epoch, Query: q}}, nil

	case PlanRefined:
		if e.Epoch != s.Epoch || s.Stage != StagePlanRefinement {
			return s, nil, nil
		}
		next := s.clone()
		a := e.Artifact
		next.Plan = &a
		next.Busy = false
		next.AnalysisText = ""
		next.AnalysisDone = false
		next.Conversation = next.Conversation.ResolveThinking("I updated the plan. Take a look.")
		return next, []Effect{EffectFetchSuggestions{Epoch: next.Epoch, Kind: capability.SuggestPlan}}, nil

	case PlanRefineFailed:
		if e.Epoch != s.Epoch || s.Stage != StagePlanRefinement {
			return s, nil, nil
		}
		next := s.clone()
		next.Busy = false
		next.Conversation = next.Conversation.PopThinking()
		next.Err = fmt.Sprintf("plan refinement failed: %v", e.Err)
		return next, nil, nil

	case StartPlanEdit:
		if s.Stage != StagePlanRefinement {
			return s, nil, inputErr("the editor opens from the plan stage")
		}
		if s.Busy {
			return s, nil, inputErr("wait for the running refinement to finish")
		}
		next := s.clone()
		next.Stage = StagePlanEdit
		return next, nil, nil

	case SubmitVisualRefinement:
		if s.Stage != StagePlanEdit {
			return s, nil, inputErr("visual refinement is only available in the editor")
		}
		if s.Busy {
			return s, nil, inputErr("a refinement is already running")
		}
		if e.Mask == nil || e.Mask.Empty() {
			return s, nil, inputErr("draw on the plan to mark the area to change")
		}
		next := s.clone()
		next.Busy = true
		return next, []Effect{EffectRefinePlan{Epoch: next.Epoch, Query: e.Query, Mask: e.Mask, Visual: true}}, nil

	case VisualRefined:
		if e.Epoch != s.Epoch || s.Stage != StagePlanEdit {
			return s, nil, nil
		}
		next := s.clone()
		a := e.Artifact
		next.Plan = &a
		next.Busy = false
		next.AnalysisText = ""
		next.AnalysisDone = false
		next.Stage = StagePlanRefinement
		return next, []Effect{EffectFetchSuggestions{Epoch: next.Epoch, Kind: capability.SuggestPlan}}, nil

	case VisualRefineFailed:
		if e.Epoch != s.Epoch || s.Stage != StagePlanEdit {
			return s, nil, nil
		}
		next := s.clone()
		next.Busy = false
		next.Err = fmt.Sprintf("plan edit failed: %v", e.Err)
		return next, nil, nil

	// -- analysis stream ------------------------------------------------

	case RequestAnalysis:
		if s.Stage != StagePlanRefinement {
			return s, nil, inputErr("analysis starts from the plan stage")
		}
		if s.Busy || s.AnalysisInFlight {
			return s, nil, inputErr("another operation is running")
		}
		next := s.clone()
		next.Stage = StagePlanAnalysis
		next.AnalysisText = ""
		next.AnalysisDone = false
		next.AnalysisInFlight = true
		return next, []Effect{EffectAnalyzePlan{Epoch: next.Epoch}}, nil

	case AnalysisChunk:
		if e.Epoch != s.Epoch || !s.AnalysisInFlight {
			return s, nil, nil
		}
		next := s.clone()
		next.AnalysisText += e.Text
		return next, nil, nil

	case AnalysisDone:
		if e.Epoch != s.Epoch || !s.AnalysisInFlight {
			return s, nil, nil
		}
		next := s.clone()
		next.AnalysisInFlight = false
		next.AnalysisDone = true
		return next, nil, nil

	case AnalysisFailed:
		if e.Epoch != s.Epoch || !s.AnalysisInFlight {
			return s, nil, nil
		}
		next := s.clone()
		next.AnalysisInFlight = false
		next.Err = fmt.Sprintf("plan analysis failed: %v", e.Err)
		return next, nil, nil

	// -- parameters and suggestions ------------------------------------

	case UpdateParamsForm:
		if s.Parameters == nil {
			return s, nil, inputErr("parameters are not available yet")
		}
		p := e.Parameters
		next := s.clone()
		next.Parameters = &p
		return next, nil, nil

	case SubmitParamsQuery:
		if s.Parameters == nil {
			return s, nil, inputErr("parameters are not available yet")
		}
		if s.Busy {
			return s, nil, inputErr("another operation is running")
		}
		q := strings.TrimSpace(e.Query)
		if q == "" {
			return s, nil, inputErr("describe the parameter change you want")
		}
		next := s.clone()
		next.Busy = true
		return next, []Effect{EffectUpdateParams{Epoch: next.Epoch, Query: q}}, nil

	case ParamsQueryDone:
		if e.Epoch != s.Epoch {
			return s, nil, nil
		}
		next := s.clone()
		next.Busy = false
		p := e.Parameters
		next.Parameters = &p
		return next, nil, nil

	case ParamsQueryFailed:
		if e.Epoch != s.Epoch {
			return s, nil, nil
		}
		next := s.clone()
		next.Busy = false
		next.Err = fmt.Sprintf("parameter update failed: %v", e.Err)
		return next, nil, nil

	case SuggestionsFetched:
		if e.Epoch != s.Epoch || len(e.Items) == 0 {
			return s, nil, nil
		}
		next := s.clone()
		switch e.Kind {
		case capability.SuggestBoundary:
			next.BoundarySuggestions = append([]string(nil), e.Items...)
		case capability.SuggestPlan:
			next.PlanSuggestions = append([]string(nil), e.Items...)
		}
		return next, nil, nil

	// -- navigation -----------------------------------------------------

	case GoBack:
		return reduceBack(s), nil, nil

	case StartOver:
		next := New(s.ID)
		next.Epoch = s.Epoch + 1
		return next, nil, nil

	default:
		return s, nil, inputErr("unsupported event %T", ev)
	}
}

// enterConceptSelection creates all candidate slots up front and emits one
// generation effect per style. The transition succeeds immediately; results
// fill the keyed slots as they arrive.
func enterConceptSelection(s Session) (Session, []Effect, error) {
	next := s.clone()
	next.Stage = StageConceptSelection
	styles := capability.ConceptStyles()
	next.ConceptOrder = make([]capability.ConceptStyle, 0, len(styles))
	next.Concepts = make(map[capability.ConceptStyle]ConceptResult, len(styles))
	effs := make([]Effect, 0, len(styles))
	for _, d := range styles {
		next.ConceptOrder = append(next.ConceptOrder, d.Style)
		next.Concepts[d.Style] = ConceptResult{Descriptor: d}
		effs = append(effs, EffectGenerateConcept{Epoch: next.Epoch, Style: d})
	}
	return next, effs, nil
}

// reduceBack applies the back-navigation map, discarding exactly the state
// the corresponding forward step produced. The epoch is bumped so every
// in-flight completion for the abandoned stage is discarded on arrival.
func reduceBack(s Session) Session {
	target, ok := backTarget[s.Stage]
	if !ok {
		return s
	}
	if s.Stage == StageAnalysis {
		next := New(s.ID)
		next.Epoch = s.Epoch + 1
		return next
	}
	next := s.clone()
	next.Epoch++
	next.Busy = false
	next.AnalysisInFlight = false
	next.Err = ""
	switch s.Stage {
	case StageBoundaryReview:
		next.Boundary = nil
	case StageAccessPoints:
		next.AccessPoints = nil
	case StageConceptSelection:
		next.ConceptOrder = nil
		next.Concepts = nil
	case StagePlanRefinement:
		next.Plan = nil
		next.AnalysisText = ""
		next.AnalysisDone = false
	case StagePlanAnalysis:
		// The plan and any analysis text survive returning to refinement.
	}
	next.Stage = target
	return next
}

func isUserEvent(ev Event) bool {
	switch ev.(type) {
	case UploadPDF, ChooseOption, ProceedToBoundary, RetryDetection,
		RequestBoundaryEdit, SubmitBoundaryRefinement, ConfirmBoundary,
		DeclineAccessPoints, OptAccessPoints, ConfirmAccessPoints,
		ChooseConcept, SubmitPlanRefinement, StartPlanEdit,
		SubmitVisualRefinement, RequestAnalysis, UpdateParamsForm,
		SubmitParamsQuery, GoBack, StartOver:
		return true
	}
	return false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
