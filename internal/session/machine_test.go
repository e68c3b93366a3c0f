package session

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"siteplan/internal/artifact"
	"siteplan/internal/capability"
	"siteplan/internal/params"
)

var errFake = errors.New("boom")

func img(role artifact.Role) artifact.Artifact {
	return artifact.Artifact{
		Role: role,
		Name: string(role) + ".png",
		MIME: "image/png",
		Data: capability.FakePNG(),
	}
}

// sessionAt builds a session directly at the given stage with every
// prerequisite filled in. Reducer tests start from here instead of
// replaying the whole workflow each time.
func sessionAt(stage Stage) Session {
	s := New("sess")
	if stage == StageUpload {
		return s
	}
	sv := img(artifact.RoleSurvey)
	s.Survey = &sv
	s.Stage = StageAnalysis
	s.SurveySummary = "a rectangular parcel"
	if stage == StageAnalysis {
		return s
	}
	s.Purpose = "Residential"
	s.Priority = "Balanced Layout"
	p := params.Defaults()
	s.Parameters = &p
	b := img(artifact.RoleBoundary)
	s.Boundary = &b
	s.Stage = StageBoundaryReview
	if stage == StageBoundaryReview {
		return s
	}
	if stage == StageBoundaryEdit {
		s.Stage = StageBoundaryEdit
		return s
	}
	s.Stage = StagePreGenerationQuery
	if stage == StagePreGenerationQuery {
		return s
	}
	if stage == StageAccessPoints {
		s.Stage = StageAccessPoints
		return s
	}
	next, _, _ := enterConceptSelection(s)
	s = next
	for style, slot := range s.Concepts {
		a := img(artifact.RolePlan)
		slot.Artifact = &a
		s.Concepts[style] = slot
	}
	if stage == StageConceptSelection {
		return s
	}
	pl := img(artifact.RolePlan)
	s.Plan = &pl
	s.Stage = StagePlanRefinement
	if stage == StagePlanRefinement {
		return s
	}
	if stage == StagePlanEdit {
		s.Stage = StagePlanEdit
		return s
	}
	s.Stage = StagePlanAnalysis
	s.AnalysisText = "Coverage: 43%."
	s.AnalysisDone = true
	return s
}

func step(t *testing.T, s Session, ev Event) (Session, []Effect) {
	t.Helper()
	next, effs, err := Reduce(s, ev)
	require.NoError(t, err)
	return next, effs
}

func TestUploadRejectsNonPDF(t *testing.T) {
	s := New("sess")
	_, _, err := Reduce(s, UploadPDF{Name: "plot.jpg", MIME: "image/jpeg", Data: []byte{1}})
	var ie *InputError
	require.ErrorAs(t, err, &ie)

	_, _, err = Reduce(s, UploadPDF{Name: "plot.pdf", MIME: "application/pdf"})
	require.ErrorAs(t, err, &ie, "empty payload rejected")
}

func TestUploadStartsRasterization(t *testing.T) {
	s := New("sess")
	next, effs := step(t, s, UploadPDF{Name: "plot.pdf", MIME: "application/pdf", Data: []byte("%PDF")})
	require.True(t, next.Busy)
	require.Equal(t, StageUpload, next.Stage)
	require.Len(t, effs, 1)
	require.IsType(t, EffectRasterize{}, effs[0])
}

func TestRasterDoneEntersAnalysisAndSummarizes(t *testing.T) {
	s := New("sess")
	s.Busy = true
	next, effs := step(t, s, RasterDone{Artifact: img(artifact.RoleSurvey)})
	require.Equal(t, StageAnalysis, next.Stage)
	require.NotNil(t, next.Survey)
	require.False(t, next.Busy)
	require.Len(t, effs, 1)
	require.IsType(t, EffectSummarize{}, effs[0])

	latest, ok := next.Conversation.Latest()
	require.True(t, ok)
	require.Equal(t, purposeOptions(), latest.Options)
}

func TestSummaryAppliedOnce(t *testing.T) {
	s := sessionAt(StageAnalysis)
	s.SurveySummary = ""
	next, _ := step(t, s, SummaryDone{Text: "first summary"})
	require.Equal(t, "first summary", next.SurveySummary)

	// A duplicate completion is a no-op.
	again, effs := step(t, next, SummaryDone{Text: "second summary"})
	require.Equal(t, "first summary", again.SurveySummary)
	require.Empty(t, effs)
}

func TestPurposeThenPriorityThenRecommendation(t *testing.T) {
	s := New("sess")
	s, _ = step(t, s, RasterDone{Artifact: img(artifact.RoleSurvey)})

	s, effs := step(t, s, ChooseOption{Text: "Residential"})
	require.Equal(t, "Residential", s.Purpose)
	require.Empty(t, effs)
	latest, _ := s.Conversation.Latest()
	require.Equal(t, priorityOptions(), latest.Options)

	s, effs = step(t, s, ChooseOption{Text: "Balanced Layout"})
	require.Equal(t, "Balanced Layout", s.Priority)
	require.True(t, s.Busy)
	require.Len(t, effs, 1)
	require.IsType(t, EffectRecommend{}, effs[0])
	latest, _ = s.Conversation.Latest()
	require.True(t, latest.Thinking)

	s, _ = step(t, s, RecommendationDone{Text: "I suggest Maximum Buildable Coverage: 45%\nRoad Width: 9 m"})
	require.False(t, s.Busy)
	require.NotNil(t, s.Parameters)
	require.Equal(t, 45.0, s.Parameters.MaxCoveragePct)
	require.Equal(t, 9.0, s.Parameters.RoadWidthM)
	// Unlabeled fields fall back to defaults.
	require.Equal(t, params.Defaults().MinGreenPct, s.Parameters.MinGreenPct)
	latest, _ = s.Conversation.Latest()
	require.False(t, latest.Thinking)
}

func TestChooseOptionRejectsUnknownText(t *testing.T) {
	s := New("sess")
	s, _ = step(t, s, RasterDone{Artifact: img(artifact.RoleSurvey)})
	_, _, err := Reduce(s, ChooseOption{Text: "Industrial"})
	var ie *InputError
	require.ErrorAs(t, err, &ie)
}

func TestOptionsConsumedExactlyOnce(t *testing.T) {
	s := New("sess")
	s, _ = step(t, s, RasterDone{Artifact: img(artifact.RoleSurvey)})
	s, _ = step(t, s, ChooseOption{Text: "Residential"})
	s, _ = step(t, s, ChooseOption{Text: "Balanced Layout"})
	_, _, err := Reduce(s, ChooseOption{Text: "Balanced Layout"})
	var ie *InputError
	require.ErrorAs(t, err, &ie)
}

func TestRecommendationFailureRestoresConversation(t *testing.T) {
	s := New("sess")
	s, _ = step(t, s, RasterDone{Artifact: img(artifact.RoleSurvey)})
	s, _ = step(t, s, ChooseOption{Text: "Residential"})
	s, _ = step(t, s, ChooseOption{Text: "Balanced Layout"})
	before := len(s.Conversation.Messages) - 1 // minus the placeholder

	s, _ = step(t, s, RecommendationFailed{Err: errFake})
	require.NotEmpty(t, s.Err)
	require.Len(t, s.Conversation.Messages, before)
}

func TestProceedToBoundaryRequiresParameters(t *testing.T) {
	s := sessionAt(StageAnalysis)
	s.Parameters = nil
	_, _, err := Reduce(s, ProceedToBoundary{})
	var ie *InputError
	require.ErrorAs(t, err, &ie)

	p := params.Defaults()
	s.Parameters = &p
	next, effs := step(t, s, ProceedToBoundary{})
	require.Equal(t, StageBoundaryReview, next.Stage)
	require.True(t, next.Busy)
	require.Len(t, effs, 1)
	require.IsType(t, EffectDetectBoundary{}, effs[0])
}

func TestStaleCompletionDiscarded(t *testing.T) {
	s := sessionAt(StageBoundaryReview)
	s.Boundary = nil
	s.Epoch = 3
	next, effs := step(t, s, BoundaryDetected{Epoch: 2, Artifact: img(artifact.RoleBoundary)})
	require.Nil(t, next.Boundary)
	require.Empty(t, effs)

	next, _ = step(t, s, BoundaryDetected{Epoch: 3, Artifact: img(artifact.RoleBoundary)})
	require.NotNil(t, next.Boundary)
}

func TestBoundaryEditRoundTrip(t *testing.T) {
	s := sessionAt(StageBoundaryReview)
	s, _ = step(t, s, RequestBoundaryEdit{})
	require.Equal(t, StageBoundaryEdit, s.Stage)

	s, effs := step(t, s, SubmitBoundaryRefinement{Query: "close the gap"})
	require.True(t, s.Busy)
	require.Len(t, effs, 1)

	s, effs = step(t, s, BoundaryRefined{Artifact: img(artifact.RoleBoundary)})
	require.Equal(t, StageBoundaryReview, s.Stage)
	require.False(t, s.Busy)
	require.Len(t, effs, 1)
	require.IsType(t, EffectFetchSuggestions{}, effs[0])
}

func TestBoundaryEditWaitsForRunningDetection(t *testing.T) {
	s := sessionAt(StageBoundaryReview)
	s, effs := step(t, s, RetryDetection{})
	require.True(t, s.Busy)
	require.Len(t, effs, 1)

	// Leaving the review stage now would strand the detection result: its
	// completion only lands at boundary_review, so nothing would clear Busy.
	var ie *InputError
	_, _, err := Reduce(s, RequestBoundaryEdit{})
	require.ErrorAs(t, err, &ie)

	s, _ = step(t, s, BoundaryDetected{Artifact: img(artifact.RoleBoundary)})
	require.False(t, s.Busy)
	s, _ = step(t, s, RequestBoundaryEdit{})
	require.Equal(t, StageBoundaryEdit, s.Stage)
	_, _, err = Reduce(s, SubmitBoundaryRefinement{Query: "close the gap"})
	require.NoError(t, err)
}

func TestEnterConceptSelectionCreatesAllSlots(t *testing.T) {
	s := sessionAt(StagePreGenerationQuery)
	next, effs := step(t, s, DeclineAccessPoints{})
	require.Equal(t, StageConceptSelection, next.Stage)
	require.Len(t, next.ConceptOrder, 4)
	require.Len(t, effs, 4)
	for _, style := range next.ConceptOrder {
		require.True(t, next.Concepts[style].Pending())
	}
}

func TestAccessPointsPathRequiresOverlay(t *testing.T) {
	s := sessionAt(StagePreGenerationQuery)
	s, _ = step(t, s, OptAccessPoints{})
	require.Equal(t, StageAccessPoints, s.Stage)

	_, _, err := Reduce(s, ConfirmAccessPoints{})
	var ie *InputError
	require.ErrorAs(t, err, &ie)

	pts := img(artifact.RoleAccessPoints)
	next, effs := step(t, s, ConfirmAccessPoints{Points: &pts})
	require.Equal(t, StageConceptSelection, next.Stage)
	require.NotNil(t, next.AccessPoints)
	require.Len(t, effs, 4)
}

func TestConceptFailureIsolatedToItsSlot(t *testing.T) {
	s := sessionAt(StagePreGenerationQuery)
	s, _ = step(t, s, DeclineAccessPoints{})

	s, _ = step(t, s, ConceptFailed{Style: capability.StyleLoop, Err: errFake})
	s, _ = step(t, s, ConceptReady{Style: capability.StyleGrid, Artifact: img(artifact.RolePlan)})

	require.Empty(t, s.Err, "one failed candidate is not a session error")
	require.True(t, s.Concepts[capability.StyleLoop].Failed)
	require.NotNil(t, s.Concepts[capability.StyleGrid].Artifact)
	require.True(t, s.Concepts[capability.StyleOrganic].Pending())

	// The failed slot cannot be chosen; the ready one can.
	var ie *InputError
	_, _, err := Reduce(s, ChooseConcept{Style: capability.StyleLoop})
	require.ErrorAs(t, err, &ie)
	next, _ := step(t, s, ChooseConcept{Style: capability.StyleGrid})
	require.Equal(t, StagePlanRefinement, next.Stage)
	require.NotNil(t, next.Plan)
	require.Equal(t, artifact.RolePlan, next.Plan.Role)
}

func TestLateConceptAfterBackIsDiscarded(t *testing.T) {
	s := sessionAt(StagePreGenerationQuery)
	s, _ = step(t, s, DeclineAccessPoints{})
	oldEpoch := s.Epoch

	s, _ = step(t, s, GoBack{})
	require.Equal(t, StagePreGenerationQuery, s.Stage)
	require.Nil(t, s.Concepts)

	next, effs := step(t, s, ConceptReady{Epoch: oldEpoch, Style: capability.StyleGrid, Artifact: img(artifact.RolePlan)})
	require.Nil(t, next.Concepts)
	require.Empty(t, effs)
}

func TestPlanRefinementLoop(t *testing.T) {
	s := sessionAt(StagePlanRefinement)
	s.AnalysisText = "old report"
	s.AnalysisDone = true

	s, effs := step(t, s, SubmitPlanRefinement{Query: "widen the main road"})
	require.True(t, s.Busy)
	require.Len(t, effs, 1)

	s, _ = step(t, s, PlanRefined{Artifact: img(artifact.RolePlan)})
	require.False(t, s.Busy)
	require.Equal(t, StagePlanRefinement, s.Stage)
	require.Empty(t, s.AnalysisText, "a stale report does not describe the new plan")
	require.False(t, s.AnalysisDone)
}

func TestVisualRefinementReturnsToPlanStage(t *testing.T) {
	s := sessionAt(StagePlanRefinement)
	s, _ = step(t, s, StartPlanEdit{})
	require.Equal(t, StagePlanEdit, s.Stage)

	mask := img(artifact.RoleMask)
	s, effs := step(t, s, SubmitVisualRefinement{Query: "remove this lot", Mask: &mask})
	require.Len(t, effs, 1)
	eff := effs[0].(EffectRefinePlan)
	require.True(t, eff.Visual)

	s, _ = step(t, s, VisualRefined{Artifact: img(artifact.RolePlan)})
	require.Equal(t, StagePlanRefinement, s.Stage)
	require.False(t, s.Busy)
}

func TestAnalysisStreamsInOrder(t *testing.T) {
	s := sessionAt(StagePlanRefinement)
	s, effs := step(t, s, RequestAnalysis{})
	require.Equal(t, StagePlanAnalysis, s.Stage)
	require.True(t, s.AnalysisInFlight)
	require.Len(t, effs, 1)

	s, _ = step(t, s, AnalysisChunk{Text: "Coverage: 43%. "})
	s, _ = step(t, s, AnalysisChunk{Text: "Setbacks ok."})
	s, _ = step(t, s, AnalysisDone{})
	require.Equal(t, "Coverage: 43%. Setbacks ok.", s.AnalysisText)
	require.True(t, s.AnalysisDone)
	require.False(t, s.AnalysisInFlight)
}

func TestBackFromPlanAnalysisKeepsPlanAndReport(t *testing.T) {
	s := sessionAt(StagePlanAnalysis)
	next, _ := step(t, s, GoBack{})
	require.Equal(t, StagePlanRefinement, next.Stage)
	require.NotNil(t, next.Plan)
	require.Equal(t, s.AnalysisText, next.AnalysisText)
	require.Equal(t, s.Epoch+1, next.Epoch)
}

func TestBackFromPlanRefinementDropsPlanOnly(t *testing.T) {
	s := sessionAt(StagePlanRefinement)
	s.AnalysisText = "report"
	s.AnalysisDone = true
	next, _ := step(t, s, GoBack{})
	require.Equal(t, StageConceptSelection, next.Stage)
	require.Nil(t, next.Plan)
	require.Empty(t, next.AnalysisText)
	require.False(t, next.AnalysisDone)
	require.Len(t, next.Concepts, 4, "generated candidates survive")
	require.NotNil(t, next.Boundary)
}

func TestBackFromAnalysisIsFullReset(t *testing.T) {
	s := sessionAt(StageAnalysis)
	s.Epoch = 2
	next, _ := step(t, s, GoBack{})
	require.Equal(t, StageUpload, next.Stage)
	require.Nil(t, next.Survey)
	require.Empty(t, next.SurveySummary)
	require.Empty(t, next.Conversation.Messages)
	require.Equal(t, uint64(3), next.Epoch)
}

func TestBackAtUploadIsNoOp(t *testing.T) {
	s := New("sess")
	next, _ := step(t, s, GoBack{})
	require.Equal(t, s.Epoch, next.Epoch)
	require.Equal(t, StageUpload, next.Stage)
}

func TestErrorStateAcceptsOnlyNavigation(t *testing.T) {
	s := sessionAt(StageBoundaryReview)
	s.Boundary = nil
	s, _ = step(t, s, BoundaryDetectFailed{Err: errFake})
	require.NotEmpty(t, s.Err)

	var ie *InputError
	_, _, err := Reduce(s, ConfirmBoundary{})
	require.ErrorAs(t, err, &ie)

	next, _ := step(t, s, StartOver{})
	require.Equal(t, StageUpload, next.Stage)
	require.Empty(t, next.Err)
	require.Equal(t, s.Epoch+1, next.Epoch)
}

func TestParamsFormUpdateIsWholesale(t *testing.T) {
	s := sessionAt(StagePlanRefinement)
	p := params.Defaults()
	p.RoadWidthM = 12
	next, _ := step(t, s, UpdateParamsForm{Parameters: p})
	require.Equal(t, 12.0, next.Parameters.RoadWidthM)
}

func TestParamsQueryFailureLeavesParamsUntouched(t *testing.T) {
	s := sessionAt(StagePlanRefinement)
	before := *s.Parameters
	s, _ = step(t, s, SubmitParamsQuery{Query: "make the roads wider"})
	require.True(t, s.Busy)
	s, _ = step(t, s, ParamsQueryFailed{Err: errFake})
	require.NotEmpty(t, s.Err)
	require.Equal(t, before, *s.Parameters)
}

func TestSuggestionsReplaceByKind(t *testing.T) {
	s := sessionAt(StageBoundaryReview)
	next, _ := step(t, s, SuggestionsFetched{Kind: capability.SuggestBoundary, Items: []string{"x", "y", "z"}})
	require.Equal(t, []string{"x", "y", "z"}, next.BoundarySuggestions)
	require.Equal(t, s.PlanSuggestions, next.PlanSuggestions)
}
