package handler

import (
	"siteplan/internal/conversation"
	"siteplan/internal/params"
	"siteplan/internal/session"
)

// ConceptView is one candidate as rendered to the client. Image is the
// transportable data URI, empty while pending or failed.
type ConceptView struct {
	Style       string `json:"style"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	Pending     bool   `json:"pending"`
	Failed      bool   `json:"failed"`
}

// SessionView is the client-facing projection of a session. Artifacts ride
// along as data URIs so a single GET renders the whole screen.
type SessionView struct {
	ID    string `json:"id"`
	Stage string `json:"stage"`
	Busy  bool   `json:"busy"`
	Error string `json:"error,omitempty"`

	SurveyImage       string `json:"survey_image,omitempty"`
	BoundaryImage     string `json:"boundary_image,omitempty"`
	AccessPointsImage string `json:"access_points_image,omitempty"`
	PlanImage         string `json:"plan_image,omitempty"`

	SurveySummary      string `json:"survey_summary,omitempty"`
	Purpose            string `json:"purpose,omitempty"`
	Priority           string `json:"priority,omitempty"`
	RecommendationText string `json:"recommendation_text,omitempty"`

	AnalysisText    string `json:"analysis_text,omitempty"`
	AnalysisDone    bool   `json:"analysis_done"`
	AnalysisRunning bool   `json:"analysis_running"`

	Parameters   *params.SiteParameters `json:"parameters,omitempty"`
	Conversation []conversation.Message `json:"conversation"`
	Concepts     []ConceptView          `json:"concepts,omitempty"`

	BoundarySuggestions []string `json:"boundary_suggestions"`
	PlanSuggestions     []string `json:"plan_suggestions"`
}

func viewOf(s session.Session) SessionView {
	v := SessionView{
		ID:                  s.ID,
		Stage:               string(s.Stage),
		Busy:                s.Busy,
		Error:               s.Err,
		SurveySummary:       s.SurveySummary,
		Purpose:             s.Purpose,
		Priority:            s.Priority,
		RecommendationText:  s.RecommendationText,
		AnalysisText:        s.AnalysisText,
		AnalysisDone:        s.AnalysisDone,
		AnalysisRunning:     s.AnalysisInFlight,
		Parameters:          s.Parameters,
		Conversation:        s.Conversation.Messages,
		BoundarySuggestions: s.BoundarySuggestions,
		PlanSuggestions:     s.PlanSuggestions,
	}
	if s.Survey != nil {
		v.SurveyImage = s.Survey.Encode()
	}
	if s.Boundary != nil {
		v.BoundaryImage = s.Boundary.Encode()
	}
	if s.AccessPoints != nil {
		v.AccessPointsImage = s.AccessPoints.Encode()
	}
	if s.Plan != nil {
		v.PlanImage = s.Plan.Encode()
	}
	for _, style := range s.ConceptOrder {
		c := s.Concepts[style]
		cv := ConceptView{
			Style:       string(style),
			Label:       c.Descriptor.Label,
			Description: c.Descriptor.Description,
			Pending:     c.Pending(),
			Failed:      c.Failed,
		}
		if c.Artifact != nil {
			cv.Image = c.Artifact.Encode()
		}
		v.Concepts = append(v.Concepts, cv)
	}
	return v
}
