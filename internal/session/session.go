package session

import (
	"fmt"
	"time"

	"siteplan/internal/artifact"
	"siteplan/internal/capability"
	"siteplan/internal/conversation"
	"siteplan/internal/params"
	"siteplan/internal/snapshot"
)

// ConceptResult is one concept candidate slot. A slot exists from the moment
// concept selection is entered; Artifact fills in when generation completes,
// Failed marks a slot that will never fill.
type ConceptResult struct {
	Descriptor capability.ConceptDescriptor
	Artifact   *artifact.Artifact
	Failed     bool
}

// Pending reports whether the slot is still waiting for its generator.
func (c ConceptResult) Pending() bool {
	return c.Artifact == nil && !c.Failed
}

// Session is the complete state of one workflow run. It is a value type:
// the reducer returns a new Session rather than mutating in place.
//
// Err, Epoch and the busy flags are transient; they are never persisted.
type Session struct {
	ID    string
	Stage Stage

	Survey       *artifact.Artifact
	Boundary     *artifact.Artifact
	AccessPoints *artifact.Artifact
	Plan         *artifact.Artifact

	SurveySummary      string
	Purpose            string
	Priority           string
	RecommendationText string

	Parameters   *params.SiteParameters
	Conversation conversation.Log

	ConceptOrder []capability.ConceptStyle
	Concepts     map[capability.ConceptStyle]ConceptResult

	AnalysisText string
	AnalysisDone bool

	BoundarySuggestions []string
	PlanSuggestions     []string

	// Err is the session-level error shown on the recoverable error
	// screen. While set, only a full reset is accepted.
	Err string

	// Epoch counts back-navigations and resets. Completions tagged with
	// an older epoch are discarded.
	Epoch uint64

	// Busy is set while a single-flight capability call is outstanding.
	Busy bool

	// AnalysisInFlight is set while the compliance stream is running.
	AnalysisInFlight bool
}

// New returns a fresh session at the upload stage with default suggestions.
func New(id string) Session {
	return Session{
		ID:                  id,
		Stage:               StageUpload,
		BoundarySuggestions: capability.DefaultSuggestions(capability.SuggestBoundary),
		PlanSuggestions:     capability.DefaultSuggestions(capability.SuggestPlan),
	}
}

func (s Session) clone() Session {
	out := s
	out.ConceptOrder = append([]capability.ConceptStyle(nil), s.ConceptOrder...)
	if s.Concepts != nil {
		out.Concepts = make(map[capability.ConceptStyle]ConceptResult, len(s.Concepts))
		for k, v := range s.Concepts {
			out.Concepts[k] = v
		}
	}
	if s.Parameters != nil {
		p := *s.Parameters
		out.Parameters = &p
	}
	out.BoundarySuggestions = append([]string(nil), s.BoundarySuggestions...)
	out.PlanSuggestions = append([]string(nil), s.PlanSuggestions...)
	return out
}

// stagePrereqs reports whether the session carries everything the given
// stage depends on. Used both by the reducer's transition guards and when
// validating a restored snapshot.
func (s Session) stagePrereqs(st Stage) bool {
	switch st {
	case StageUpload:
		return true
	case StageAnalysis:
		return s.Survey != nil
	case StageBoundaryReview:
		return s.Survey != nil && s.Purpose != "" && s.Priority != "" && s.Parameters != nil
	case StageBoundaryEdit, StagePreGenerationQuery, StageAccessPoints, StageConceptSelection:
		return s.stagePrereqs(StageBoundaryReview) && s.Boundary != nil
	case StagePlanRefinement, StagePlanEdit, StagePlanAnalysis:
		return s.stagePrereqs(StageConceptSelection) && s.Plan != nil
	default:
		return false
	}
}

func encodeOptional(a *artifact.Artifact) string {
	if a == nil {
		return ""
	}
	return a.Encode()
}

func decodeOptional(role artifact.Role, name, encoded string) (*artifact.Artifact, error) {
	if encoded == "" {
		return nil, nil
	}
	a, err := artifact.Decode(role, name, encoded)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Record converts the durable subset of the session for persistence.
func (s Session) Record() snapshot.Record {
	rec := snapshot.Record{
		SessionID:          s.ID,
		Stage:              string(s.Stage),
		SurveyImage:        encodeOptional(s.Survey),
		BoundaryImage:      encodeOptional(s.Boundary),
		AccessPointsImage:  encodeOptional(s.AccessPoints),
		PlanImage:          encodeOptional(s.Plan),
		SurveySummary:      s.SurveySummary,
		Purpose:            s.Purpose,
		Priority:           s.Priority,
		RecommendationText: s.RecommendationText,
		AnalysisText:       s.AnalysisText,
		Conversation:       s.Conversation,
		Parameters:         s.Parameters,
		BoundarySuggest:    s.BoundarySuggestions,
		PlanSuggest:        s.PlanSuggestions,
		SavedAt:            time.Now().UTC(),
	}
	if len(s.Concepts) > 0 {
		rec.Concepts = make(map[string]snapshot.ConceptRecord, len(s.Concepts))
		for style, c := range s.Concepts {
			rec.Concepts[string(style)] = snapshot.ConceptRecord{
				Label:       c.Descriptor.Label,
				Description: c.Descriptor.Description,
				Image:       encodeOptional(c.Artifact),
				Failed:      c.Failed,
			}
		}
	}
	return rec
}

// FromRecord rebuilds a session from a snapshot. A record whose stage name
// is unknown, whose artifacts fail to decode or whose stage prerequisites
// are missing is reported as an error; callers treat that like a corrupt
// record and start fresh.
func FromRecord(rec snapshot.Record) (Session, error) {
	st, ok := ParseStage(rec.Stage)
	if !ok {
		return Session{}, fmt.Errorf("unknown stage %q", rec.Stage)
	}
	s := New(rec.SessionID)
	s.Stage = st
	s.SurveySummary = rec.SurveySummary
	s.Purpose = rec.Purpose
	s.Priority = rec.Priority
	s.RecommendationText = rec.RecommendationText
	s.AnalysisText = rec.AnalysisText
	s.AnalysisDone = rec.AnalysisText != ""
	s.Conversation = rec.Conversation
	s.Parameters = rec.Parameters
	if len(rec.BoundarySuggest) > 0 {
		s.BoundarySuggestions = rec.BoundarySuggest
	}
	if len(rec.PlanSuggest) > 0 {
		s.PlanSuggestions = rec.PlanSuggest
	}

	var err error
	if s.Survey, err = decodeOptional(artifact.RoleSurvey, "survey.png", rec.SurveyImage); err != nil {
		return Session{}, fmt.Errorf("survey image: %w", err)
	}
	if s.Boundary, err = decodeOptional(artifact.RoleBoundary, "boundary.png", rec.BoundaryImage); err != nil {
		return Session{}, fmt.Errorf("boundary image: %w", err)
	}
	if s.AccessPoints, err = decodeOptional(artifact.RoleAccessPoints, "access_points.png", rec.AccessPointsImage); err != nil {
		return Session{}, fmt.Errorf("access points image: %w", err)
	}
	if s.Plan, err = decodeOptional(artifact.RolePlan, "plan.png", rec.PlanImage); err != nil {
		return Session{}, fmt.Errorf("plan image: %w", err)
	}

	if len(rec.Concepts) > 0 {
		s.Concepts = make(map[capability.ConceptStyle]ConceptResult, len(rec.Concepts))
		for _, d := range capability.ConceptStyles() {
			cr, ok := rec.Concepts[string(d.Style)]
			if !ok {
				continue
			}
			res := ConceptResult{Descriptor: d, Failed: cr.Failed}
			if cr.Image != "" {
				a, err := artifact.Decode(artifact.RolePlan, string(d.Style)+".png", cr.Image)
				if err != nil {
					return Session{}, fmt.Errorf("concept %s image: %w", d.Style, err)
				}
				res.Artifact = &a
			}
			s.Concepts[d.Style] = res
			s.ConceptOrder = append(s.ConceptOrder, d.Style)
		}
	}

	if !s.stagePrereqs(st) {
		return Session{}, fmt.Errorf("stage %q is missing its prerequisites", st)
	}
	return s, nil
}
