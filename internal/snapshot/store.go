package snapshot

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"siteplan/internal/conversation"
	"siteplan/internal/params"
)

// ErrNotFound is returned when no snapshot exists for a session.
var ErrNotFound = errors.New("snapshot: not found")

// ConceptRecord is one concept candidate in durable form. Image is empty
// while the candidate is pending or failed.
type ConceptRecord struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Image       string `json:"image,omitempty"`
	Failed      bool   `json:"failed,omitempty"`
}

// Record is the durable subset of a session. Artifacts are stored in their
// transportable encoded form; transient fields (loading flags, error text,
// epoch) are deliberately excluded.
type Record struct {
	SessionID          string                   `json:"session_id"`
	Stage              string                   `json:"stage"`
	SurveyImage        string                   `json:"survey_image,omitempty"`
	BoundaryImage      string                   `json:"boundary_image,omitempty"`
	AccessPointsImage  string                   `json:"access_points_image,omitempty"`
	PlanImage          string                   `json:"plan_image,omitempty"`
	SurveySummary      string                   `json:"survey_summary,omitempty"`
	Purpose            string                   `json:"purpose,omitempty"`
	Priority           string                   `json:"priority,omitempty"`
	RecommendationText string                   `json:"recommendation_text,omitempty"`
	AnalysisText       string                   `json:"analysis_text,omitempty"`
	Concepts           map[string]ConceptRecord `json:"concepts,omitempty"`
	Conversation       conversation.Log         `json:"conversation"`
	Parameters         *params.SiteParameters   `json:"parameters,omitempty"`
	BoundarySuggest    []string                 `json:"boundary_suggestions,omitempty"`
	PlanSuggest        []string                 `json:"plan_suggestions,omitempty"`
	SavedAt            time.Time                `json:"saved_at"`
}

// Store persists session snapshots. Load returns ErrNotFound both when
// nothing was saved and when the stored record is corrupt; corrupt records
// are removed so a later load finds nothing.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Load(ctx context.Context, sessionID string) (Record, error)
	Delete(ctx context.Context, sessionID string) error
}

// NewFromEnv selects a backend: postgres when SNAPSHOT_PG_DSN is set,
// otherwise a JSON file store rooted at dir.
func NewFromEnv(dir string) Store {
	if dsn := strings.TrimSpace(os.Getenv("SNAPSHOT_PG_DSN")); dsn != "" {
		s, err := NewPostgresStore(dsn)
		if err == nil {
			return s
		}
	}
	return NewFileStore(dir)
}
