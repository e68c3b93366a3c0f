package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"siteplan/internal/artifact"
	"siteplan/internal/capability"
	"siteplan/internal/params"
	"siteplan/internal/session"
)

const maxUploadBytes = 32 << 20

// SessionHandler exposes the workflow over plain HTTP. Every mutating
// endpoint dispatches one event and replies with the updated session view.
type SessionHandler struct {
	mgr *session.Manager
}

func NewSessionHandler(mgr *session.Manager) *SessionHandler {
	return &SessionHandler{mgr: mgr}
}

func (h *SessionHandler) exec(r *http.Request) (*session.Executor, error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		return nil, &session.InputError{Reason: "session id is required"}
	}
	return h.mgr.Get(r.Context(), id), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeErr(w http.ResponseWriter, err error) {
	var ie *session.InputError
	var fe *artifact.FormatError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ie), errors.As(err, &fe):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// dispatch runs one event and renders the resulting view.
func (h *SessionHandler) dispatch(w http.ResponseWriter, r *http.Request, ev session.Event) {
	x, err := h.exec(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	if err := x.Dispatch(r.Context(), ev); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(x.Snapshot()))
}

func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &session.InputError{Reason: "invalid json body"}
	}
	return nil
}

func decodeMask(encoded string) (*artifact.Artifact, error) {
	if strings.TrimSpace(encoded) == "" {
		return nil, nil
	}
	a, err := artifact.Decode(artifact.RoleMask, "mask.png", encoded)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// State renders the current session without side effects.
func (h *SessionHandler) State(w http.ResponseWriter, r *http.Request) {
	x, err := h.exec(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(x.Snapshot()))
}

// Upload accepts the survey PDF, either as a multipart "file" field or as a
// raw application/pdf body.
func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var name, mimeType string
	var data []byte
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		file, header, err := r.FormFile("file")
		if err != nil {
			writeErr(w, &session.InputError{Reason: "multipart field \"file\" is required"})
			return
		}
		defer file.Close()
		data, err = io.ReadAll(file)
		if err != nil {
			writeErr(w, err)
			return
		}
		name = header.Filename
		mimeType = header.Header.Get("Content-Type")
	} else {
		var err error
		data, err = io.ReadAll(r.Body)
		if err != nil {
			writeErr(w, err)
			return
		}
		name = "upload.pdf"
		mimeType = r.Header.Get("Content-Type")
	}

	h.dispatch(w, r, session.UploadPDF{Name: name, MIME: mimeType, Data: data})
}

func (h *SessionHandler) Choose(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	h.dispatch(w, r, session.ChooseOption{Text: in.Text})
}

func (h *SessionHandler) ProceedToBoundary(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.ProceedToBoundary{})
}

func (h *SessionHandler) RetryDetection(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.RetryDetection{})
}

func (h *SessionHandler) EditBoundary(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.RequestBoundaryEdit{})
}

func (h *SessionHandler) RefineBoundary(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Query string `json:"query"`
		Mask  string `json:"mask,omitempty"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	mask, err := decodeMask(in.Mask)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.dispatch(w, r, session.SubmitBoundaryRefinement{Query: in.Query, Mask: mask})
}

func (h *SessionHandler) ConfirmBoundary(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.ConfirmBoundary{})
}

func (h *SessionHandler) DeclineAccessPoints(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.DeclineAccessPoints{})
}

func (h *SessionHandler) OptAccessPoints(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.OptAccessPoints{})
}

func (h *SessionHandler) ConfirmAccessPoints(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Points string `json:"points"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	if strings.TrimSpace(in.Points) == "" {
		writeErr(w, &session.InputError{Reason: "points overlay is required"})
		return
	}
	a, err := artifact.Decode(artifact.RoleAccessPoints, "access_points.png", in.Points)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.dispatch(w, r, session.ConfirmAccessPoints{Points: &a})
}

func (h *SessionHandler) ChooseConcept(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Style string `json:"style"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	h.dispatch(w, r, session.ChooseConcept{Style: capability.ConceptStyle(strings.TrimSpace(in.Style))})
}

func (h *SessionHandler) RefinePlan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Query string `json:"query"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	h.dispatch(w, r, session.SubmitPlanRefinement{Query: in.Query})
}

func (h *SessionHandler) StartPlanEdit(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.StartPlanEdit{})
}

func (h *SessionHandler) VisualRefinePlan(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Query string `json:"query"`
		Mask  string `json:"mask"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	mask, err := decodeMask(in.Mask)
	if err != nil {
		writeErr(w, err)
		return
	}
	h.dispatch(w, r, session.SubmitVisualRefinement{Query: in.Query, Mask: mask})
}

func (h *SessionHandler) AnalyzePlan(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.RequestAnalysis{})
}

func (h *SessionHandler) UpdateParams(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeErr(w, err)
		return
	}
	p, err := params.ParseStrict(raw)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.dispatch(w, r, session.UpdateParamsForm{Parameters: p})
}

func (h *SessionHandler) ParamsQuery(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Query string `json:"query"`
	}
	if err := decodeBody(r, &in); err != nil {
		writeErr(w, err)
		return
	}
	h.dispatch(w, r, session.SubmitParamsQuery{Query: in.Query})
}

func (h *SessionHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.GoBack{})
}

func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.dispatch(w, r, session.StartOver{})
}

// Artifact serves one session image as raw bytes for download.
func (h *SessionHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	x, err := h.exec(r)
	if err != nil {
		writeErr(w, err)
		return
	}
	s := x.Snapshot()
	var a *artifact.Artifact
	switch artifact.Role(r.PathValue("role")) {
	case artifact.RoleSurvey:
		a = s.Survey
	case artifact.RoleBoundary:
		a = s.Boundary
	case artifact.RoleAccessPoints:
		a = s.AccessPoints
	case artifact.RolePlan:
		a = s.Plan
	default:
		writeErr(w, &session.InputError{Reason: "unknown artifact role"})
		return
	}
	if a == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "artifact not available"})
		return
	}
	w.Header().Set("Content-Type", a.MIME)
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.Name+`"`)
	if _, err := w.Write(a.Data); err != nil {
		log.Printf("write artifact: %v", err)
	}
}
