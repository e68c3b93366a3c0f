package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"siteplan/internal/capability"
	"siteplan/internal/gateway/handler"
	"siteplan/internal/gateway/server"
	"siteplan/internal/raster"
	"siteplan/internal/session"
	"siteplan/internal/snapshot"
)

type testAPI struct {
	srv *httptest.Server
	mgr *session.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mgr := session.NewManager(capability.NewFake(), &raster.Fake{}, snapshot.NewMemoryStore())
	mux := server.NewMux(handler.NewSessionHandler(mgr), handler.NewWatchHandler(mgr))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &testAPI{srv: srv, mgr: mgr}
}

func (a *testAPI) post(t *testing.T, path string, body any) (*http.Response, handler.SessionView) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(a.srv.URL+path, "application/json", &buf)
	require.NoError(t, err)
	return resp, decodeView(t, resp)
}

func (a *testAPI) settle(id string) {
	a.mgr.Get(context.Background(), id).Wait()
}

func decodeView(t *testing.T, resp *http.Response) handler.SessionView {
	t.Helper()
	defer resp.Body.Close()
	var v handler.SessionView
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	}
	return v
}

func uploadPDF(t *testing.T, a *testAPI, id string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "plot.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.4 test"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/api/sessions/"+id+"/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	a.settle(id)
}

func TestUploadRejectsWrongContentType(t *testing.T) {
	a := newTestAPI(t)
	req, err := http.NewRequest(http.MethodPost, a.srv.URL+"/api/sessions/s1/upload",
		strings.NewReader("not a pdf"))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "image/jpeg")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWorkflowOverHTTP(t *testing.T) {
	a := newTestAPI(t)
	uploadPDF(t, a, "s1")

	resp, err := http.Get(a.srv.URL + "/api/sessions/s1")
	require.NoError(t, err)
	v := decodeView(t, resp)
	require.Equal(t, "analysis", v.Stage)
	require.NotEmpty(t, v.SurveySummary)
	require.NotEmpty(t, v.SurveyImage)

	resp, _ = a.post(t, "/api/sessions/s1/choose", map[string]string{"text": "Residential"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = a.post(t, "/api/sessions/s1/choose", map[string]string{"text": "Balanced Layout"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	a.settle("s1")

	resp, v = a.post(t, "/api/sessions/s1/boundary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "boundary_review", v.Stage)
	a.settle("s1")

	resp, _ = a.post(t, "/api/sessions/s1/boundary/confirm", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, v = a.post(t, "/api/sessions/s1/access-points/decline", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "concept_selection", v.Stage)
	require.Len(t, v.Concepts, 4)
	a.settle("s1")

	resp, v = a.post(t, "/api/sessions/s1/concepts/choose", map[string]string{"style": "grid"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "plan_refinement", v.Stage)
	require.NotEmpty(t, v.PlanImage)
	a.settle("s1")

	resp, v = a.post(t, "/api/sessions/s1/plan/analyze", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "plan_analysis", v.Stage)
	a.settle("s1")

	resp, err = http.Get(a.srv.URL + "/api/sessions/s1")
	require.NoError(t, err)
	v = decodeView(t, resp)
	require.True(t, v.AnalysisDone)
	require.Contains(t, v.AnalysisText, "Coverage")
}

func TestBlankSessionIDRejected(t *testing.T) {
	a := newTestAPI(t)

	resp, err := http.Get(a.srv.URL + "/api/sessions/%20")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = a.post(t, "/api/sessions/%20/back", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChooseRejectsUnknownOption(t *testing.T) {
	a := newTestAPI(t)
	uploadPDF(t, a, "s2")
	resp, _ := a.post(t, "/api/sessions/s2/choose", map[string]string{"text": "Industrial"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestParamsFormValidation(t *testing.T) {
	a := newTestAPI(t)
	uploadPDF(t, a, "s3")
	_, _ = a.post(t, "/api/sessions/s3/choose", map[string]string{"text": "Residential"})
	_, _ = a.post(t, "/api/sessions/s3/choose", map[string]string{"text": "Balanced Layout"})
	a.settle("s3")

	// Missing required fields is rejected wholesale.
	req, err := http.NewRequest(http.MethodPut, a.srv.URL+"/api/sessions/s3/params",
		strings.NewReader(`{"max_coverage_pct": 50}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	full := `{"max_coverage_pct":50,"min_green_pct":25,"min_open_space_pct":15,
		"min_lot_size_sqm":300,"min_lot_width_m":10,"setback_front_m":5,
		"setback_rear_m":3,"setback_side_m":3,"road_width_m":8,"sidewalk_width_m":1.5}`
	req, err = http.NewRequest(http.MethodPut, a.srv.URL+"/api/sessions/s3/params", strings.NewReader(full))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	v := decodeView(t, resp)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 50.0, v.Parameters.MaxCoveragePct)
}

func TestArtifactDownload(t *testing.T) {
	a := newTestAPI(t)
	uploadPDF(t, a, "s4")

	resp, err := http.Get(a.srv.URL + "/api/sessions/s4/artifacts/survey")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	resp2, err := http.Get(a.srv.URL + "/api/sessions/s4/artifacts/plan")
	require.NoError(t, err)
	defer resp2.Body.Close()
	require.Equal(t, http.StatusNotFound, resp2.StatusCode, "no plan yet")
}

func TestWatchSocketPushesState(t *testing.T) {
	a := newTestAPI(t)
	uploadPDF(t, a, "s5")

	wsURL := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/api/sessions/s5/watch"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	var out struct {
		Type  string               `json:"type"`
		State *handler.SessionView `json:"state"`
	}
	require.NoError(t, conn.ReadJSON(&out))
	require.Equal(t, "state", out.Type)
	require.NotNil(t, out.State)
	require.Equal(t, "analysis", out.State.Stage)
}
