package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"siteplan/internal/conversation"
	"siteplan/internal/params"
	"siteplan/internal/tester"
)

func sampleRecord(id string) Record {
	p := params.Defaults()
	var l conversation.Log
	l = l.AppendBot("What is the project purpose?", "Residential", "Commercial")
	l = l.AppendUser("Residential")
	return Record{
		SessionID:     id,
		Stage:         "plan_refinement",
		SurveyImage:   "data:image/png;base64,iVBORw0KGgo=",
		PlanImage:     "data:image/png;base64,iVBORw0KGgo=",
		Purpose:       "Residential",
		Priority:      "Balanced Layout",
		SurveySummary: "a parcel",
		Concepts: map[string]ConceptRecord{
			"grid": {Label: "Grid Network", Image: "data:image/png;base64,iVBORw0KGgo="},
			"loop": {Label: "Loop Network", Failed: true},
		},
		Conversation: l,
		Parameters:   &p,
		PlanSuggest:  []string{"a", "b", "c"},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	ctx := context.Background()

	want := sampleRecord("sess-1")
	tester.NoErr(t, s.Save(ctx, want))

	got, err := s.Load(ctx, "sess-1")
	tester.NoErr(t, err)
	got.SavedAt = want.SavedAt
	tester.Eq(t, got, want)
}

func TestFileStoreLoadMissing(t *testing.T) {
	s := NewFileStore(t.TempDir())
	_, err := s.Load(context.Background(), "nope")
	tester.ErrIs(t, err, ErrNotFound)
}

func TestFileStoreCorruptRecordTreatedAsAbsence(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	ctx := context.Background()

	path := filepath.Join(dir, "sess-2.json")
	tester.NoErr(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := s.Load(ctx, "sess-2")
	tester.ErrIs(t, err, ErrNotFound)

	// The corrupt record was removed; a second attempt finds nothing on disk.
	_, statErr := os.Stat(path)
	tester.True(t, os.IsNotExist(statErr), "corrupt file removed")
	_, err = s.Load(ctx, "sess-2")
	tester.ErrIs(t, err, ErrNotFound)
}

func TestFileStoreDelete(t *testing.T) {
	s := NewFileStore(t.TempDir())
	ctx := context.Background()
	tester.NoErr(t, s.Save(ctx, sampleRecord("sess-3")))
	tester.NoErr(t, s.Delete(ctx, "sess-3"))
	_, err := s.Load(ctx, "sess-3")
	tester.ErrIs(t, err, ErrNotFound)
	// Deleting a missing record is not an error.
	tester.NoErr(t, s.Delete(ctx, "sess-3"))
}

func TestFileStoreRejectsPathySessionID(t *testing.T) {
	s := NewFileStore(t.TempDir())
	tester.Err(t, s.Save(context.Background(), Record{SessionID: "../escape"}))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	tester.NoErr(t, s.Save(ctx, sampleRecord("m1")))
	got, err := s.Load(ctx, "m1")
	tester.NoErr(t, err)
	tester.Eq(t, got.Stage, "plan_refinement")
	tester.NoErr(t, s.Delete(ctx, "m1"))
	_, err = s.Load(ctx, "m1")
	tester.ErrIs(t, err, ErrNotFound)
}

func TestCachedStoreHitsCacheAfterSave(t *testing.T) {
	backend := NewMemoryStore()
	s, err := NewCached(backend, 4)
	tester.NoErr(t, err)
	ctx := context.Background()

	tester.NoErr(t, s.Save(ctx, sampleRecord("c1")))

	// Remove from the backend; the cache still serves the record.
	tester.NoErr(t, backend.Delete(ctx, "c1"))
	got, err := s.Load(ctx, "c1")
	tester.NoErr(t, err)
	tester.Eq(t, got.SessionID, "c1")

	// Delete purges both layers.
	tester.NoErr(t, s.Delete(ctx, "c1"))
	_, err = s.Load(ctx, "c1")
	tester.ErrIs(t, err, ErrNotFound)
}
