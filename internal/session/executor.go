package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"siteplan/internal/artifact"
	"siteplan/internal/capability"
	"siteplan/internal/params"
	"siteplan/internal/raster"
	"siteplan/internal/snapshot"
)

const defaultRasterDim = 2048

// Executor owns one session. It serializes events through the reducer,
// runs the resulting effects on goroutines and feeds their completions
// back as events. All capability results enter the session through
// Dispatch; nothing mutates the session directly.
type Executor struct {
	id    string
	caps  capability.Adapter
	rast  raster.Rasterizer
	snaps snapshot.Store

	mu   sync.Mutex
	sess Session

	// Persistence is suppressed until Restore has run, so a half-started
	// session never overwrites a durable snapshot.
	restored    bool
	restoreOnce sync.Once

	maxRasterDim int
	notify       func(Session)

	wg sync.WaitGroup
}

// NewExecutor returns an executor for a fresh session. Call Restore before
// dispatching so a durable snapshot, if any, is picked up first.
func NewExecutor(id string, caps capability.Adapter, rast raster.Rasterizer, snaps snapshot.Store) *Executor {
	return &Executor{
		id:           id,
		caps:         caps,
		rast:         rast,
		snaps:        snaps,
		sess:         New(id),
		maxRasterDim: defaultRasterDim,
	}
}

// SetNotify registers a callback invoked with a session copy after every
// accepted event. Used by the gateway to push state over the watch socket.
func (x *Executor) SetNotify(fn func(Session)) {
	x.mu.Lock()
	x.notify = fn
	x.mu.Unlock()
}

// Snapshot returns a copy of the current session.
func (x *Executor) Snapshot() Session {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.sess.clone()
}

// Wait blocks until all in-flight effects have completed. Test hook.
func (x *Executor) Wait() {
	x.wg.Wait()
}

// Restore loads the durable snapshot for this session, if one exists, and
// re-kicks any entry action the shutdown interrupted. A missing snapshot
// starts fresh; a corrupt or invalid one is deleted and also starts fresh.
// Restore never fails the caller and runs at most once.
func (x *Executor) Restore(ctx context.Context) {
	x.restoreOnce.Do(func() { x.restore(ctx) })
}

func (x *Executor) restore(ctx context.Context) {
	x.mu.Lock()

	rec, err := x.snaps.Load(ctx, x.id)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			log.Printf("session %s: snapshot load failed, starting fresh: %v", x.id, err)
		}
		x.restored = true
		x.mu.Unlock()
		return
	}

	restoredSess, err := FromRecord(rec)
	if err != nil {
		log.Printf("session %s: snapshot invalid, removing: %v", x.id, err)
		_ = x.snaps.Delete(ctx, x.id)
		x.restored = true
		x.mu.Unlock()
		return
	}
	x.sess = restoredSess
	x.restored = true

	effs := x.resumeLocked()
	snap := x.sess.clone()
	fn := x.notify
	x.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	x.spawn(ctx, snap, effs)
}

// resumeLocked re-emits the entry action of the restored stage when its
// result is missing. Completed work is never re-run: a session restored
// with a summary does not summarize again.
func (x *Executor) resumeLocked() []Effect {
	s := &x.sess
	var effs []Effect
	switch {
	case s.Stage == StageAnalysis && s.SurveySummary == "":
		effs = append(effs, EffectSummarize{Epoch: s.Epoch})
	case s.Stage == StageAnalysis && s.Priority != "" && s.RecommendationText == "":
		s.Busy = true
		effs = append(effs, EffectRecommend{Epoch: s.Epoch})
	case s.Stage == StageBoundaryReview && s.Boundary == nil:
		s.Busy = true
		effs = append(effs, EffectDetectBoundary{Epoch: s.Epoch})
	case s.Stage == StageConceptSelection:
		for _, style := range s.ConceptOrder {
			slot := s.Concepts[style]
			if slot.Pending() {
				effs = append(effs, EffectGenerateConcept{Epoch: s.Epoch, Style: slot.Descriptor})
			}
		}
	case s.Stage == StagePlanAnalysis && !s.AnalysisDone:
		s.AnalysisText = ""
		s.AnalysisInFlight = true
		effs = append(effs, EffectAnalyzePlan{Epoch: s.Epoch})
	}
	return effs
}

// Dispatch runs one event through the reducer. User events may return an
// InputError and leave the session untouched; accepted events are persisted
// and their effects started before Dispatch returns.
func (x *Executor) Dispatch(ctx context.Context, ev Event) error {
	x.mu.Lock()
	next, effs, err := Reduce(x.sess, ev)
	if err != nil {
		x.mu.Unlock()
		return err
	}
	x.sess = next
	x.persistLocked(ctx)
	snap := x.sess.clone()
	fn := x.notify
	x.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	x.spawn(ctx, snap, effs)
	return nil
}

// persistLocked saves the session after an accepted event. A session back
// at the upload stage with no survey has nothing worth keeping, so its
// record is deleted instead. Persistence failures are logged and the
// session continues in memory.
func (x *Executor) persistLocked(ctx context.Context) {
	if !x.restored {
		return
	}
	if x.sess.Stage == StageUpload && x.sess.Survey == nil {
		if err := x.snaps.Delete(ctx, x.id); err != nil {
			log.Printf("session %s: snapshot delete failed: %v", x.id, err)
		}
		return
	}
	if err := x.snaps.Save(ctx, x.sess.Record()); err != nil {
		log.Printf("session %s: snapshot save failed: %v", x.id, err)
	}
}

func (x *Executor) spawn(ctx context.Context, snap Session, effs []Effect) {
	if len(effs) == 0 {
		return
	}
	// Effects outlive the request that triggered them.
	bctx := context.WithoutCancel(ctx)
	for _, eff := range effs {
		x.wg.Add(1)
		go func(eff Effect) {
			defer x.wg.Done()
			x.run(bctx, snap, eff)
		}(eff)
	}
}

// run executes one effect against the session state captured when the
// effect was emitted, then feeds the completion back through Dispatch.
// The reducer's epoch and assumption checks make late completions harmless.
func (x *Executor) run(ctx context.Context, snap Session, eff Effect) {
	ep := eff.epoch()
	switch e := eff.(type) {

	case EffectRasterize:
		a, err := x.rast.Rasterize(ctx, e.PDF, x.maxRasterDim)
		if err != nil {
			x.feed(ctx, RasterFailed{Epoch: ep, Err: err})
			return
		}
		x.feed(ctx, RasterDone{Epoch: ep, Artifact: a})

	case EffectSummarize:
		text, err := x.caps.SummarizeSurvey(ctx, deref(snap.Survey))
		if err != nil {
			x.feed(ctx, SummaryFailed{Epoch: ep, Err: err})
			return
		}
		x.feed(ctx, SummaryDone{Epoch: ep, Text: text})

	case EffectRecommend:
		text, err := x.caps.RecommendParameters(ctx, deref(snap.Survey), snap.Conversation.Transcript())
		if err != nil {
			x.feed(ctx, RecommendationFailed{Epoch: ep, Err: err})
			return
		}
		x.feed(ctx, RecommendationDone{Epoch: ep, Text: text})

	case EffectDetectBoundary:
		a, err := x.caps.DetectBoundary(ctx, deref(snap.Survey))
		if err != nil {
			x.feed(ctx, BoundaryDetectFailed{Epoch: ep, Err: err})
			return
		}
		x.feed(ctx, BoundaryDetected{Epoch: ep, Artifact: a})

	case EffectRefineBoundary:
		a, err := x.caps.RefineBoundary(ctx, deref(snap.Survey), deref(snap.Boundary), e.Mask, e.Query)
		if err != nil {
			x.feed(ctx, BoundaryRefineFailed{Epoch: ep, Err: err})
			return
		}
		x.feed(ctx, BoundaryRefined{Epoch: ep, Artifact: a})

	case EffectGenerateConcept:
		a, err := x.caps.GenerateConcept(ctx, capability.ConceptRequest{
			Boundary:     deref(snap.Boundary),
			AccessPoints: snap.AccessPoints,
			Purpose:      snap.Purpose,
			Priority:     snap.Priority,
			Parameters:   paramsOrDefault(snap),
			Style:        e.Style,
		})
		if err != nil {
			x.feed(ctx, ConceptFailed{Epoch: ep, Style: e.Style.Style, Err: err})
			return
		}
		x.feed(ctx, ConceptReady{Epoch: ep, Style: e.Style.Style, Artifact: a})

	case EffectRefinePlan:
		reference := snap.Boundary
		if reference == nil {
			reference = snap.Survey
		}
		a, err := x.caps.RefinePlan(ctx, capability.RefineRequest{
			Plan:       deref(snap.Plan),
			Reference:  deref(reference),
			Mask:       e.Mask,
			Query:      e.Query,
			Parameters: paramsOrDefault(snap),
		})
		if err != nil {
			if e.Visual {
				x.feed(ctx, VisualRefineFailed{Epoch: ep, Err: err})
			} else {
				x.feed(ctx, PlanRefineFailed{Epoch: ep, Err: err})
			}
			return
		}
		if e.Visual {
			x.feed(ctx, VisualRefined{Epoch: ep, Artifact: a})
		} else {
			x.feed(ctx, PlanRefined{Epoch: ep, Artifact: a})
		}

	case EffectAnalyzePlan:
		err := x.caps.AnalyzePlan(ctx, deref(snap.Plan), paramsOrDefault(snap), func(chunk string) {
			x.feed(ctx, AnalysisChunk{Epoch: ep, Text: chunk})
		})
		if err != nil {
			x.feed(ctx, AnalysisFailed{Epoch: ep, Err: err})
			return
		}
		x.feed(ctx, AnalysisDone{Epoch: ep})

	case EffectFetchSuggestions:
		contextText := snap.RecommendationText
		if contextText == "" {
			contextText = snap.SurveySummary
		}
		items := x.caps.Suggestions(ctx, e.Kind, contextText)
		x.feed(ctx, SuggestionsFetched{Epoch: ep, Kind: e.Kind, Items: items})

	case EffectUpdateParams:
		p, err := x.caps.UpdateParameters(ctx, e.Query, paramsOrDefault(snap))
		if err != nil {
			x.feed(ctx, ParamsQueryFailed{Epoch: ep, Err: err})
			return
		}
		x.feed(ctx, ParamsQueryDone{Epoch: ep, Parameters: p})
	}
}

// feed dispatches a completion event. Completions never fail the reducer;
// an error here indicates a bug, so it is logged rather than dropped silently.
func (x *Executor) feed(ctx context.Context, ev Event) {
	if err := x.Dispatch(ctx, ev); err != nil {
		log.Printf("session %s: completion %T rejected: %v", x.id, ev, err)
	}
}

func deref(a *artifact.Artifact) artifact.Artifact {
	if a == nil {
		return artifact.Artifact{}
	}
	return *a
}

func paramsOrDefault(s Session) params.SiteParameters {
	if s.Parameters != nil {
		return *s.Parameters
	}
	return params.Defaults()
}
