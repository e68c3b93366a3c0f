package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"siteplan/internal/artifact"
	"siteplan/internal/params"
)

// GeminiAdapter implements Adapter on top of the official genai client.
// Text operations use the text model, image operations the image model.
type GeminiAdapter struct {
	cli        *genai.Client
	textModel  string
	imageModel string
}

const (
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image"

	maxAttempts = 3
	baseDelay   = 300 * time.Millisecond
)

func NewGeminiAdapter(ctx context.Context, textModel, imageModel string) (*GeminiAdapter, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(textModel) == "" {
		textModel = defaultTextModel
	}
	if strings.TrimSpace(imageModel) == "" {
		imageModel = defaultImageModel
	}
	return &GeminiAdapter{cli: cli, textModel: textModel, imageModel: imageModel}, nil
}

// nextRetryDelay reports how long to back off after a failed attempt, or
// ok=false when the attempt was the last one and the error is final.
func nextRetryDelay(attempt int) (time.Duration, bool) {
	if attempt+1 >= maxAttempts {
		return 0, false
	}
	return baseDelay * time.Duration(1<<attempt), true
}

func imagePart(a artifact.Artifact) *genai.Part {
	m := strings.TrimSpace(a.MIME)
	if m == "" {
		m = "image/png"
	}
	return &genai.Part{InlineData: &genai.Blob{MIMEType: m, Data: a.Data}}
}

// generateText runs a text-model call with retry and returns the
// concatenated text parts.
func (g *GeminiAdapter) generateText(ctx context.Context, op string, cfg *genai.GenerateContentConfig, parts ...*genai.Part) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := g.cli.Models.GenerateContent(ctx, g.textModel,
			[]*genai.Content{{Parts: parts}}, cfg)
		if err == nil {
			txt := collectText(resp)
			if txt != "" {
				return txt, nil
			}
			err = ErrNoResult
		}
		lastErr = err
		delay, ok := nextRetryDelay(attempt)
		if !ok {
			break
		}
		select {
		case <-ctx.Done():
			return "", opErr(op, ctx.Err())
		default:
		}
		time.Sleep(delay)
	}
	return "", opErr(op, lastErr)
}

// generateImage runs an image-model call with retry and returns the first
// inline image in the response.
func (g *GeminiAdapter) generateImage(ctx context.Context, op string, role artifact.Role, name string, parts ...*genai.Part) (artifact.Artifact, error) {
	cfg := &genai.GenerateContentConfig{ResponseModalities: []string{"IMAGE", "TEXT"}}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := g.cli.Models.GenerateContent(ctx, g.imageModel,
			[]*genai.Content{{Parts: parts}}, cfg)
		if err == nil {
			if img, ok := firstImage(resp); ok {
				img.Role = role
				img.Name = name
				return img, nil
			}
			err = ErrNoResult
		}
		lastErr = err
		delay, ok := nextRetryDelay(attempt)
		if !ok {
			break
		}
		select {
		case <-ctx.Done():
			return artifact.Artifact{}, opErr(op, ctx.Err())
		default:
		}
		time.Sleep(delay)
	}
	return artifact.Artifact{}, opErr(op, lastErr)
}

func collectText(resp *genai.GenerateContentResponse) string {
	return strings.TrimSpace(rawText(resp))
}

func rawText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p != nil && p.Text != "" {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func firstImage(resp *genai.GenerateContentResponse) (artifact.Artifact, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return artifact.Artifact{}, false
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.InlineData == nil || len(p.InlineData.Data) == 0 {
			continue
		}
		if !strings.HasPrefix(p.InlineData.MIMEType, "image/") {
			continue
		}
		return artifact.Artifact{
			MIME: p.InlineData.MIMEType,
			Data: p.InlineData.Data,
		}, true
	}
	return artifact.Artifact{}, false
}

func (g *GeminiAdapter) SummarizeSurvey(ctx context.Context, survey artifact.Artifact) (string, error) {
	return g.generateText(ctx, "summarize_survey", nil,
		&genai.Part{Text: "Summarize this land survey drawing for a site planner: parcel shape, dimensions, notable constraints (easements, slopes, water), and road frontage. Keep it under 120 words."},
		imagePart(survey),
	)
}

func (g *GeminiAdapter) RecommendParameters(ctx context.Context, survey artifact.Artifact, transcript string) (string, error) {
	prompt := "You are a subdivision planner. Given the survey image and the conversation below, " +
		"recommend site parameters. Explain briefly, then end with a labeled block using exactly these labels, one per line: " +
		"Maximum Buildable Coverage, Minimum Green Coverage, Minimum Open Space, Minimum Lot Size, Minimum Lot Width, " +
		"Minimum Number of Lots, Front Setback, Rear Setback, Side Setback, Road Width, Sidewalk Width.\n\n[CONVERSATION]\n" + transcript
	return g.generateText(ctx, "recommend_parameters", nil,
		&genai.Part{Text: prompt},
		imagePart(survey),
	)
}

func (g *GeminiAdapter) DetectBoundary(ctx context.Context, survey artifact.Artifact) (artifact.Artifact, error) {
	return g.generateImage(ctx, "detect_boundary", artifact.RoleBoundary, "boundary.png",
		&genai.Part{Text: "Produce a transparent overlay image, same dimensions as the input survey, containing only a single closed red polygon outline tracing the parcel boundary. No fill, no labels."},
		imagePart(survey),
	)
}

func (g *GeminiAdapter) RefineBoundary(ctx context.Context, survey, boundary artifact.Artifact, mask *artifact.Artifact, query string) (artifact.Artifact, error) {
	parts := []*genai.Part{
		{Text: "Redraw the red parcel-boundary overlay according to this instruction: " + query +
			". Output a transparent overlay with a single closed red outline, same dimensions as the survey."},
		imagePart(survey),
		imagePart(boundary),
	}
	if mask != nil {
		parts = append(parts, &genai.Part{Text: "Only change the region marked in the mask."}, imagePart(*mask))
	}
	return g.generateImage(ctx, "refine_boundary", artifact.RoleBoundary, "boundary.png", parts...)
}

func (g *GeminiAdapter) GenerateConcept(ctx context.Context, req ConceptRequest) (artifact.Artifact, error) {
	p, _ := json.Marshal(req.Parameters)
	parts := []*genai.Part{
		{Text: fmt.Sprintf(
			"Draw a subdivision site plan inside the red boundary. Road network style: %s (%s). Project purpose: %s. Design priority: %s.\nParameters JSON:\n%s",
			req.Style.Label, req.Style.Description, req.Purpose, req.Priority, p)},
		imagePart(req.Boundary),
	}
	if req.AccessPoints != nil {
		parts = append(parts, &genai.Part{Text: "Connect the road network to the marked entrance points."}, imagePart(*req.AccessPoints))
	}
	return g.generateImage(ctx, "generate_concept:"+string(req.Style.Style), artifact.RolePlan, "concept_"+string(req.Style.Style)+".png", parts...)
}

func (g *GeminiAdapter) RefinePlan(ctx context.Context, req RefineRequest) (artifact.Artifact, error) {
	p, _ := json.Marshal(req.Parameters)
	parts := []*genai.Part{
		{Text: "Revise this subdivision site plan: " + req.Query +
			". Keep the parcel boundary fixed and respect these parameters:\n" + string(p)},
		imagePart(req.Plan),
		imagePart(req.Reference),
	}
	op := "refine_plan"
	if req.Mask != nil {
		op = "refine_plan_visual"
		parts = append(parts, &genai.Part{Text: "Apply the change only inside the masked region."}, imagePart(*req.Mask))
	}
	return g.generateImage(ctx, op, artifact.RolePlan, "plan.png", parts...)
}

func (g *GeminiAdapter) UpdateParameters(ctx context.Context, query string, current params.SiteParameters) (params.SiteParameters, error) {
	cur, _ := json.Marshal(current)
	prompt := "Apply this request to the site parameters and return the COMPLETE updated object as JSON with exactly the same keys.\n" +
		"Request: " + query + "\nCurrent parameters:\n" + string(cur)
	txt, err := g.generateText(ctx, "update_parameters",
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
		&genai.Part{Text: prompt},
	)
	if err != nil {
		return params.SiteParameters{}, err
	}
	updated, err := params.ParseStrict(json.RawMessage(txt))
	if err != nil {
		return params.SiteParameters{}, err
	}
	return updated, nil
}

func (g *GeminiAdapter) AnalyzePlan(ctx context.Context, plan artifact.Artifact, p params.SiteParameters, onChunk func(chunk string)) error {
	cfg, _ := json.Marshal(p)
	parts := []*genai.Part{
		{Text: "Analyze this subdivision site plan for compliance with the parameters below. " +
			"Report coverage, green space, lot sizing, setbacks and road widths, flagging violations.\n" + string(cfg)},
		imagePart(plan),
	}
	got := false
	for resp, err := range g.cli.Models.GenerateContentStream(ctx, g.textModel,
		[]*genai.Content{{Parts: parts}}, nil) {
		if err != nil {
			return opErr("analyze_plan", err)
		}
		// Chunks keep their whitespace; trimming would glue words together
		// at chunk boundaries.
		if txt := rawText(resp); txt != "" {
			got = true
			onChunk(txt)
		}
	}
	if !got {
		return opErr("analyze_plan", ErrNoResult)
	}
	return nil
}

func (g *GeminiAdapter) Suggestions(ctx context.Context, kind SuggestionKind, contextText string) []string {
	prompt := "Suggest exactly 3 short follow-up refinement requests a user might make next. " +
		"Return a JSON array of 3 strings, nothing else.\n[CONTEXT]\n" + contextText
	txt, err := g.generateText(ctx, "suggestions",
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
		&genai.Part{Text: prompt},
	)
	if err != nil {
		log.Printf("suggestion fetch failed (%s): %v", kind, err)
		return DefaultSuggestions(kind)
	}
	var items []string
	if err := json.Unmarshal([]byte(txt), &items); err != nil || len(items) != 3 {
		log.Printf("suggestion parse failed (%s): %v", kind, err)
		return DefaultSuggestions(kind)
	}
	for i := range items {
		items[i] = strings.TrimSpace(items[i])
	}
	return items
}
