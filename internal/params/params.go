package params

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// SiteParameters is the numeric configuration driving concept generation
// and compliance analysis. Lengths are meters, areas square meters.
type SiteParameters struct {
	MaxCoveragePct  float64 `json:"max_coverage_pct"`
	MinGreenPct     float64 `json:"min_green_pct"`
	MinOpenSpacePct float64 `json:"min_open_space_pct"`
	MinLotSizeSqm   float64 `json:"min_lot_size_sqm"`
	MinLotWidthM    float64 `json:"min_lot_width_m"`
	MinLotCount     *int    `json:"min_lot_count,omitempty"`
	SetbackFrontM   float64 `json:"setback_front_m"`
	SetbackRearM    float64 `json:"setback_rear_m"`
	SetbackSideM    float64 `json:"setback_side_m"`
	RoadWidthM      float64 `json:"road_width_m"`
	SidewalkWidthM  float64 `json:"sidewalk_width_m"`
}

// Defaults returns the hard-coded fallback configuration.
func Defaults() SiteParameters {
	return SiteParameters{
		MaxCoveragePct:  40,
		MinGreenPct:     25,
		MinOpenSpacePct: 15,
		MinLotSizeSqm:   300,
		MinLotWidthM:    10,
		SetbackFrontM:   5,
		SetbackRearM:    3,
		SetbackSideM:    3,
		RoadWidthM:      8,
		SidewalkWidthM:  1.5,
	}
}

// SchemaError reports a structured parameter payload that does not match
// the expected shape. The current parameters are left untouched.
type SchemaError struct {
	Field string
	Err   error
}

func (e *SchemaError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("params: invalid field %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("params: invalid payload: %v", e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

var numberPattern = `(-?\d+(?:[.,]\d+)?)`

// Each field is searched for independently; label variants are tolerated
// because the text comes from a model, not a form.
var fieldPatterns = map[string]*regexp.Regexp{
	"max_coverage":   regexp.MustCompile(`(?i)max(?:imum)?\s+buildable\s+coverage\D{0,20}?` + numberPattern),
	"min_green":      regexp.MustCompile(`(?i)min(?:imum)?\s+green\s+coverage\D{0,20}?` + numberPattern),
	"min_open_space": regexp.MustCompile(`(?i)min(?:imum)?\s+open\s+space\D{0,20}?` + numberPattern),
	"min_lot_size":   regexp.MustCompile(`(?i)min(?:imum)?\s+lot\s+size\D{0,20}?` + numberPattern),
	"min_lot_width":  regexp.MustCompile(`(?i)min(?:imum)?\s+lot\s+width\D{0,20}?` + numberPattern),
	"min_lot_count":  regexp.MustCompile(`(?i)min(?:imum)?\s+(?:number\s+of\s+lots|lot\s+count)\D{0,20}?(\d+)`),
	"setback_front":  regexp.MustCompile(`(?i)front\s+setback\D{0,20}?` + numberPattern),
	"setback_rear":   regexp.MustCompile(`(?i)rear\s+setback\D{0,20}?` + numberPattern),
	"setback_side":   regexp.MustCompile(`(?i)side\s+setback\D{0,20}?` + numberPattern),
	"road_width":     regexp.MustCompile(`(?i)road\s+width\D{0,20}?` + numberPattern),
	"sidewalk_width": regexp.MustCompile(`(?i)sidewalk\s+width\D{0,20}?` + numberPattern),
}

// ExtractFromText scans loosely labeled text for each known field. Fields
// not found fall back to prev (or the hard default when prev is nil), so
// the result is always a complete, valid parameters object. Partial or
// malformed model output degrades to the previous values instead of failing.
func ExtractFromText(text string, prev *SiteParameters) SiteParameters {
	base := Defaults()
	if prev != nil {
		base = *prev
	}
	out := base

	pick := func(key string, dst *float64) {
		if v, ok := findNumber(key, text); ok && !math.IsNaN(v) && v >= 0 {
			*dst = v
		}
	}
	pick("max_coverage", &out.MaxCoveragePct)
	pick("min_green", &out.MinGreenPct)
	pick("min_open_space", &out.MinOpenSpacePct)
	pick("min_lot_size", &out.MinLotSizeSqm)
	pick("min_lot_width", &out.MinLotWidthM)
	pick("setback_front", &out.SetbackFrontM)
	pick("setback_rear", &out.SetbackRearM)
	pick("setback_side", &out.SetbackSideM)
	pick("road_width", &out.RoadWidthM)
	pick("sidewalk_width", &out.SidewalkWidthM)

	if v, ok := findNumber("min_lot_count", text); ok && v >= 1 {
		n := int(v)
		out.MinLotCount = &n
	}
	return out
}

func findNumber(key, text string) (float64, bool) {
	re, ok := fieldPatterns[key]
	if !ok {
		return 0, false
	}
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return 0, false
	}
	raw := m[1]
	// Decimal comma shows up in some survey texts.
	if len(raw) > 0 {
		for i := 0; i < len(raw); i++ {
			if raw[i] == ',' {
				raw = raw[:i] + "." + raw[i+1:]
				break
			}
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

type strictPayload struct {
	MaxCoveragePct  *float64 `json:"max_coverage_pct"`
	MinGreenPct     *float64 `json:"min_green_pct"`
	MinOpenSpacePct *float64 `json:"min_open_space_pct"`
	MinLotSizeSqm   *float64 `json:"min_lot_size_sqm"`
	MinLotWidthM    *float64 `json:"min_lot_width_m"`
	MinLotCount     *int     `json:"min_lot_count"`
	SetbackFrontM   *float64 `json:"setback_front_m"`
	SetbackRearM    *float64 `json:"setback_rear_m"`
	SetbackSideM    *float64 `json:"setback_side_m"`
	RoadWidthM      *float64 `json:"road_width_m"`
	SidewalkWidthM  *float64 `json:"sidewalk_width_m"`
}

// ParseStrict decodes a structured parameter payload. Every numeric field
// must be present and non-negative; anything else is a SchemaError and the
// payload is rejected wholesale rather than half-applied.
func ParseStrict(raw json.RawMessage) (SiteParameters, error) {
	var p strictPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return SiteParameters{}, &SchemaError{Err: err}
	}
	var out SiteParameters
	required := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"max_coverage_pct", p.MaxCoveragePct, &out.MaxCoveragePct},
		{"min_green_pct", p.MinGreenPct, &out.MinGreenPct},
		{"min_open_space_pct", p.MinOpenSpacePct, &out.MinOpenSpacePct},
		{"min_lot_size_sqm", p.MinLotSizeSqm, &out.MinLotSizeSqm},
		{"min_lot_width_m", p.MinLotWidthM, &out.MinLotWidthM},
		{"setback_front_m", p.SetbackFrontM, &out.SetbackFrontM},
		{"setback_rear_m", p.SetbackRearM, &out.SetbackRearM},
		{"setback_side_m", p.SetbackSideM, &out.SetbackSideM},
		{"road_width_m", p.RoadWidthM, &out.RoadWidthM},
		{"sidewalk_width_m", p.SidewalkWidthM, &out.SidewalkWidthM},
	}
	for _, f := range required {
		if f.src == nil {
			return SiteParameters{}, &SchemaError{Field: f.name, Err: fmt.Errorf("missing")}
		}
		if math.IsNaN(*f.src) || math.IsInf(*f.src, 0) || *f.src < 0 {
			return SiteParameters{}, &SchemaError{Field: f.name, Err: fmt.Errorf("out of range: %v", *f.src)}
		}
		*f.dst = *f.src
	}
	if p.MinLotCount != nil {
		if *p.MinLotCount < 0 {
			return SiteParameters{}, &SchemaError{Field: "min_lot_count", Err: fmt.Errorf("negative")}
		}
		n := *p.MinLotCount
		out.MinLotCount = &n
	}
	return out, nil
}
