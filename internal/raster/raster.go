package raster

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"siteplan/internal/artifact"
)

// ConversionError reports a failed PDF rasterization. The pending upload
// is aborted and the session returns to the upload stage.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string { return fmt.Sprintf("raster: %v", e.Err) }
func (e *ConversionError) Unwrap() error { return e.Err }

// Rasterizer converts the first page of a PDF into a PNG survey artifact.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte, maxDim int) (artifact.Artifact, error)
}

// Poppler shells out to pdftoppm. The binary path is configurable so tests
// and containers can point at a non-default install.
type Poppler struct {
	Binary string
}

func NewPoppler(binary string) *Poppler {
	if strings.TrimSpace(binary) == "" {
		binary = "pdftoppm"
	}
	return &Poppler{Binary: binary}
}

func (p *Poppler) Rasterize(ctx context.Context, pdf []byte, maxDim int) (artifact.Artifact, error) {
	if len(pdf) == 0 {
		return artifact.Artifact{}, &ConversionError{Err: fmt.Errorf("empty pdf")}
	}
	if maxDim <= 0 {
		maxDim = 1600
	}
	dir, err := os.MkdirTemp("", "siteplan-raster-")
	if err != nil {
		return artifact.Artifact{}, &ConversionError{Err: err}
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "survey.pdf")
	if err := os.WriteFile(in, pdf, 0o600); err != nil {
		return artifact.Artifact{}, &ConversionError{Err: err}
	}

	outPrefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, p.Binary,
		"-png", "-f", "1", "-l", "1",
		"-scale-to", strconv.Itoa(maxDim),
		in, outPrefix,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return artifact.Artifact{}, &ConversionError{Err: fmt.Errorf("pdftoppm: %v (%s)", err, strings.TrimSpace(stderr.String()))}
	}

	// pdftoppm names single-page output page-1.png or page-01.png
	// depending on version.
	matches, _ := filepath.Glob(outPrefix + "*.png")
	if len(matches) == 0 {
		return artifact.Artifact{}, &ConversionError{Err: fmt.Errorf("no page produced")}
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		return artifact.Artifact{}, &ConversionError{Err: err}
	}
	return artifact.Artifact{
		Role: artifact.RoleSurvey,
		Name: "survey.png",
		MIME: "image/png",
		Data: data,
	}, nil
}

// Fake returns a fixed PNG without touching the input, or fails when Fail
// is set.
type Fake struct {
	Fail bool
	PNG  []byte
}

func (f *Fake) Rasterize(ctx context.Context, pdf []byte, maxDim int) (artifact.Artifact, error) {
	if f.Fail {
		return artifact.Artifact{}, &ConversionError{Err: fmt.Errorf("fake conversion failure")}
	}
	data := f.PNG
	if len(data) == 0 {
		data = []byte{0x89, 'P', 'N', 'G'}
	}
	return artifact.Artifact{
		Role: artifact.RoleSurvey,
		Name: "survey.png",
		MIME: "image/png",
		Data: append([]byte(nil), data...),
	}, nil
}

var _ Rasterizer = (*Poppler)(nil)
var _ Rasterizer = (*Fake)(nil)
