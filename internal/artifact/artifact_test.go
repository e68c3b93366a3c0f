package artifact

import (
	"bytes"
	"errors"
	"testing"

	"siteplan/internal/tester"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := Artifact{Role: RolePlan, Name: "plan.png", MIME: "image/png", Data: append([]byte(nil), pngHeader...)}
	enc := a.Encode()
	got, err := Decode(RolePlan, "restored.png", enc)
	tester.NoErr(t, err)
	tester.Eq(t, got.MIME, "image/png")
	tester.Eq(t, got.Name, "restored.png")
	tester.True(t, bytes.Equal(got.Data, pngHeader), "payload bytes survive the round trip")
}

func TestEncodeDefaultsMIME(t *testing.T) {
	a := Artifact{Role: RoleSurvey, Data: []byte{1, 2, 3}}
	got, err := Decode(RoleSurvey, "survey", a.Encode())
	tester.NoErr(t, err)
	tester.Eq(t, got.MIME, "image/png")
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := []struct {
		name    string
		encoded string
	}{
		{"no prefix", "image/png;base64,AAAA"},
		{"no separator", "data:image/png,AAAA"},
		{"bad media type", "data:not valid/;base64,AAAA"},
		{"non image", "data:text/plain;base64,AAAA"},
		{"bad base64", "data:image/png;base64,@@@"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(RoleSurvey, "x", tc.encoded)
			var fe *FormatError
			tester.True(t, errors.As(err, &fe), "expected FormatError")
		})
	}
}
