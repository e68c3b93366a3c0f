package artifact

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
)

// Role identifies what a session tracks an image under.
type Role string

const (
	RoleSurvey       Role = "survey"
	RoleBoundary     Role = "boundary"
	RoleAccessPoints Role = "access_points"
	RolePlan         Role = "plan"
	RoleMask         Role = "mask"
)

// Artifact is a binary image payload tracked under a role.
// It is a value type; callers replace artifacts, they never mutate Data.
type Artifact struct {
	Role Role   `json:"role"`
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data []byte `json:"-"`
}

// FormatError reports a transportable string that is not a well-formed
// encoded image.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "artifact: " + e.Reason
}

const dataPrefix = "data:"
const base64Marker = ";base64,"

// Encode returns the transportable form of the artifact, a data URI.
// Decoding the result yields the same bytes.
func (a Artifact) Encode() string {
	m := strings.TrimSpace(a.MIME)
	if m == "" {
		m = "image/png"
	}
	return dataPrefix + m + base64Marker + base64.StdEncoding.EncodeToString(a.Data)
}

// Decode parses a transportable string back into an artifact under the
// given role and assigned name.
func Decode(role Role, name, encoded string) (Artifact, error) {
	encoded = strings.TrimSpace(encoded)
	if !strings.HasPrefix(encoded, dataPrefix) {
		return Artifact{}, &FormatError{Reason: "missing data: prefix"}
	}
	rest := strings.TrimPrefix(encoded, dataPrefix)
	idx := strings.Index(rest, base64Marker)
	if idx < 0 {
		return Artifact{}, &FormatError{Reason: "missing base64 separator"}
	}
	mediaType, _, err := mime.ParseMediaType(rest[:idx])
	if err != nil {
		return Artifact{}, &FormatError{Reason: fmt.Sprintf("unparseable media type %q", rest[:idx])}
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return Artifact{}, &FormatError{Reason: fmt.Sprintf("media type %q is not an image", mediaType)}
	}
	data, err := base64.StdEncoding.DecodeString(rest[idx+len(base64Marker):])
	if err != nil {
		return Artifact{}, &FormatError{Reason: "invalid base64 payload"}
	}
	return Artifact{
		Role: role,
		Name: strings.TrimSpace(name),
		MIME: mediaType,
		Data: data,
	}, nil
}

// Empty reports whether the artifact carries no payload.
func (a Artifact) Empty() bool {
	return len(a.Data) == 0
}
