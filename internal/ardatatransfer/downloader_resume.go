// Package ardatatransfer mirrors the native data transfer enums used by the
// downloader.
package ardatatransfer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DownloaderResume is the Go copy of the native eARDATATRANSFER_DOWNLOADER_RESUME
// enum. Values must stay equal to the native ones.
type DownloaderResume int32

const (
	// DownloaderResumeUnknown is returned for every native value this package does not know.
	DownloaderResumeUnknown DownloaderResume = math.MinInt32
	DownloaderResumeFalse   DownloaderResume = 0
	DownloaderResumeTrue    DownloaderResume = 1
)

// ErrInvalidResume is returned for text that names no resume flag.
var ErrInvalidResume = errors.New("invalid resume flag")

type resumeInfo struct {
	name    string
	comment string
}

// Written only here; lookups need no locking.
var resumeTable = map[DownloaderResume]resumeInfo{
	DownloaderResumeUnknown: {name: "UNKNOWN", comment: "Dummy value for all unknown cases"},
	DownloaderResumeFalse:   {name: "RESUME_FALSE"},
	DownloaderResumeTrue:    {name: "RESUME_TRUE"},
}

// DownloaderResumeValues returns every defined constant in declaration order.
func DownloaderResumeValues() []DownloaderResume {
	return []DownloaderResume{
		DownloaderResumeUnknown,
		DownloaderResumeFalse,
		DownloaderResumeTrue,
	}
}

// DownloaderResumeFromValue returns the constant matching a native value, or
// DownloaderResumeUnknown when there is none.
func DownloaderResumeFromValue(value int32) DownloaderResume {
	r := DownloaderResume(value)
	if _, ok := resumeTable[r]; !ok {
		return DownloaderResumeUnknown
	}
	return r
}

// DownloaderResumeFromBool maps true to DownloaderResumeTrue and false to
// DownloaderResumeFalse.
func DownloaderResumeFromBool(resume bool) DownloaderResume {
	if resume {
		return DownloaderResumeTrue
	}
	return DownloaderResumeFalse
}

// Value returns the native integer value.
func (r DownloaderResume) Value() int32 {
	return int32(r)
}

// Name returns the symbolic name of the constant.
func (r DownloaderResume) Name() string {
	return DownloaderResumeFromValue(int32(r)).info().name
}

// String returns the description of the constant, falling back to its name.
func (r DownloaderResume) String() string {
	info := DownloaderResumeFromValue(int32(r)).info()
	if info.comment != "" {
		return info.comment
	}
	return info.name
}

// IsKnown reports whether r is one of the defined constants other than
// DownloaderResumeUnknown.
func (r DownloaderResume) IsKnown() bool {
	return r != DownloaderResumeUnknown && DownloaderResumeFromValue(int32(r)) == r
}

// Bool reports whether the flag asks for a resumed transfer.
func (r DownloaderResume) Bool() bool {
	return r == DownloaderResumeTrue
}

func (r DownloaderResume) info() resumeInfo {
	return resumeTable[r]
}

// MarshalText encodes the flag as its symbolic name.
func (r DownloaderResume) MarshalText() ([]byte, error) {
	return []byte(r.Name()), nil
}

// UnmarshalText accepts a symbolic name, "true"/"false" or a native integer.
// Integers never fail: values outside the table become DownloaderResumeUnknown.
func (r *DownloaderResume) UnmarshalText(text []byte) error {
	parsed, err := ParseDownloaderResume(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseDownloaderResume parses the textual forms accepted by UnmarshalText.
func ParseDownloaderResume(s string) (DownloaderResume, error) {
	s = strings.TrimSpace(s)
	for _, r := range DownloaderResumeValues() {
		if strings.EqualFold(s, r.Name()) {
			return r, nil
		}
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return DownloaderResumeFromBool(b), nil
	}
	if v, err := strconv.ParseInt(s, 10, 32); err == nil {
		return DownloaderResumeFromValue(int32(v)), nil
	}
	return DownloaderResumeUnknown, fmt.Errorf("%w: %q", ErrInvalidResume, s)
}
