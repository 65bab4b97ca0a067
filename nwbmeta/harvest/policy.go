package harvest

import (
	"strings"

	"github.com/pkg/errors"
)

// Policy says what a run does when one asset cannot be read.
type Policy int

const (
	// FailFast stops the run at the first asset that cannot be read.
	FailFast Policy = iota
	// SkipAndContinue logs the failure, leaves the asset out of the
	// aggregate and goes on with the next one.
	SkipAndContinue
)

// ErrPolicy is returned for unknown policy names
var ErrPolicy = errors.New("unknown error policy")

// ParsePolicy accepts "fail" and "skip".
func ParsePolicy(name string) (Policy, error) {
	switch strings.ToLower(name) {
	case "fail", "":
		return FailFast, nil
	case "skip":
		return SkipAndContinue, nil
	}
	return FailFast, errors.Wrapf(ErrPolicy, "%q", name)
}

func (p Policy) String() string {
	if p == SkipAndContinue {
		return "skip"
	}
	return "fail"
}
