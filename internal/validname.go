package internal

import (
	"regexp"
)

const (
	// A valid key is a single path component: no separators and no
	// control characters.
	pattern = `^[^\pC/\\]+$`
	// It may not be a relative directory reference.
	antiPattern = `^\.\.?$`
)

var (
	re     *regexp.Regexp
	antiRe *regexp.Regexp
)

func init() {
	var err error
	re, err = regexp.Compile(pattern)
	if err != nil {
		panic(err)
	}
	antiRe, err = regexp.Compile(antiPattern)
	if err != nil {
		panic(err)
	}
}

// IsValidKey returns true if name can be used as one component of a cache path.
func IsValidKey(name string) bool {
	return re.MatchString(name) && !antiRe.MatchString(name)
}
