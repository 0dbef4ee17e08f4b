package refstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	fileExt = ".png"

	// maxAlternatives bounds the name_1.png, name_2.png, ... lookup.
	maxAlternatives = 100
)

// Capabilities describes the browser a screenshot was taken with.
type Capabilities struct {
	Platform string // e.g. "linux"
	Browser  string // e.g. "chromium"
	Version  string // full version, e.g. "120.0.6099.28"
}

// MajorVersion returns the leading integer of Version, or 0.
func (c Capabilities) MajorVersion() int {
	v, _, _ := strings.Cut(strings.TrimSpace(c.Version), ".")
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// GenerateName returns the reference file name for id taken with caps:
// "<id>_<platform>_<browser>_<major>.png".
func GenerateName(id string, caps Capabilities) string {
	return fmt.Sprintf("%s_%s_%s_%d%s",
		id, nameToken(caps.Platform), nameToken(caps.Browser), caps.MajorVersion(), fileExt)
}

func nameToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "unknown"
	}
	return strings.ReplaceAll(s, " ", "-")
}

// WithExt returns name with the .png extension added when missing.
func WithExt(name string) string {
	if strings.HasSuffix(name, fileExt) {
		return name
	}
	return name + fileExt
}

// Alternative returns the n-th alternative of a reference name:
// "login.png" becomes "login_1.png" for n == 1.
func Alternative(name string, n int) string {
	return strings.TrimSuffix(name, fileExt) + "_" + strconv.Itoa(n) + fileExt
}

// ResolveOldReference returns fileName when it exists. Otherwise it looks for
// the same reference taken with an older major version of browser, walking
// down from version-1, and returns the first name that exists. When none
// exists fileName is returned unchanged.
func ResolveOldReference(ctx context.Context, store Store, fileName, browser string, version int) (string, error) {
	ok, err := store.Exists(ctx, fileName)
	if err != nil || ok {
		return fileName, err
	}

	current := fmt.Sprintf("%s_%d", browser, version)
	if browser == "" || !strings.Contains(fileName, current) {
		return fileName, nil
	}
	for v := version - 1; v > 0; v-- {
		candidate := strings.Replace(fileName, current, fmt.Sprintf("%s_%d", browser, v), 1)
		ok, err := store.Exists(ctx, candidate)
		if err != nil {
			return fileName, err
		}
		if ok {
			return candidate, nil
		}
	}
	return fileName, nil
}

// ReferenceNames returns the names of every existing reference for name: the
// name itself (or its closest older-browser variant when caps is given) and
// its numbered alternatives. Alternatives are checked for both the requested
// and the resolved name, stopping at the first number for which neither exists.
func ReferenceNames(ctx context.Context, store Store, name string, caps *Capabilities) ([]string, error) {
	name = WithExt(name)
	actual := name
	if caps != nil {
		var err error
		actual, err = ResolveOldReference(ctx, store, name, nameToken(caps.Browser), caps.MajorVersion())
		if err != nil {
			return nil, err
		}
	}

	var names []string
	ok, err := store.Exists(ctx, actual)
	if err != nil {
		return nil, err
	}
	if ok {
		names = append(names, actual)
	}

	for n := 1; n < maxAlternatives; n++ {
		found := false
		for i, candidate := range []string{Alternative(name, n), Alternative(actual, n)} {
			if i == 1 && actual == name {
				break
			}
			ok, err := store.Exists(ctx, candidate)
			if err != nil {
				return nil, err
			}
			if ok {
				names = append(names, candidate)
				found = true
			}
		}
		if !found {
			break
		}
	}
	return names, nil
}
