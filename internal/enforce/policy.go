// Package enforce decides when device-wide app blocking is active and
// drives the enforcement bridge accordingly.
package enforce

import "strings"

// essentialApps are exact package identifiers that must stay reachable
// while blocking is active: telephony, emergency dialing, settings, and the
// system UI itself.
var essentialApps = []string{
	"com.android.phone",
	"com.android.server.telecom",
	"com.android.dialer",
	"com.google.android.dialer",
	"com.android.emergency",
	"com.android.settings",
	"com.android.systemui",
}

// essentialPrefixes are OS namespace prefixes exempt from blocking.
var essentialPrefixes = []string{
	"android.",
	"com.android.inputmethod",
	"com.android.providers.",
}

// Policy is the deny-by-default blocking decision: enumerate the exceptions,
// block everything else while a window is active.
type Policy struct {
	self     string
	apps     map[string]struct{}
	prefixes []string
}

// NewPolicy builds the decision table. selfPackage is the host app's own
// identifier (never blocked). extraApps/extraPrefixes come from config and
// are merged with the built-in essential lists.
func NewPolicy(selfPackage string, extraApps, extraPrefixes []string) *Policy {
	apps := make(map[string]struct{}, len(essentialApps)+len(extraApps))
	for _, a := range essentialApps {
		apps[a] = struct{}{}
	}
	for _, a := range extraApps {
		if a = strings.TrimSpace(a); a != "" {
			apps[a] = struct{}{}
		}
	}
	prefixes := append([]string(nil), essentialPrefixes...)
	for _, p := range extraPrefixes {
		if p = strings.TrimSpace(p); p != "" {
			prefixes = append(prefixes, p)
		}
	}
	return &Policy{self: strings.TrimSpace(selfPackage), apps: apps, prefixes: prefixes}
}

// ShouldBlock reports whether the given package is blocked while a window is
// active. Unknown identifiers are blocked; only enumerated exceptions pass.
func (p *Policy) ShouldBlock(packageName string) bool {
	pkg := strings.TrimSpace(packageName)
	if pkg == "" {
		return false
	}
	if p.self != "" && pkg == p.self {
		return false
	}
	if _, ok := p.apps[pkg]; ok {
		return false
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(pkg, prefix) {
			return false
		}
	}
	return true
}
