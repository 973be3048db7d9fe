package bootstrap

import "strings"

// ServiceProbe is one status check of a service. It is built fresh for each
// check and never persisted.
type ServiceProbe struct {
	Service  string
	Expected string
	Observed string
}

// Matches reports whether the observed status contains the expected marker.
func (p ServiceProbe) Matches() bool {
	return p.Expected != "" && strings.Contains(p.Observed, p.Expected)
}

// Line is the human-readable outcome of the probe.
func (p ServiceProbe) Line() string {
	if p.Matches() {
		return "SUCCESS: " + p.Service + " is " + p.Expected
	}
	observed := p.Observed
	if observed == "" {
		observed = "no status reported"
	}
	return "FAILURE: " + p.Service + " is not " + p.Expected + " (" + observed + ")"
}
