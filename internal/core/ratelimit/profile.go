package ratelimit

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Profile is a named admission policy. The caller picks the profile per
// endpoint; limiters never infer it.
type Profile struct {
	Name        string
	MaxRequests int
	Window      time.Duration
}

// Profile names.
const (
	PublicRead    = "public_read"
	AuthWrite     = "auth_write"
	WebhookIngest = "webhook_ingest"
	Search        = "search"
)

// DefaultProfiles holds the built-in thresholds.
var DefaultProfiles = map[string]Profile{
	PublicRead:    {Name: PublicRead, MaxRequests: 120, Window: time.Minute},
	AuthWrite:     {Name: AuthWrite, MaxRequests: 30, Window: time.Minute},
	WebhookIngest: {Name: WebhookIngest, MaxRequests: 60, Window: time.Minute},
	Search:        {Name: Search, MaxRequests: 20, Window: time.Minute},
}

// Validate reports whether the profile can be enforced.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("rate limit profile name is required")
	}
	if p.MaxRequests <= 0 {
		return fmt.Errorf("rate limit profile %s: max requests must be positive", p.Name)
	}
	if p.Window <= 0 {
		return fmt.Errorf("rate limit profile %s: window must be positive", p.Name)
	}
	return nil
}

// ProfileSet is the fixed set of profiles known to a deployment.
type ProfileSet struct {
	profiles map[string]Profile
}

// NewProfileSet starts from DefaultProfiles and applies overrides for known
// names. Overrides naming an unknown profile are rejected.
func NewProfileSet(overrides map[string]Profile) (*ProfileSet, error) {
	set := &ProfileSet{profiles: make(map[string]Profile, len(DefaultProfiles))}
	for name, p := range DefaultProfiles {
		set.profiles[name] = p
	}

	for name, override := range overrides {
		name = strings.ToLower(strings.TrimSpace(name))
		base, ok := set.profiles[name]
		if !ok {
			return nil, fmt.Errorf("unknown rate limit profile: %s", name)
		}
		if override.MaxRequests > 0 {
			base.MaxRequests = override.MaxRequests
		}
		if override.Window > 0 {
			base.Window = override.Window
		}
		if err := base.Validate(); err != nil {
			return nil, err
		}
		set.profiles[name] = base
	}

	return set, nil
}

// Get returns the named profile. Unknown names fall back to PublicRead so a
// misconfigured route is still gated.
func (s *ProfileSet) Get(name string) Profile {
	if s != nil {
		if p, ok := s.profiles[name]; ok {
			return p
		}
		if p, ok := s.profiles[PublicRead]; ok {
			return p
		}
	}
	if p, ok := DefaultProfiles[name]; ok {
		return p
	}
	return DefaultProfiles[PublicRead]
}

// All returns the profiles sorted by name.
func (s *ProfileSet) All() []Profile {
	if s == nil {
		return nil
	}
	out := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
