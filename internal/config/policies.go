package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

// StorageErrorPolicy decides what the admission gate does when its backing
// store cannot be reached.
type StorageErrorPolicy string

const (
	// OnStorageErrorAllow admits the request and logs a degraded-security event.
	OnStorageErrorAllow StorageErrorPolicy = "allow"

	// OnStorageErrorDeny rejects the request with 503.
	OnStorageErrorDeny StorageErrorPolicy = "deny"
)

// Endpoint names used as rate limit keys and policy lookups.
const (
	EndpointRegister        = "register"
	EndpointLogin           = "login"
	EndpointCredentialReset = "credential_reset"
	EndpointAccountDelete   = "account_delete"
	EndpointAdmin           = "admin"

	// EndpointAccount is the pseudo-endpoint governing account-namespace block checks.
	EndpointAccount = "account"
)

// EndpointPolicy declares the admission limits of one endpoint.
type EndpointPolicy struct {
	MaxRequests         int
	Window              time.Duration
	OnStorageError      StorageErrorPolicy
	AutoBlockMultiplier int
	AutoBlockDuration   time.Duration
}

// AutoBlockThreshold is the count above which the identity is auto-blocked.
func (p EndpointPolicy) AutoBlockThreshold() int {
	return p.MaxRequests * p.AutoBlockMultiplier
}

func (p EndpointPolicy) validate(name string) error {
	if p.MaxRequests <= 0 {
		return fmt.Errorf("policy %q: max_requests must be positive, got %d", name, p.MaxRequests)
	}
	if p.Window <= 0 {
		return fmt.Errorf("policy %q: window must be positive, got %s", name, p.Window)
	}
	if p.OnStorageError != OnStorageErrorAllow && p.OnStorageError != OnStorageErrorDeny {
		return fmt.Errorf("policy %q: on_storage_error must be 'allow' or 'deny', got '%s'", name, p.OnStorageError)
	}
	if p.AutoBlockMultiplier < 1 {
		return fmt.Errorf("policy %q: auto_block_multiplier must be at least 1, got %d", name, p.AutoBlockMultiplier)
	}
	if p.AutoBlockDuration <= 0 {
		return fmt.Errorf("policy %q: auto_block duration must be positive, got %s", name, p.AutoBlockDuration)
	}
	return nil
}

// maxEndpointNameLength matches the counter's endpoint column.
const maxEndpointNameLength = 64

// validateEndpointName keeps names usable as storage key segments.
func validateEndpointName(name string) error {
	if name == "" || len(name) > maxEndpointNameLength {
		return fmt.Errorf("policy %q: endpoint name must be 1-%d characters", name, maxEndpointNameLength)
	}
	if strings.ContainsAny(name, ": \t\n") {
		return fmt.Errorf("policy %q: endpoint name must not contain colons or whitespace", name)
	}
	return nil
}

// PolicySet maps endpoint names to policies. Unknown endpoints get Default.
// A PolicySet is built once at startup and read-only afterwards.
type PolicySet struct {
	Default   EndpointPolicy
	Endpoints map[string]EndpointPolicy
}

// DefaultPolicies returns the built-in endpoint policies derived from defaults.
// Credential reset, account deletion and the admin console fail closed.
func DefaultPolicies(defaults EndpointPolicy) *PolicySet {
	with := func(maxRequests int, window time.Duration, onErr StorageErrorPolicy) EndpointPolicy {
		p := defaults
		p.MaxRequests = maxRequests
		p.Window = window
		p.OnStorageError = onErr
		return p
	}

	return &PolicySet{
		Default: defaults,
		Endpoints: map[string]EndpointPolicy{
			EndpointRegister:        with(5, 15*time.Minute, OnStorageErrorAllow),
			EndpointLogin:           with(10, 60*time.Second, OnStorageErrorAllow),
			EndpointCredentialReset: with(5, 15*time.Minute, OnStorageErrorDeny),
			EndpointAccountDelete:   with(3, 60*time.Minute, OnStorageErrorDeny),
			EndpointAdmin:           with(60, 60*time.Second, OnStorageErrorDeny),
			EndpointAccount:         defaults,
		},
	}
}

// PolicyFor returns the policy of endpoint, falling back to Default.
func (s *PolicySet) PolicyFor(endpoint string) EndpointPolicy {
	if p, ok := s.Endpoints[endpoint]; ok {
		return p
	}
	return s.Default
}

// Validate checks every policy in the set.
func (s *PolicySet) Validate() error {
	if s == nil {
		return fmt.Errorf("admission policies are not configured")
	}
	if err := s.Default.validate("default"); err != nil {
		return err
	}
	names := make([]string, 0, len(s.Endpoints))
	for name := range s.Endpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := validateEndpointName(name); err != nil {
			return err
		}
		if err := s.Endpoints[name].validate(name); err != nil {
			return err
		}
	}
	return nil
}

// MaxWindow returns the longest window across all policies.
func (s *PolicySet) MaxWindow() time.Duration {
	longest := s.Default.Window
	for _, p := range s.Endpoints {
		if p.Window > longest {
			longest = p.Window
		}
	}
	return longest
}

// policyFile is the on-disk YAML shape. Omitted fields inherit from the
// built-in policy of the same endpoint (or the default policy).
//
//	defaults:
//	  max_requests: 10
//	  window_ms: 60000
//	endpoints:
//	  login:
//	    max_requests: 20
//	    on_storage_error: deny
type policyFile struct {
	Defaults  *policyEntry           `yaml:"defaults"`
	Endpoints map[string]policyEntry `yaml:"endpoints"`
}

type policyEntry struct {
	MaxRequests         *int    `yaml:"max_requests"`
	WindowMS            *int64  `yaml:"window_ms"`
	OnStorageError      *string `yaml:"on_storage_error"`
	AutoBlockMultiplier *int    `yaml:"auto_block_multiplier"`
	AutoBlockMinutes    *int    `yaml:"auto_block_minutes"`
}

func (e policyEntry) apply(p EndpointPolicy) EndpointPolicy {
	if e.MaxRequests != nil {
		p.MaxRequests = *e.MaxRequests
	}
	if e.WindowMS != nil {
		p.Window = time.Duration(*e.WindowMS) * time.Millisecond
	}
	if e.OnStorageError != nil {
		p.OnStorageError = StorageErrorPolicy(*e.OnStorageError)
	}
	if e.AutoBlockMultiplier != nil {
		p.AutoBlockMultiplier = *e.AutoBlockMultiplier
	}
	if e.AutoBlockMinutes != nil {
		p.AutoBlockDuration = time.Duration(*e.AutoBlockMinutes) * time.Minute
	}
	return p
}

// LoadFile overlays policies from a YAML file onto the set.
func (s *PolicySet) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return s.Overlay(data)
}

// Overlay applies YAML policy data to the set. Unknown keys are rejected.
func (s *PolicySet) Overlay(data []byte) error {
	var f policyFile
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return fmt.Errorf("invalid policy YAML: %w", err)
	}

	if f.Defaults != nil {
		s.Default = f.Defaults.apply(s.Default)
	}
	if s.Endpoints == nil {
		s.Endpoints = make(map[string]EndpointPolicy)
	}
	for name, entry := range f.Endpoints {
		base, ok := s.Endpoints[name]
		if !ok {
			base = s.Default
		}
		s.Endpoints[name] = entry.apply(base)
	}
	return nil
}
