package password

import (
	"fmt"
	"strings"
)

// Symbols is the punctuation set accepted by the strength rule. A password
// must contain at least one of these characters.
const Symbols = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// PolicyConfig defines a public type used by brewauth APIs.
//
// PolicyConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PolicyConfig struct {
	MinLength int
	// MaxLength caps the accepted byte length so oversized inputs cannot
	// be used to burn hashing time. Zero disables the cap.
	MaxLength int
}

// PolicyError reports the first strength rule a candidate password violated.
// The Reason is safe to surface to end users verbatim.
type PolicyError struct {
	Reason string
}

func (e *PolicyError) Error() string {
	return e.Reason
}

// Policy defines a public type used by brewauth APIs.
//
// Policy instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Policy struct {
	config PolicyConfig
	hasher *Argon2
}

// NewPolicy describes the newpolicy operation and its observable behavior.
//
// NewPolicy may return an error when input validation, dependency calls, or security checks fail.
// NewPolicy does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func NewPolicy(cfg PolicyConfig, hasher *Argon2) (*Policy, error) {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 8
	}
	if cfg.MaxLength != 0 && cfg.MaxLength < cfg.MinLength {
		return nil, fmt.Errorf("password policy max length %d below min length %d", cfg.MaxLength, cfg.MinLength)
	}
	if hasher == nil {
		return nil, fmt.Errorf("password policy requires a hasher")
	}

	return &Policy{config: cfg, hasher: hasher}, nil
}

// ValidateStrength checks the candidate against the strength rule and
// returns a *PolicyError naming the first violated requirement. Checks run
// in a fixed order so the reported reason is deterministic.
func (p *Policy) ValidateStrength(candidate string) error {
	if len(candidate) < p.config.MinLength {
		return &PolicyError{Reason: fmt.Sprintf("password must be at least %d characters", p.config.MinLength)}
	}
	if p.config.MaxLength > 0 && len(candidate) > p.config.MaxLength {
		return &PolicyError{Reason: fmt.Sprintf("password must be at most %d characters", p.config.MaxLength)}
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range candidate {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(Symbols, r):
			hasSymbol = true
		}
	}

	switch {
	case !hasLower:
		return &PolicyError{Reason: "password must contain a lowercase letter"}
	case !hasUpper:
		return &PolicyError{Reason: "password must contain an uppercase letter"}
	case !hasDigit:
		return &PolicyError{Reason: "password must contain a digit"}
	case !hasSymbol:
		return &PolicyError{Reason: "password must contain a symbol"}
	}

	return nil
}

// IsReused compares the candidate against each stored hash with the same
// verification primitive used for authentication, short-circuiting on the
// first match. Unparseable history entries are skipped rather than failing
// the whole check.
func (p *Policy) IsReused(candidate string, history []string) (bool, error) {
	for _, hash := range history {
		if hash == "" {
			continue
		}
		match, err := p.hasher.Verify(candidate, hash)
		if err != nil {
			continue
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}
