package domain

import (
	"sort"
	"strings"
)

// Name is a ledger account name: 1-12 characters from [a-z1-5.], not ending in a dot.
type Name string

func (n Name) String() string {
	return string(n)
}

// Validate checks the account name alphabet and length.
func (n Name) Validate() error {
	s := string(n)
	if len(s) == 0 || len(s) > 12 {
		return Validationf("invalid_account", "invalid account name %q", s)
	}
	if strings.HasSuffix(s, ".") {
		return Validationf("invalid_account", "invalid account name %q", s)
	}
	for _, c := range s {
		if !(c >= 'a' && c <= 'z') && !(c >= '1' && c <= '5') && c != '.' {
			return Validationf("invalid_account", "invalid account name %q", s)
		}
	}
	return nil
}

// Authorization is the capability proof presented with a call: the set of
// account names whose signatures were verified upstream.
type Authorization struct {
	signers map[Name]struct{}
}

// NewAuthorization proves the given identities.
func NewAuthorization(signers ...Name) Authorization {
	a := Authorization{signers: make(map[Name]struct{}, len(signers))}
	for _, s := range signers {
		if s != "" {
			a.signers[s] = struct{}{}
		}
	}
	return a
}

// Has reports whether name is among the proven identities.
func (a Authorization) Has(name Name) bool {
	_, ok := a.signers[name]
	return ok
}

// Signers lists the proven identities in a stable order.
func (a Authorization) Signers() []Name {
	out := make([]Name, 0, len(a.signers))
	for s := range a.signers {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Require fails unless one of the accepted identities is proven.
func (a Authorization) Require(accepted ...Name) error {
	for _, name := range accepted {
		if a.Has(name) {
			return nil
		}
	}
	names := make([]string, len(accepted))
	for i, n := range accepted {
		names[i] = string(n)
	}
	return Unauthorizedf(ErrMissingAuthority.Code, "missing required authority of %s", strings.Join(names, " or "))
}
