// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package session

import (
	"sort"
	"sync"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Separators split an access key into segments. Object names use '/'.
var separators = []rune{':', '/'}

// compiledGrant holds a pattern and its compiled glob for efficient matching.
type compiledGrant struct {
	pattern string
	glob    glob.Glob
}

// ACL maps users to the access key patterns they are granted.
//
// Access keys have the form scope:object:method:perm, for example
// "ubus:juci/system:info:x". Patterns use gobwas/glob with ':' and '/' as
// segment separators:
//   - '*' matches within one segment: "ubus:juci/*:info:x"
//   - '**' matches across segments: "ubus:juci/**"
//
// ACL is safe for concurrent use. The zero value is ready to use.
type ACL struct {
	grants map[string][]compiledGrant // username -> compiled grants
	mu     sync.RWMutex
}

// NewACL creates an empty ACL.
func NewACL() *ACL {
	return &ACL{
		grants: make(map[string][]compiledGrant),
	}
}

// SetGrants replaces the patterns granted to user. If any pattern is
// invalid nothing changes.
func (a *ACL) SetGrants(user string, patterns []string) error {
	if user == "" {
		return oops.In("session").Code("INVALID_USER").New("username cannot be empty")
	}

	compiled := make([]compiledGrant, len(patterns))
	for i, pattern := range patterns {
		if pattern == "" {
			return oops.In("session").Code("INVALID_GRANT").With("user", user).
				Errorf("grant %d: empty pattern", i)
		}
		g, err := glob.Compile(pattern, separators...)
		if err != nil {
			return oops.In("session").Code("INVALID_GRANT").With("user", user).With("pattern", pattern).
				Wrapf(err, "grant %d", i)
		}
		compiled[i] = compiledGrant{pattern: pattern, glob: g}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.grants == nil {
		a.grants = make(map[string][]compiledGrant)
	}
	a.grants[user] = compiled
	return nil
}

// Load replaces the whole ACL with grants. If any pattern is invalid
// nothing changes.
func (a *ACL) Load(grants map[string][]string) error {
	staged := NewACL()
	for user, patterns := range grants {
		if err := staged.SetGrants(user, patterns); err != nil {
			return err
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.grants = staged.grants
	return nil
}

// RemoveGrants removes every grant of user.
func (a *ACL) RemoveGrants(user string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.grants, user)
}

// Grants returns a copy of the patterns granted to user, nil for unknown
// users.
func (a *ACL) Grants(user string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	grants, ok := a.grants[user]
	if !ok {
		return nil
	}
	patterns := make([]string, len(grants))
	for i, g := range grants {
		patterns[i] = g.pattern
	}
	return patterns
}

// Users returns the sorted names of users with grants.
func (a *ACL) Users() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	users := make([]string, 0, len(a.grants))
	for name := range a.grants {
		users = append(users, name)
	}
	sort.Strings(users)
	return users
}

// Check reports whether user holds a grant matching key. Unknown users and
// empty keys are denied.
func (a *ACL) Check(user, key string) bool {
	if a == nil || key == "" {
		return false
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, grant := range a.grants[user] {
		if grant.glob.Match(key) {
			return true
		}
	}
	return false
}

// Key builds the access key checked for a call.
func Key(scope, object, method, perm string) string {
	return scope + ":" + object + ":" + method + ":" + perm
}
