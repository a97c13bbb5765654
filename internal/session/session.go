// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

// Package session identifies the caller of a plugin method and decides what
// it may access.
package session

import (
	"github.com/oklog/ulid/v2"
)

// Session is a caller identity with its access list. A nil *Session has no
// identity and is denied everything.
type Session struct {
	id       string
	username string
	acl      *ACL
}

// New creates a session for username with a fresh ULID. acl may be nil, in
// which case every access check is denied.
func New(username string, acl *ACL) *Session {
	return &Session{
		id:       ulid.Make().String(),
		username: username,
		acl:      acl,
	}
}

// ID returns the session ID.
func (s *Session) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Username returns the user the session belongs to.
func (s *Session) Username() string {
	if s == nil {
		return ""
	}
	return s.username
}

// Access reports whether the session may perform perm on object.method in
// scope.
func (s *Session) Access(scope, object, method, perm string) bool {
	if s == nil {
		return false
	}
	return s.acl.Check(s.username, Key(scope, object, method, perm))
}
