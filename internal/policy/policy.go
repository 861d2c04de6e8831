// File: internal/policy/policy.go
// Description: Permission policy checks layered over the static permission
// table, plus a simple in-process PermissionProvider for hosts that manage
// grants directly.

package policy

import (
	"context"
	"sync"

	"github.com/kestrelhq/kestrel/api/schemas"
)

// Prohibited returns the subset of perms that may never be used autonomously.
func Prohibited(perms []schemas.PermissionType) []schemas.PermissionType {
	var out []schemas.PermissionType
	for _, p := range perms {
		if p.ProhibitedForAutonomous() {
			out = append(out, p)
		}
	}
	return out
}

// NeedingJustification returns the subset of perms that require a special
// justification entry in the audit trail.
func NeedingJustification(perms []schemas.PermissionType) []schemas.PermissionType {
	var out []schemas.PermissionType
	for _, p := range perms {
		if p.RequiresSpecialJustification() {
			out = append(out, p)
		}
	}
	return out
}

// NotGranted returns the subset of perms the provider does not report as
// granted. Unknown status counts as not granted.
func NotGranted(ctx context.Context, provider schemas.PermissionProvider, perms []schemas.PermissionType) []schemas.PermissionType {
	var out []schemas.PermissionType
	for _, p := range perms {
		if provider.PermissionStatus(ctx, p) != schemas.PermissionGranted {
			out = append(out, p)
		}
	}
	return out
}

// Dedupe removes duplicate permissions preserving first-seen order.
func Dedupe(perms []schemas.PermissionType) []schemas.PermissionType {
	seen := make(map[schemas.PermissionType]struct{}, len(perms))
	out := make([]schemas.PermissionType, 0, len(perms))
	for _, p := range perms {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// StaticProvider is a PermissionProvider backed by an in-process grant map.
// Hosts embedding the pipeline without a platform permission subsystem manage
// grants through it; tests use it as a controllable fake.
type StaticProvider struct {
	mu     sync.RWMutex
	status map[schemas.PermissionType]schemas.PermissionStatus
}

// NewStaticProvider creates a provider with every permission unknown.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{status: make(map[schemas.PermissionType]schemas.PermissionStatus)}
}

// Grant marks the permission as granted.
func (s *StaticProvider) Grant(p schemas.PermissionType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[p] = schemas.PermissionGranted
}

// Deny marks the permission as denied.
func (s *StaticProvider) Deny(p schemas.PermissionType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status[p] = schemas.PermissionDenied
}

// PermissionStatus implements schemas.PermissionProvider.
func (s *StaticProvider) PermissionStatus(_ context.Context, p schemas.PermissionType) schemas.PermissionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.status[p]; ok {
		return st
	}
	return schemas.PermissionUnknown
}

var _ schemas.PermissionProvider = (*StaticProvider)(nil)
