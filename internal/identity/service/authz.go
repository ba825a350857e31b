package service

import (
	"context"
	"sync"
	"time"
)

// DefaultPrivilegedRoles is the staff role set that grants privileged
// access when no explicit configuration is supplied.
var DefaultPrivilegedRoles = []string{"superuser", "admin", "service"}

// AuthzService answers the privileged-access question for a set of roles
// carried in a verified access token.
//
// A role only counts when it is BOTH in the configured privileged set and
// still defined in the directory. The existence check can narrow the
// answer (a deleted role no longer grants) but never widen it, which is
// what makes the result safe to cache briefly.
type AuthzService struct {
	Directory RoleDirectory

	// PrivilegedRoles overrides DefaultPrivilegedRoles when non-empty.
	PrivilegedRoles []string

	// CacheTTL bounds how long a role-existence answer is reused.
	// Zero disables the cache.
	CacheTTL time.Duration

	// Clock is the time source; nil means the wall clock.
	Clock func() time.Time

	mu    sync.Mutex
	cache map[string]existsEntry
}

type existsEntry struct {
	exists  bool
	checked time.Time
}

func (s *AuthzService) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *AuthzService) privileged() []string {
	if len(s.PrivilegedRoles) > 0 {
		return s.PrivilegedRoles
	}
	return DefaultPrivilegedRoles
}

// IsPrivileged reports whether any of the given roles grants privileged
// access. Directory failures propagate so the caller fails closed rather
// than silently denying or granting.
func (s *AuthzService) IsPrivileged(ctx context.Context, roles []string) (bool, error) {
	if len(roles) == 0 {
		return false, nil
	}

	privileged := make(map[string]struct{}, len(s.privileged()))
	for _, name := range s.privileged() {
		privileged[name] = struct{}{}
	}

	for _, role := range roles {
		if _, ok := privileged[role]; !ok {
			continue
		}

		exists, err := s.roleExists(ctx, role)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

func (s *AuthzService) roleExists(ctx context.Context, name string) (bool, error) {
	if s.CacheTTL > 0 {
		s.mu.Lock()
		entry, ok := s.cache[name]
		s.mu.Unlock()
		if ok && s.now().Sub(entry.checked) < s.CacheTTL {
			return entry.exists, nil
		}
	}

	exists, err := s.Directory.RoleExists(ctx, name)
	if err != nil {
		return false, err
	}

	if s.CacheTTL > 0 {
		s.mu.Lock()
		if s.cache == nil {
			s.cache = make(map[string]existsEntry)
		}
		s.cache[name] = existsEntry{exists: exists, checked: s.now()}
		s.mu.Unlock()
	}

	return exists, nil
}
