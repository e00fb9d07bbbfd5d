package runbook

import (
	"fmt"
	"sort"
	"strings"
)

// AuthorizationResult is the outcome of Authorize. When Denied, Reason
// is a human-readable stderr-style message naming the operation, the
// token subject, and every failing claim.
type AuthorizationResult struct {
	Allowed bool
	Reason  string
}

// Authorize checks whether tok satisfies every claim in required. A nil
// or empty required set passes unconditionally (open access). Held
// claim values on the token are intersected against the allowed values;
// the denial reason lists every unsatisfied claim, ordered by sorted
// claim name so the message is deterministic.
func Authorize(tok *TokenContext, required ClaimSet, operation string) AuthorizationResult {
	if len(required) == 0 {
		return AuthorizationResult{Allowed: true}
	}

	names := make([]string, 0, len(required))
	for name := range required {
		names = append(names, name)
	}
	sort.Strings(names)

	var missing []string
	for _, claimName := range names {
		allowed := required[claimName]
		held, present := tok.Claims[claimName]
		if !present || len(held) == 0 {
			missing = append(missing, fmt.Sprintf("%s (not present)", claimName))
			continue
		}
		if !intersects(held, allowed) {
			missing = append(missing, fmt.Sprintf("%s=%s (required: %s)",
				claimName, strings.Join(held, ", "), strings.Join(allowed, ", ")))
		}
	}

	if len(missing) == 0 {
		return AuthorizationResult{Allowed: true}
	}

	reason := fmt.Sprintf("RBAC check failed for %s. Missing or invalid claims: %s, user %s",
		operation, strings.Join(missing, ", "), tok.Subject)
	return AuthorizationResult{Allowed: false, Reason: reason}
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[v] = struct{}{}
	}
	for _, v := range a {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
}
