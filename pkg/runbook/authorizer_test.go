package runbook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthorize_NilRequired(t *testing.T) {
	tok := &TokenContext{Subject: "alice"}
	result := Authorize(tok, nil, "execute")
	require.True(t, result.Allowed)
}

func TestAuthorize_Satisfied(t *testing.T) {
	tok := &TokenContext{
		Subject: "alice",
		Claims:  map[string][]string{"team": {"sre"}},
	}
	required := ClaimSet{"team": {"sre", "platform"}}

	result := Authorize(tok, required, "execute")
	require.True(t, result.Allowed)
	require.Empty(t, result.Reason)
}

func TestAuthorize_MissingClaim(t *testing.T) {
	tok := &TokenContext{Subject: "bob", Claims: map[string][]string{}}
	required := ClaimSet{"team": {"sre"}}

	result := Authorize(tok, required, "execute")
	require.False(t, result.Allowed)
	require.Contains(t, result.Reason, "execute")
	require.Contains(t, result.Reason, "team (not present)")
	require.Contains(t, result.Reason, "bob")
}

func TestAuthorize_ClaimValueNotAllowed(t *testing.T) {
	tok := &TokenContext{
		Subject: "carol",
		Claims:  map[string][]string{"team": {"eng"}},
	}
	required := ClaimSet{"team": {"sre", "platform"}}

	result := Authorize(tok, required, "validate")
	require.False(t, result.Allowed)
	require.Contains(t, result.Reason, "team=eng")
}

func TestAuthorize_MultipleClaimsDeterministicOrder(t *testing.T) {
	tok := &TokenContext{Subject: "dave", Claims: map[string][]string{}}
	required := ClaimSet{
		"zeta":  {"z"},
		"alpha": {"a"},
	}

	result := Authorize(tok, required, "execute")
	require.False(t, result.Allowed)
	alphaIdx := indexOf(result.Reason, "alpha")
	zetaIdx := indexOf(result.Reason, "zeta")
	require.Less(t, alphaIdx, zetaIdx)
}

func TestIntersects(t *testing.T) {
	require.True(t, intersects([]string{"a", "b"}, []string{"b", "c"}))
	require.False(t, intersects([]string{"a"}, []string{"b"}))
	require.False(t, intersects(nil, []string{"b"}))
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
