package policy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecision_Allowed(t *testing.T) {
	t.Parallel()

	allow := &Decision{}
	assert.True(t, allow.Allowed())
	assert.Nil(t, allow.Codes())

	deny := &Decision{Violations: []Violation{
		{Code: "reserved_username", Message: "this username is reserved"},
		{Code: "email_domain_banned", Message: "email domain not allowed", Field: "email"},
	}}
	assert.False(t, deny.Allowed())
	assert.Equal(t, []string{"reserved_username", "email_domain_banned"}, deny.Codes())
}

// Test: the output wire format is additive; unknown fields are ignored and
// an absent violations list is an allow
func TestDecision_WireDecoding(t *testing.T) {
	t.Parallel()

	var withExtras Decision
	require.NoError(t, json.Unmarshal([]byte(
		`{"violations":[{"code":"x","msg":"y","redirect_uri":"https://x"}],"trace":["a"]}`,
	), &withExtras))
	require.Len(t, withExtras.Violations, 1)
	assert.Equal(t, "x", withExtras.Violations[0].Code)
	assert.Equal(t, "y", withExtras.Violations[0].Message)

	var empty Decision
	require.NoError(t, json.Unmarshal([]byte(`{}`), &empty))
	assert.True(t, empty.Allowed())
}
