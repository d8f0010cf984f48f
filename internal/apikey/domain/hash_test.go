package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesHash(t *testing.T) {
	stored := HashAPIKey("bb_live_abc_secret")
	assert.Len(t, stored, 64)
	assert.True(t, MatchesHash("bb_live_abc_secret", stored))
	assert.False(t, MatchesHash("bb_live_abc_secreT", stored))
	assert.False(t, MatchesHash("bb_live_abc_secret", "not-hex"))
	assert.False(t, MatchesHash("bb_live_abc_secret", strings.ToUpper(stored[:10])))
}
