package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecret(t *testing.T) {
	assert.Equal(t, "bb_live_****3456", Secret("bb_live_abcdef123456"))
	assert.Equal(t, "bb_live_****", Secret("bb_live_abc"))
	assert.Equal(t, "****wxyz", Secret("rawsecretwxyz"))
	assert.Equal(t, "", Secret("  "))
}

func TestContactDetails(t *testing.T) {
	assert.Equal(t, "27****1ZV", GSTIN("27aapfu0939f1zv"))
	assert.Equal(t, "****", GSTIN("27A"))
	assert.Equal(t, "****3210", Phone("+91 98765 43210"))
	assert.Equal(t, "****", Phone("12"))
	assert.Equal(t, "r****@example.in", Email("ravi@example.in"))
	assert.Equal(t, "****", Email("not-an-email"))
}

func TestMetadata(t *testing.T) {
	out := Metadata(map[string]any{
		"Token":  "bb_live_abcdef123456",
		"number": "INV-0001",
		" ":      "dropped",
		"customer": map[string]any{
			"phone": "9876543210",
			"name":  "Patil Stores",
		},
		"secret": map[string]any{"value": "hunter2hunter2"},
		"count":  3,
	})
	assert.Equal(t, "bb_live_****3456", out["Token"])
	assert.Equal(t, "INV-0001", out["number"])
	assert.NotContains(t, out, " ")
	assert.Equal(t, map[string]any{"phone": "****3210", "name": "Patil Stores"}, out["customer"])
	assert.Equal(t, map[string]any{"value": "****ter2"}, out["secret"])
	assert.Equal(t, 3, out["count"])
}
