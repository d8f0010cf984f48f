// Package masking redacts credentials and customer contact details before
// they reach the audit trail.
package masking

import "strings"

const mask = "****"

type rule func(string) string

// rules maps lower-cased metadata keys to their redaction.
var rules = map[string]rule{
	"api_key": Secret,
	"token":   Secret,
	"secret":  Secret,
	"gstin":   GSTIN,
	"phone":   Phone,
	"email":   Email,
}

// Metadata returns a copy of an audit payload with known sensitive keys
// redacted. Nested maps are walked with the same rules.
func Metadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = field(strings.ToLower(key), value)
	}
	return out
}

func field(key string, value any) any {
	switch v := value.(type) {
	case map[string]any:
		if _, secret := rules[key]; secret {
			return redactAll(v)
		}
		return Metadata(v)
	case string:
		if r, ok := rules[key]; ok {
			return r(v)
		}
	}
	return value
}

// redactAll masks every string under a key that is itself sensitive.
func redactAll(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for key, value := range in {
		switch v := value.(type) {
		case string:
			out[key] = Secret(v)
		case map[string]any:
			out[key] = redactAll(v)
		default:
			out[key] = value
		}
	}
	return out
}

// Secret keeps the key family prefix (bb_live_) and the last four characters.
func Secret(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	prefix, body := value, ""
	if i := strings.LastIndexByte(value, '_'); i >= 0 && i < len(value)-1 {
		prefix, body = value[:i+1], value[i+1:]
	} else {
		prefix, body = "", value
	}
	if len(body) <= 4 {
		return prefix + mask
	}
	return prefix + mask + body[len(body)-4:]
}

// GSTIN keeps the two digit state code and the trailing check characters.
func GSTIN(value string) string {
	value = strings.ToUpper(strings.TrimSpace(value))
	if len(value) < 6 {
		return keepTail(value, 0)
	}
	return value[:2] + mask + value[len(value)-3:]
}

// Phone keeps the last four digits.
func Phone(value string) string {
	return keepTail(strings.TrimSpace(value), 4)
}

// Email keeps the first character of the mailbox and the domain.
func Email(value string) string {
	value = strings.TrimSpace(value)
	at := strings.LastIndexByte(value, '@')
	if at <= 0 {
		return keepTail(value, 0)
	}
	return value[:1] + mask + value[at:]
}

func keepTail(value string, n int) string {
	if value == "" {
		return ""
	}
	if len(value) <= n {
		return mask
	}
	return mask + value[len(value)-n:]
}
