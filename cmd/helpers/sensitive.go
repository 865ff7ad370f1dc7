package helpers

import "github.com/stephnangue/sessionpipe/helper"

// SensitiveFields are response keys whose values are never printed in full.
var SensitiveFields = []string{"access_token", "refresh_token", "password", "token"}

// MaskValue is the default mask used for sensitive fields
const MaskValue = "***********"

// MaskFields masks sensitive values of a response. Credentials keep their
// first and last characters so they can be told apart.
func MaskFields(sensitiveFields []string, data map[string]any) map[string]any {
	sensitive := make(map[string]bool)
	for _, f := range sensitiveFields {
		sensitive[f] = true
	}

	masked := make(map[string]any, len(data))
	for k, v := range data {
		if !sensitive[k] {
			masked[k] = v
			continue
		}
		if s, ok := v.(string); ok {
			masked[k] = helper.MaskToken(s)
		} else {
			masked[k] = MaskValue
		}
	}
	return masked
}
