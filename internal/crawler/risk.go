package crawler

import "strings"

// riskMarkers maps response-body fragments to the hint reported upstream.
// The Chinese entries cover bilibili's verification interstitials.
var riskMarkers = []struct {
	marker string
	hint   string
}{
	{"captcha", "captcha"},
	{"recaptcha", "captcha"},
	{"验证码", "captcha"},
	{"人机验证", "captcha"},
	{"安全验证", "captcha"},
	{"forbidden", "forbidden"},
	{"access denied", "forbidden"},
}

// DetectRiskHint scans a response body for signs the account or IP tripped
// risk control. It returns a short hint string, or "" for a clean body.
func DetectRiskHint(body string) string {
	s := strings.ToLower(strings.TrimSpace(body))
	if s == "" {
		return ""
	}
	for _, m := range riskMarkers {
		if strings.Contains(s, m.marker) {
			return m.hint
		}
	}
	return ""
}
