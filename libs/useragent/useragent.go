package useragent

import (
	"strings"

	"github.com/mssola/user_agent"
)

var (
	checks = [][]string{
		{"iphone", "ios"},
		{"ipad", "ios"},
		{"android", "android"},
		{"windows", "windows"},
		{"mac os x", "osx"},
		{"linux", "linux"},
	}
)

// ParsePlatform returns the payer's platform family, empty when unknown
func ParsePlatform(ua string) string {
	if ua == "" {
		return ""
	}
	parsed := user_agent.New(ua)
	if parsed == nil {
		return ""
	}
	os := strings.ToLower(parsed.OS())
	for _, check := range checks {
		if strings.Contains(os, check[0]) {
			return check[1]
		}
	}
	return ""
}

// IsMobile reports whether ua belongs to a handset browser
func IsMobile(ua string) bool {
	if ua == "" {
		return false
	}
	return user_agent.New(ua).Mobile()
}
