package useragent

import (
	"testing"

	should "github.com/stretchr/testify/assert"
)

func TestParsePlatform(t *testing.T) {
	type testCase struct {
		name   string
		ua     string
		exp    string
		mobile bool
	}

	tests := []testCase{
		{name: "empty"},
		{
			name:   "android",
			ua:     "Mozilla/5.0 (Linux; Android 12; SM-A125F) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Mobile Safari/537.36",
			exp:    "android",
			mobile: true,
		},
		{
			name:   "iphone",
			ua:     "Mozilla/5.0 (iPhone; CPU iPhone OS 16_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.5 Mobile/15E148 Safari/604.1",
			exp:    "ios",
			mobile: true,
		},
		{
			name: "windows",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36",
			exp:  "windows",
		},
		{
			name: "unknown",
			ua:   "curl/8.1.2",
		},
	}

	for i := range tests {
		tc := tests[i]

		t.Run(tc.name, func(t *testing.T) {
			should.Equal(t, tc.exp, ParsePlatform(tc.ua))
			should.Equal(t, tc.mobile, IsMobile(tc.ua))
		})
	}
}
