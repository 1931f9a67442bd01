package connectors

import "testing"

func TestQuoteIdent(t *testing.T) {
	tests := []struct {
		name  string
		ident string
		want  string
		ok    bool
	}{
		{"Simple", "issues", `"issues"`, true},
		{"Underscore", "civic_os_users", `"civic_os_users"`, true},
		{"LeadingDigit", "1issues", "", false},
		{"Quote", `x";drop table y;--`, "", false},
		{"Empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := quoteIdent(tt.ident)
			if (err == nil) != tt.ok || got != tt.want {
				t.Errorf("quoteIdent(%q) = %q, %v; want %q, ok=%v", tt.ident, got, err, tt.want, tt.ok)
			}
		})
	}
}
