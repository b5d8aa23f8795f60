package cml

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		kind   statusKind
		detail string
	}{
		{"bare success", "success", statusSuccess, ""},
		{"success with detail", "success\nsessid=abc", statusSuccess, "sessid=abc"},
		{"failure", "failure\nwrong password", statusFailure, "wrong password"},
		{"progress", "progress\n10 of 200", statusProgress, "10 of 200"},
		{"progress multiline", "progress\nstep 1\nstep 2", statusProgress, "step 1\nstep 2"},
		{"crlf and padding", "  success\r\n done \r\n", statusSuccess, "done"},
		{"unknown", "<html>502</html>", statusUnknown, "<html>502</html>"},
		{"empty", "", statusUnknown, ""},
		{"prefix must lead", "warning: success", statusUnknown, "warning: success"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := parseStatus(tt.body)
			assert.Equal(t, tt.kind, st.kind)
			assert.Equal(t, tt.detail, st.detail)
		})
	}
}

func TestStatusRateLimited(t *testing.T) {
	assert.True(t, parseStatus("failure\nToo many requests").rateLimited())
	assert.True(t, parseStatus("progress\nToo many requests per hour").rateLimited())
	assert.False(t, parseStatus("failure\nbad data").rateLimited())
	assert.False(t, parseStatus("success").rateLimited())
}
