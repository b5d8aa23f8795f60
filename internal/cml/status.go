package cml

import (
	"regexp"
	"strings"
)

// The endpoint answers with loose text status lines. The parser keeps that
// contract out of the handshake logic.

type statusKind int

const (
	statusUnknown statusKind = iota
	statusSuccess
	statusFailure
	statusProgress
)

var reStatus = regexp.MustCompile(`(?s)^(success|failure|progress)\s*(.*)$`)

type statusLine struct {
	kind   statusKind
	detail string
}

func parseStatus(body string) statusLine {
	m := reStatus.FindStringSubmatch(strings.TrimSpace(body))
	if m == nil {
		return statusLine{kind: statusUnknown, detail: strings.TrimSpace(body)}
	}
	st := statusLine{detail: strings.TrimSpace(m[2])}
	switch m[1] {
	case "success":
		st.kind = statusSuccess
	case "failure":
		st.kind = statusFailure
	case "progress":
		st.kind = statusProgress
	}
	return st
}

// rateLimited reports the server-side throttle marker, treated like
// progress regardless of the reported status.
func (s statusLine) rateLimited() bool {
	return strings.Contains(s.detail, "Too many requests")
}
