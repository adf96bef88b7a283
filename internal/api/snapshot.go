package api

import "simengine/internal/session"

// buildListSnapshot renders every known session's observable state, for
// listSessions.
func buildListSnapshot(sessions []*session.Session) []session.Snapshot {
	out := make([]session.Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}
