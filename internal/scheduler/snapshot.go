package scheduler

import (
	"sort"
	"time"
)

// JobStatus is a point-in-time view of one job for status commands.
type JobStatus struct {
	Site          string
	DisplayName   string
	Schedule      string
	Dormant       bool
	DormantReason string
	Running       bool
	LastRun       time.Time
	LastErr       string
	Next          time.Time
}

// Snapshot returns the status of every job, sorted by site id.
func (s *Service) Snapshot() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	now := time.Now().In(s.loc)
	for id, j := range s.jobs {
		st := JobStatus{
			Site:        id,
			DisplayName: j.site.DisplayName(),
			Schedule:    j.site.Schedule(),
			Dormant:     j.dormant,
			Running:     j.state.isRunning(),
		}
		if j.dormant {
			st.DormantReason = j.reason
		} else if s.cfg.Enabled {
			st.Next = j.spec.Next(now)
		}
		j.mu.Lock()
		st.LastRun = j.lastRun
		if j.lastErr != nil {
			st.LastErr = j.lastErr.Error()
		}
		j.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Site < out[k].Site })
	return out
}
