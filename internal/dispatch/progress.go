package dispatch

import (
	"github.com/jwalitptl/broadcast-engine/internal/model"
)

// Progress accumulates the outcome counts of one broadcast run. It is
// not safe for concurrent use: a run is owned by exactly one runner
// goroutine and sends are strictly sequential.
type Progress struct {
	sent   int
	failed int
	total  int
}

func NewProgress(total int) *Progress {
	return &Progress{total: total}
}

// ResumeProgress seeds the counters from a previously paused run so
// FractionComplete reflects the whole broadcast, not just the tail.
func ResumeProgress(total, sent, failed int) *Progress {
	return &Progress{total: total, sent: sent, failed: failed}
}

func (p *Progress) MarkSent()   { p.sent++ }
func (p *Progress) MarkFailed() { p.failed++ }

func (p *Progress) Sent() int   { return p.sent }
func (p *Progress) Failed() int { return p.failed }
func (p *Progress) Total() int  { return p.total }

// Attempted is the number of recipients tried so far, and doubles as
// the resume offset into the recipient list.
func (p *Progress) Attempted() int {
	return p.sent + p.failed
}

// FractionComplete is (sent+failed)/total, 0 for an empty broadcast.
func (p *Progress) FractionComplete() float64 {
	if p.total == 0 {
		return 0
	}
	return float64(p.Attempted()) / float64(p.total)
}

func (p *Progress) Stats() model.BroadcastStats {
	return model.BroadcastStats{
		Sent:   p.sent,
		Failed: p.failed,
		Total:  p.total,
	}
}
