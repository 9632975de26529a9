package consensus

import (
	"log"
	"time"
)

// pipelineTime returns view v's view-change timeout: base*2^v (spec §4.I),
// capped at an hour so an adversarial view counter cannot overflow the
// timer duration.
func pipelineTime(base time.Duration, view uint32) time.Duration {
	d := base
	for i := uint32(0); i < view && d < time.Hour; i++ {
		d *= 2
	}
	return d
}

// armViewTimer (re)starts the current view's timeout. Every StartRound call
// arms a fresh timer; a commit or a higher adopted view disarms it via
// stopViewTimer before the next round arms its own.
func (s *Sumeragi) armViewTimer() {
	s.stopViewTimer()
	timeout := pipelineTime(s.viewChangeBase, s.currentView())
	s.mu.Lock()
	s.viewTimer = time.AfterFunc(timeout, s.onViewTimeout)
	s.mu.Unlock()
}

func (s *Sumeragi) stopViewTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewTimer != nil {
		s.viewTimer.Stop()
		s.viewTimer = nil
	}
}

// onViewTimeout fires when the current view's pipeline_time elapses without
// a commit: bump the view, announce it so other peers adopt it too, and
// start a fresh round under the new role assignment.
func (s *Sumeragi) onViewTimeout() {
	s.mu.Lock()
	s.view++
	view := s.view
	s.mu.Unlock()
	height := s.pipeline.WSV.Height() + 1
	log.Printf("[consensus] view change at height %d: now view %d", height, view)
	s.transport.Broadcast(Message{Kind: MsgControlFlow, Height: height, View: view})
	s.StartRound()
}

// onControlFlow adopts a higher view a peer is proposing, per spec §4.I's
// soft-fork rule: a peer never disputes another peer's claim to a higher
// view, it simply catches up and restarts its own round under it.
func (s *Sumeragi) onControlFlow(msg Message) {
	s.mu.Lock()
	adopt := msg.View > s.view
	if adopt {
		s.view = msg.View
	}
	s.mu.Unlock()
	if adopt {
		s.StartRound()
	}
}
