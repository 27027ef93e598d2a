package proposer

import (
	"context"
	"sync"
)

// Scripted replays a fixed sequence of proposals; once the script is
// exhausted it returns empty proposals. Intended for tests and replay.
type Scripted struct {
	mu           sync.Mutex
	script       []Proposal
	next         int
	CompleteText string
	Err          error
	Requests     []Request
}

func NewScripted(script ...Proposal) *Scripted {
	return &Scripted{script: script}
}

func (s *Scripted) Propose(_ context.Context, req Request) (Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Requests = append(s.Requests, req)
	if s.Err != nil {
		return Proposal{}, s.Err
	}
	if s.next >= len(s.script) {
		return Proposal{}, nil
	}
	p := s.script[s.next]
	s.next++
	return p, nil
}

func (s *Scripted) Complete(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	return s.CompleteText, nil
}
