package usecase

import "sync"

// SetupState tracks the setup-flow progress flags the dashboard polls during
// onboarding: whether the upstream provider completed the GET verification
// handshake, and whether the first real event has arrived.
type SetupState struct {
	mu                   sync.Mutex
	webhookVerified      bool
	firstMessageReceived bool
}

// NewSetupState starts unverified with no message received.
func NewSetupState() *SetupState {
	return &SetupState{}
}

// MarkVerified records a successful verification handshake.
func (s *SetupState) MarkVerified() {
	s.mu.Lock()
	s.webhookVerified = true
	s.mu.Unlock()
}

// MarkFirstMessage records that event data is flowing.
func (s *SetupState) MarkFirstMessage() {
	s.mu.Lock()
	s.firstMessageReceived = true
	s.mu.Unlock()
}

// Snapshot returns the current flags.
func (s *SetupState) Snapshot() (verified, firstMessage bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.webhookVerified, s.firstMessageReceived
}

// Reset returns the state to its initial values.
func (s *SetupState) Reset() {
	s.mu.Lock()
	s.webhookVerified = false
	s.firstMessageReceived = false
	s.mu.Unlock()
}
