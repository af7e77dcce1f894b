package main

import (
	"sync"
	"time"
)

// DialogState represents the current state of a user's dialog with the bot.
type DialogState int

const (
	StateIdle DialogState = iota
	StateSelectCity
	StateAwaitName
	StateAwaitYearLetter
	StateAwaitLetter // degraded path: year accepted, letter still missing
	StateConfirm
	StateManageMenu  // one existing registration: change/cancel/add/keep
	StateMultiManage // several registrations: pick one or cancel all
	StatePayChoice   // pay now / pay later
	StateAwaitProof
	StateFeedbackVenue
	StateFeedbackProgram
	StateFeedbackOverall
	StateFeedbackComment
)

// Session stores the dialog state for one user. Nothing here is persisted:
// a registration row is only written at the explicit save step, so an
// abandoned session leaves no partial record behind.
type Session struct {
	State        DialogState
	ChatID       int64
	Draft        Registration // identity collected so far
	HandoffToken string       // payment handoff token, session-local
	ManagedCity  string       // city picked in the multi-manage menu
	Transient    []int        // bot message ids to delete after save
	Feedback     Feedback
	Deadline     time.Time
}

// ExpiredSession is a swept session together with its owner.
type ExpiredSession struct {
	UserID int
	Session
}

// DialogManager manages dialog sessions for users.
type DialogManager struct {
	mu       sync.RWMutex
	sessions map[int]*Session
	ttl      time.Duration // ordinary prompt timeout
	proofTTL time.Duration // longer window while awaiting a payment proof
	now      func() time.Time
}

// NewDialogManager creates a new DialogManager.
func NewDialogManager(ttl, proofTTL time.Duration) *DialogManager {
	return &DialogManager{
		sessions: make(map[int]*Session),
		ttl:      ttl,
		proofTTL: proofTTL,
		now:      time.Now,
	}
}

// Get returns a copy of the user's session.
func (dm *DialogManager) Get(userID int) (Session, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	if s, exists := dm.sessions[userID]; exists {
		return *s, true
	}
	return Session{}, false
}

// Put stores the session and refreshes its deadline for the new state.
func (dm *DialogManager) Put(userID int, s Session) {
	ttl := dm.ttl
	if s.State == StateAwaitProof {
		ttl = dm.proofTTL
	}
	s.Deadline = dm.now().Add(ttl)

	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.sessions[userID] = &s
}

// AddTransient records a bot message id to delete once the flow finishes.
func (dm *DialogManager) AddTransient(userID int, messageID int) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if s, exists := dm.sessions[userID]; exists {
		s.Transient = append(s.Transient, messageID)
	}
}

// Clear removes the dialog session for a user.
func (dm *DialogManager) Clear(userID int) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	delete(dm.sessions, userID)
}

// Expire removes and returns every session whose deadline has passed.
func (dm *DialogManager) Expire() []ExpiredSession {
	now := dm.now()

	dm.mu.Lock()
	defer dm.mu.Unlock()

	var expired []ExpiredSession
	for userID, s := range dm.sessions {
		if now.After(s.Deadline) {
			expired = append(expired, ExpiredSession{UserID: userID, Session: *s})
			delete(dm.sessions, userID)
		}
	}
	return expired
}
