package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialogManagerPutGet(t *testing.T) {
	dm := NewDialogManager(5*time.Minute, 20*time.Minute)

	_, ok := dm.Get(1)
	require.False(t, ok)

	s := Session{State: StateAwaitName, ChatID: 100}
	s.Draft.FullName = "Иванов Иван"
	dm.Put(1, s)

	got, ok := dm.Get(1)
	require.True(t, ok)
	require.Equal(t, StateAwaitName, got.State)
	require.Equal(t, "Иванов Иван", got.Draft.FullName)

	dm.Clear(1)
	_, ok = dm.Get(1)
	require.False(t, ok)
}

func TestDialogManagerGetReturnsCopy(t *testing.T) {
	dm := NewDialogManager(5*time.Minute, 20*time.Minute)
	dm.Put(1, Session{State: StateAwaitName})

	got, _ := dm.Get(1)
	got.State = StateConfirm

	again, _ := dm.Get(1)
	require.Equal(t, StateAwaitName, again.State, "mutating the copy must not leak back")
}

func TestDialogManagerUsersIndependent(t *testing.T) {
	dm := NewDialogManager(5*time.Minute, 20*time.Minute)
	dm.Put(1, Session{State: StateAwaitName})
	dm.Put(2, Session{State: StateAwaitProof})

	s1, _ := dm.Get(1)
	s2, _ := dm.Get(2)
	require.Equal(t, StateAwaitName, s1.State)
	require.Equal(t, StateAwaitProof, s2.State)

	dm.Clear(1)
	_, ok := dm.Get(2)
	require.True(t, ok)
}

func TestDialogManagerAddTransient(t *testing.T) {
	dm := NewDialogManager(5*time.Minute, 20*time.Minute)
	dm.Put(1, Session{})
	dm.AddTransient(1, 10)
	dm.AddTransient(1, 11)
	dm.AddTransient(2, 99) // no session, must be a no-op

	s, _ := dm.Get(1)
	require.Equal(t, []int{10, 11}, s.Transient)
}

func TestDialogManagerExpire(t *testing.T) {
	dm := NewDialogManager(5*time.Minute, 20*time.Minute)
	current := time.Date(2025, time.September, 1, 12, 0, 0, 0, time.UTC)
	dm.now = func() time.Time { return current }

	dm.Put(1, Session{State: StateAwaitName, ChatID: 100})
	dm.Put(2, Session{State: StateAwaitProof, ChatID: 200})

	require.Empty(t, dm.Expire(), "nothing expired yet")

	// Past the ordinary TTL but inside the proof window.
	current = current.Add(6 * time.Minute)
	expired := dm.Expire()
	require.Len(t, expired, 1)
	require.Equal(t, 1, expired[0].UserID)
	require.Equal(t, StateAwaitName, expired[0].State)

	_, ok := dm.Get(1)
	require.False(t, ok, "expired session removed")
	_, ok = dm.Get(2)
	require.True(t, ok, "proof wait has the longer deadline")

	// Past the proof window too.
	current = current.Add(15 * time.Minute)
	expired = dm.Expire()
	require.Len(t, expired, 1)
	require.Equal(t, 2, expired[0].UserID)
}

func TestDialogManagerDeadlineRefreshedOnPut(t *testing.T) {
	dm := NewDialogManager(5*time.Minute, 20*time.Minute)
	current := time.Date(2025, time.September, 1, 12, 0, 0, 0, time.UTC)
	dm.now = func() time.Time { return current }

	dm.Put(1, Session{State: StateAwaitName})

	// Each turn re-puts the session, pushing the deadline forward.
	current = current.Add(4 * time.Minute)
	s, _ := dm.Get(1)
	dm.Put(1, s)

	current = current.Add(4 * time.Minute)
	require.Empty(t, dm.Expire(), "activity keeps the session alive")

	current = current.Add(2 * time.Minute)
	require.Len(t, dm.Expire(), 1)
}
