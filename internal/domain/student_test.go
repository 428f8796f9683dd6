package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sis-student-api/pkg/errors"
)

func newTestStudent() *Student {
	dob := time.Date(2010, time.March, 14, 0, 0, 0, 0, time.UTC)
	return NewStudent("S100", "Alice Tan", dob, "F", NewContactInfo("alice@example.com", "0812", "Jakarta"))
}

func TestNewStudentRecordsCreatedEvent(t *testing.T) {
	student := newTestStudent()

	assert.Equal(t, StatusActive, student.Status)
	assert.False(t, student.EnrollmentDate.IsZero())
	assert.Nil(t, student.GraduationDate)
	assert.Empty(t, student.Parents)
	assert.False(t, student.Deleted)

	events := student.UncommittedEvents()
	require.Len(t, events, 1)
	created, ok := events[0].(StudentCreated)
	require.True(t, ok)
	assert.Equal(t, "S100", created.AggregateID())
	assert.Equal(t, EventTypeStudentCreated, created.EventType())
	assert.NotEmpty(t, created.EventID())
	assert.Equal(t, "Alice Tan", created.Student.Name)
}

func TestUpdateStatusRecordsChangeEvent(t *testing.T) {
	student := newTestStudent()
	student.ClearEvents()

	require.NoError(t, student.UpdateStatus(StatusInactive, "medical leave"))

	events := student.UncommittedEvents()
	require.Len(t, events, 1)
	changed, ok := events[0].(StudentStatusChanged)
	require.True(t, ok)
	assert.Equal(t, StatusActive, changed.OldStatus)
	assert.Equal(t, StatusInactive, changed.NewStatus)
	assert.Equal(t, "medical leave", changed.Reason)
}

func TestUpdateStatusRejectsIllegalEdge(t *testing.T) {
	student := newTestStudent()
	require.NoError(t, student.UpdateStatus(StatusWithdrawn, ""))
	student.ClearEvents()

	err := student.UpdateStatus(StatusActive, "came back")
	require.Error(t, err)

	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)

	assert.Equal(t, StatusWithdrawn, student.Status)
	assert.Empty(t, student.UncommittedEvents())
}

func TestGraduationDateRules(t *testing.T) {
	student := newTestStudent()

	require.NoError(t, student.UpdateStatus(StatusGraduated, "finished"))
	require.NotNil(t, student.GraduationDate)
	graduatedAt := *student.GraduationDate
	assert.WithinDuration(t, time.Now().UTC(), graduatedAt, time.Minute)

	// Same-state transition keeps the original date.
	require.NoError(t, student.UpdateStatus(StatusGraduated, "again"))
	require.NotNil(t, student.GraduationDate)
	assert.Equal(t, graduatedAt, *student.GraduationDate)
}

func TestUpdateStatusSameStateIsNoOp(t *testing.T) {
	student := newTestStudent()
	student.ClearEvents()

	require.NoError(t, student.UpdateStatus(StatusActive, ""))
	assert.Equal(t, StatusActive, student.Status)
	assert.Nil(t, student.GraduationDate)
	assert.Len(t, student.UncommittedEvents(), 1)
}

func TestGraduatedIsTerminal(t *testing.T) {
	student := newTestStudent()
	require.NoError(t, student.UpdateStatus(StatusGraduated, ""))

	for _, next := range []Status{StatusActive, StatusInactive, StatusWithdrawn, StatusTransferred} {
		err := student.UpdateStatus(next, "")
		require.Errorf(t, err, "GRADUATED -> %s should be rejected", next)
	}
	assert.Equal(t, StatusGraduated, student.Status)
}

func TestAddParentKeepsSinglePrimary(t *testing.T) {
	student := newTestStudent()
	student.ClearEvents()

	student.AddParent(ParentInfo{Name: "A", Relationship: "father", Phone: "1", IsPrimary: true})
	student.AddParent(ParentInfo{Name: "B", Relationship: "mother", Phone: "2", IsPrimary: true})

	require.Len(t, student.Parents, 2)
	assert.False(t, student.Parents[0].IsPrimary)
	assert.True(t, student.Parents[1].IsPrimary)

	primary, ok := student.PrimaryParent()
	require.True(t, ok)
	assert.Equal(t, "B", primary.Name)

	student.AddParent(ParentInfo{Name: "C", Relationship: "guardian", Phone: "3"})
	require.Len(t, student.Parents, 3)

	count := 0
	for _, p := range student.Parents {
		if p.IsPrimary {
			count++
		}
	}
	assert.Equal(t, 1, count)

	events := student.UncommittedEvents()
	require.Len(t, events, 3)
	for _, event := range events {
		assert.Equal(t, EventTypeParentAdded, event.EventType())
	}
}

func TestAge(t *testing.T) {
	now := time.Now().UTC()

	tenYearsAgo := now.AddDate(-10, 0, 0)
	student := NewStudent("S1", "A", tenYearsAgo, "M", ContactInfo{})
	assert.Equal(t, 10, student.Age())

	// Birthday not yet reached this year.
	almostTen := now.AddDate(-10, 0, 1)
	student = NewStudent("S2", "B", almostTen, "M", ContactInfo{})
	assert.Equal(t, 9, student.Age())
}

func TestDerivedQueries(t *testing.T) {
	student := newTestStudent()
	assert.True(t, student.IsActive())
	assert.False(t, student.IsGraduated())

	require.NoError(t, student.UpdateStatus(StatusGraduated, ""))
	assert.False(t, student.IsActive())
	assert.True(t, student.IsGraduated())
}

func TestContactInfoCopyOnChange(t *testing.T) {
	original := NewContactInfo("a@example.com", "1", "addr")
	changed := original.WithEmail("b@example.com").WithPhone("2")

	assert.Equal(t, "a@example.com", original.Email)
	assert.Equal(t, "1", original.Phone)
	assert.Equal(t, "b@example.com", changed.Email)
	assert.Equal(t, "2", changed.Phone)
	assert.Equal(t, "addr", changed.Address)
}

func TestSnapshotIsDetachedFromAggregate(t *testing.T) {
	student := newTestStudent()
	student.AssignClass("C1")

	snap := student.Snapshot()
	student.AssignClass("C2")

	require.NotNil(t, snap.ClassID)
	assert.Equal(t, "C1", *snap.ClassID)
}
