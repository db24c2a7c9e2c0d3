package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roadwatch/roadwatch/internal/database/testutil"
	"github.com/roadwatch/roadwatch/internal/models"
	"github.com/roadwatch/roadwatch/internal/realtime"
	apperrors "github.com/roadwatch/roadwatch/pkg/errors"
)

type coordinatorFixture struct {
	coordinator *Coordinator
	store       *GormStore
	sender      *recordingSender
	email       *captureQueue
	clock       *testClock
}

func newCoordinatorFixture(t *testing.T, users ...*models.User) *coordinatorFixture {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithUsers(users...))
	clock := newTestClock()

	store, err := NewGormStore(db, WithStoreClock(clock.Now))
	require.NoError(t, err)
	dir, err := NewGormUserDirectory(db)
	require.NoError(t, err)

	sender := &recordingSender{}
	queue := &captureQueue{}
	coordinator, err := NewCoordinator(store, dir, sender,
		WithEmailQueue(queue),
		WithEmailBaseURL("https://roadwatch.example/"),
		WithCoordinatorClock(clock.Now),
	)
	require.NoError(t, err)

	return &coordinatorFixture{
		coordinator: coordinator,
		store:       store,
		sender:      sender,
		email:       queue,
		clock:       clock,
	}
}

func defaultUsers() []*models.User {
	return []*models.User{
		testutil.NewUser("admin-1", models.RoleAdmin),
		testutil.NewUser("admin-2", models.RoleAdmin),
		testutil.NewUser("admin-3", models.RoleAdmin),
		testutil.NewUser("staff-1", models.RoleStaff),
		testutil.NewUser("citizen-1", models.RoleCitizen),
	}
}

func TestCoordinatorDeliverFansOutPerRecipient(t *testing.T) {
	f := newCoordinatorFixture(t, defaultUsers()...)

	created, err := f.coordinator.Deliver(context.Background(), Notice{
		Type:       models.TypeReportCreated,
		Title:      "New Report Submitted",
		Message:    "Pothole on Main St",
		Recipients: []Recipient{RoleRecipient(models.RoleAdmin)},
		Data:       map[string]any{"reportId": "r-1"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, created)
	f.coordinator.Wait()

	require.ElementsMatch(t,
		[]string{"user_admin-1", "user_admin-2", "user_admin-3"},
		f.sender.Rooms(realtime.EventNotificationNew),
	)
	for _, evt := range f.sender.Events() {
		record, ok := evt.Payload.(*models.Notification)
		require.True(t, ok)
		require.Equal(t, realtime.UserRoom(record.RecipientID), evt.Room)
		require.Equal(t, models.PriorityNormal, record.Priority)
		require.Equal(t, "r-1", record.Data["reportId"])
	}

	for _, id := range []string{"admin-1", "admin-2", "admin-3"} {
		page, err := f.store.List(context.Background(), id, ListOptions{})
		require.NoError(t, err)
		require.EqualValues(t, 1, page.Total)
		require.Equal(t, "New Report Submitted", page.Items[0].Title)
	}
	require.Empty(t, f.email.Jobs())
}

func TestCoordinatorDeliverWithNoRecipientsIsNoop(t *testing.T) {
	f := newCoordinatorFixture(t, testutil.NewUser("citizen-1", models.RoleCitizen))

	created, err := f.coordinator.Deliver(context.Background(), Notice{
		Type:       models.TypeReportCreated,
		Title:      "Nobody home",
		Message:    "No admins exist",
		Recipients: []Recipient{RoleRecipient(models.RoleAdmin)},
	})
	require.NoError(t, err)
	require.Zero(t, created)
	f.coordinator.Wait()
	require.Empty(t, f.sender.Events())
}

func TestCoordinatorDeliverValidatesNotice(t *testing.T) {
	f := newCoordinatorFixture(t, defaultUsers()...)

	cases := []Notice{
		{Type: "nope", Title: "t", Message: "m", Recipients: Users("admin-1")},
		{Type: models.TypeInfo, Title: " ", Message: "m", Recipients: Users("admin-1")},
		{Type: models.TypeInfo, Title: strings.Repeat("x", models.MaxTitleLength+1), Message: "m", Recipients: Users("admin-1")},
		{Type: models.TypeInfo, Title: "t", Message: "", Recipients: Users("admin-1")},
		{Type: models.TypeInfo, Title: "t", Message: strings.Repeat("x", models.MaxMessageLength+1), Recipients: Users("admin-1")},
		{Type: models.TypeInfo, Title: "t", Message: "m", Priority: "critical", Recipients: Users("admin-1")},
	}
	for _, notice := range cases {
		created, err := f.coordinator.Deliver(context.Background(), notice)
		require.Error(t, err)
		require.True(t, errors.Is(err, apperrors.ErrValidation))
		require.Zero(t, created)
	}
	f.coordinator.Wait()
	require.Empty(t, f.sender.Events())
}

func TestCoordinatorPersistenceFailureEmitsNothing(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithUsers(defaultUsers()...))
	dir, err := NewGormUserDirectory(db)
	require.NoError(t, err)

	sender := &recordingSender{}
	queue := &captureQueue{}
	coordinator, err := NewCoordinator(&failingStore{created: 1}, dir, sender, WithEmailQueue(queue))
	require.NoError(t, err)

	created, err := coordinator.Deliver(context.Background(), Notice{
		Type:       models.TypeReportAssigned,
		Title:      "New Task Assigned",
		Message:    "Fix it",
		Recipients: Users("staff-1", "citizen-1"),
		Email:      &EmailSpec{Template: TemplateTaskAssigned},
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrPersistence))
	require.Equal(t, 1, created)

	coordinator.Wait()
	require.Empty(t, sender.Events())
	require.Empty(t, queue.Jobs())
}

func TestCoordinatorUnattachedHandleStillPersists(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithUsers(defaultUsers()...))
	store, err := NewGormStore(db)
	require.NoError(t, err)
	dir, err := NewGormUserDirectory(db)
	require.NoError(t, err)

	handle := realtime.NewHandle()
	coordinator, err := NewCoordinator(store, dir, handle)
	require.NoError(t, err)

	created, err := coordinator.Deliver(context.Background(), Notice{
		Type:       models.TypeSystem,
		Title:      "Maintenance",
		Message:    "Scheduled downtime tonight",
		Recipients: Users("citizen-1"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, created)
	coordinator.Wait()

	page, err := store.List(context.Background(), "citizen-1", ListOptions{})
	require.NoError(t, err)
	require.EqualValues(t, 1, page.Total)
}

func TestCoordinatorEmailsOnlyOptedInActiveUsers(t *testing.T) {
	optedOut := testutil.NewUser("citizen-2", models.RoleCitizen)
	optedOut.EmailNotifications = false
	inactive := testutil.NewUser("citizen-3", models.RoleCitizen)
	inactive.IsActive = false
	noEmail := testutil.NewUser("citizen-4", models.RoleCitizen)
	noEmail.Email = ""

	f := newCoordinatorFixture(t,
		testutil.NewUser("citizen-1", models.RoleCitizen),
		optedOut, inactive, noEmail,
	)

	created, err := f.coordinator.Deliver(context.Background(), Notice{
		Type:        models.TypeBroadcast,
		Title:       "Road closure",
		Message:     "Bridge closed for repairs",
		Recipients:  Users("citizen-1", "citizen-2", "citizen-3", "citizen-4"),
		ActionURL:   "/closures/1",
		ActionLabel: "Details",
		Email: &EmailSpec{
			Template: TemplateBroadcast,
			Context:  map[string]any{"Extra": "value"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 4, created)
	f.coordinator.Wait()

	jobs := f.email.Jobs()
	require.Len(t, jobs, 1)
	job := jobs[0]
	require.Equal(t, "citizen-1@example.com", job.To)
	require.Equal(t, "Road closure", job.Subject)
	require.Equal(t, TemplateBroadcast, job.Template)
	require.NotEmpty(t, job.NotificationID)
	require.Equal(t, "citizen-1", job.Context["Name"])
	require.Equal(t, "/closures/1", job.Context["ActionURL"])
	require.Equal(t, "https://roadwatch.example", job.Context["BaseURL"])
	require.Equal(t, "value", job.Context["Extra"])
}

func TestNewCoordinatorRequiresDependencies(t *testing.T) {
	_, err := NewCoordinator(nil, failingDirectory{}, &recordingSender{})
	require.Error(t, err)
	_, err = NewCoordinator(&failingStore{}, failingDirectory{}, nil)
	require.Error(t, err)
	_, err = NewCoordinator(&failingStore{}, nil, &recordingSender{})
	require.Error(t, err)
}
