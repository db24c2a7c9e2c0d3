package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/roadwatch/roadwatch/internal/database/testutil"
	"github.com/roadwatch/roadwatch/internal/middleware"
	"github.com/roadwatch/roadwatch/internal/models"
	"github.com/roadwatch/roadwatch/internal/realtime"
	"github.com/roadwatch/roadwatch/internal/services"
	"github.com/roadwatch/roadwatch/pkg/response"
)

type notificationEnv struct {
	handler     *NotificationHandler
	store       *services.GormStore
	coordinator *services.Coordinator
}

func newNotificationEnv(t *testing.T) *notificationEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithUsers(
		testutil.NewUser("admin-1", models.RoleAdmin),
		testutil.NewUser("admin-2", models.RoleAdmin),
		testutil.NewUser("staff-1", models.RoleStaff),
		testutil.NewUser("citizen-1", models.RoleCitizen),
	))

	store, err := services.NewGormStore(db)
	require.NoError(t, err)
	directory, err := services.NewGormUserDirectory(db)
	require.NoError(t, err)

	handle := realtime.NewHandle()
	coordinator, err := services.NewCoordinator(store, directory, handle)
	require.NoError(t, err)
	readState, err := services.NewReadStateService(store, handle)
	require.NoError(t, err)
	stats, err := services.NewStatsService(store, nil)
	require.NoError(t, err)

	handler, err := NewNotificationHandler(readState, coordinator, stats, WithDefaultLimit(2))
	require.NoError(t, err)

	return &notificationEnv{handler: handler, store: store, coordinator: coordinator}
}

func (e *notificationEnv) seed(t *testing.T, recipient string, titles ...string) []*models.Notification {
	t.Helper()
	records := make([]*models.Notification, 0, len(titles))
	base := time.Now().UTC().Add(-time.Hour)
	for i, title := range titles {
		record := &models.Notification{
			RecipientID: recipient,
			Type:        models.TypeInfo,
			Title:       title,
			Message:     title + " message",
		}
		record.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		records = append(records, record)
	}
	created, err := e.store.Create(context.Background(), records)
	require.NoError(t, err)
	require.Equal(t, len(titles), created)
	return records
}

func invoke(t *testing.T, fn gin.HandlerFunc, method, target string, body any, userID string, params ...gin.Param) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(method, target, reader)
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	if userID != "" {
		c.Set(middleware.CtxUserIDKey, userID)
	}

	fn(c)

	var payload response.Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &payload))
	return recorder, payload
}

func decodeData(t *testing.T, payload response.Response, dest any) {
	t.Helper()
	raw, err := json.Marshal(payload.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, dest))
}

func TestNotificationHandlerListPagesNewestFirst(t *testing.T) {
	env := newNotificationEnv(t)
	env.seed(t, "citizen-1", "first", "second", "third")
	env.seed(t, "staff-1", "not mine")

	recorder, payload := invoke(t, env.handler.List, http.MethodGet, "/api/notifications", nil, "citizen-1")
	require.Equal(t, http.StatusOK, recorder.Code)
	require.True(t, payload.Success)
	require.NotNil(t, payload.Meta)
	require.Equal(t, 1, payload.Meta.Page)
	require.Equal(t, 2, payload.Meta.PerPage)
	require.Equal(t, 2, payload.Meta.TotalPages)

	var list notificationListPayload
	decodeData(t, payload, &list)
	require.Equal(t, 2, list.Count)
	require.EqualValues(t, 3, list.Total)
	require.EqualValues(t, 3, list.UnreadCount)
	require.Equal(t, 2, list.Pages)
	require.Equal(t, "third", list.Data[0].Title)
	require.Equal(t, "second", list.Data[1].Title)

	_, payload = invoke(t, env.handler.List, http.MethodGet, "/api/notifications?page=2&limit=2", nil, "citizen-1")
	decodeData(t, payload, &list)
	require.Equal(t, 1, list.Count)
	require.Equal(t, "first", list.Data[0].Title)
}

func TestNotificationHandlerUnreadOnlyFilter(t *testing.T) {
	env := newNotificationEnv(t)
	records := env.seed(t, "citizen-1", "a", "b", "c")

	recorder, _ := invoke(t, env.handler.MarkRead, http.MethodPut, "/api/notifications/x/read", nil, "citizen-1",
		gin.Param{Key: "id", Value: records[2].ID})
	require.Equal(t, http.StatusOK, recorder.Code)

	_, payload := invoke(t, env.handler.List, http.MethodGet, "/api/notifications?unreadOnly=true&limit=10", nil, "citizen-1")
	var list notificationListPayload
	decodeData(t, payload, &list)
	require.EqualValues(t, 2, list.Total)
	require.EqualValues(t, 2, list.UnreadCount)
	for _, item := range list.Data {
		require.False(t, item.Read)
	}
}

func TestNotificationHandlerRequiresUser(t *testing.T) {
	env := newNotificationEnv(t)

	handlers := map[string]gin.HandlerFunc{
		"list":      env.handler.List,
		"markRead":  env.handler.MarkRead,
		"markAll":   env.handler.MarkAllRead,
		"delete":    env.handler.Delete,
		"deleteAll": env.handler.DeleteAll,
		"broadcast": env.handler.Broadcast,
	}
	for name, fn := range handlers {
		t.Run(name, func(t *testing.T) {
			recorder, payload := invoke(t, fn, http.MethodGet, "/", nil, "")
			require.Equal(t, http.StatusUnauthorized, recorder.Code)
			require.False(t, payload.Success)
		})
	}
}

func TestNotificationHandlerMarkRead(t *testing.T) {
	env := newNotificationEnv(t)
	records := env.seed(t, "citizen-1", "pothole")

	recorder, payload := invoke(t, env.handler.MarkRead, http.MethodPut, "/", nil, "citizen-1",
		gin.Param{Key: "id", Value: records[0].ID})
	require.Equal(t, http.StatusOK, recorder.Code)

	var record models.Notification
	decodeData(t, payload, &record)
	require.True(t, record.Read)
	require.NotNil(t, record.ReadAt)

	recorder, _ = invoke(t, env.handler.MarkRead, http.MethodPut, "/", nil, "staff-1",
		gin.Param{Key: "id", Value: records[0].ID})
	require.Equal(t, http.StatusNotFound, recorder.Code)

	recorder, _ = invoke(t, env.handler.MarkRead, http.MethodPut, "/", nil, "citizen-1",
		gin.Param{Key: "id", Value: "missing"})
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestNotificationHandlerMarkAllAndDelete(t *testing.T) {
	env := newNotificationEnv(t)
	records := env.seed(t, "citizen-1", "a", "b", "c")

	recorder, payload := invoke(t, env.handler.MarkAllRead, http.MethodPut, "/", nil, "citizen-1")
	require.Equal(t, http.StatusOK, recorder.Code)
	var counted struct {
		Count int64 `json:"count"`
	}
	decodeData(t, payload, &counted)
	require.EqualValues(t, 3, counted.Count)

	recorder, payload = invoke(t, env.handler.Delete, http.MethodDelete, "/", nil, "citizen-1",
		gin.Param{Key: "id", Value: records[0].ID})
	require.Equal(t, http.StatusOK, recorder.Code)
	var deleted struct {
		Deleted bool `json:"deleted"`
	}
	decodeData(t, payload, &deleted)
	require.True(t, deleted.Deleted)

	recorder, _ = invoke(t, env.handler.Delete, http.MethodDelete, "/", nil, "citizen-1",
		gin.Param{Key: "id", Value: records[0].ID})
	require.Equal(t, http.StatusNotFound, recorder.Code)

	recorder, payload = invoke(t, env.handler.DeleteAll, http.MethodDelete, "/", nil, "citizen-1")
	require.Equal(t, http.StatusOK, recorder.Code)
	decodeData(t, payload, &counted)
	require.EqualValues(t, 2, counted.Count)
}

func TestNotificationHandlerBroadcast(t *testing.T) {
	env := newNotificationEnv(t)

	recorder, payload := invoke(t, env.handler.Broadcast, http.MethodPost, "/api/notifications/broadcast", gin.H{
		"title":      "Road closure",
		"message":    "Main St closed for resurfacing",
		"recipients": []string{"admin", "citizen-1"},
		"priority":   "high",
	}, "admin-1")
	require.Equal(t, http.StatusCreated, recorder.Code)
	env.coordinator.Wait()

	var sent struct {
		Sent int `json:"sent"`
	}
	decodeData(t, payload, &sent)
	require.Equal(t, 3, sent.Sent)

	list, err := env.store.List(context.Background(), "citizen-1", services.ListOptions{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	require.Equal(t, models.TypeBroadcast, list.Items[0].Type)
	require.Equal(t, models.PriorityHigh, list.Items[0].Priority)
	require.NotNil(t, list.Items[0].SenderID)
	require.Equal(t, "admin-1", *list.Items[0].SenderID)
}

func TestNotificationHandlerBroadcastDefaultsToEveryone(t *testing.T) {
	env := newNotificationEnv(t)

	recorder, payload := invoke(t, env.handler.Broadcast, http.MethodPost, "/", gin.H{
		"title":   "Maintenance window",
		"message": "The portal is read only tonight",
	}, "admin-1")
	require.Equal(t, http.StatusCreated, recorder.Code)
	env.coordinator.Wait()

	var sent struct {
		Sent int `json:"sent"`
	}
	decodeData(t, payload, &sent)
	require.Equal(t, 4, sent.Sent)
}

func TestNotificationHandlerBroadcastValidation(t *testing.T) {
	env := newNotificationEnv(t)
	past := time.Now().Add(-time.Hour).UTC()

	cases := map[string]struct {
		body    gin.H
		message string
	}{
		"missing title":   {gin.H{"message": "m"}, "title is required"},
		"unknown type":    {gin.H{"title": "t", "message": "m", "type": "gossip"}, "type must be one of"},
		"bad priority":    {gin.H{"title": "t", "message": "m", "priority": "critical"}, "priority must be one of low, normal, high, urgent"},
		"expired":         {gin.H{"title": "t", "message": "m", "expiresAt": past}, "expiresAt must be in the future"},
		"blank recipient": {gin.H{"title": "t", "message": "m", "recipients": []string{""}}, "recipients[0] is required"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			recorder, payload := invoke(t, env.handler.Broadcast, http.MethodPost, "/", tc.body, "admin-1")
			require.Equal(t, http.StatusBadRequest, recorder.Code)
			require.False(t, payload.Success)
			require.NotNil(t, payload.Error)
			require.Equal(t, "VALIDATION_FAILED", payload.Error.Code)
			require.Contains(t, payload.Error.Message, tc.message)
		})
	}
}

func TestNotificationHandlerStats(t *testing.T) {
	env := newNotificationEnv(t)
	records := env.seed(t, "citizen-1", "a", "b")
	_, err := env.store.MarkRead(context.Background(), records[0].ID, "citizen-1")
	require.NoError(t, err)

	recorder, payload := invoke(t, env.handler.Stats, http.MethodGet, "/api/notifications/stats?days=7", nil, "admin-1")
	require.Equal(t, http.StatusOK, recorder.Code)

	var stats services.Stats
	decodeData(t, payload, &stats)
	require.EqualValues(t, 2, stats.Total)
	require.EqualValues(t, 1, stats.Read)
	require.InDelta(t, 0.5, stats.ReadRate, 0.0001)
}
