package services

import (
	"context"
	"testing"
	"time"

	"supportdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIncidenceService_CreateDefaults(t *testing.T) {
	svc, clock := newTestStore(t)
	ctx := context.Background()

	inc, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1", CartValue: 1200})
	require.NoError(t, err)
	assert.NotEmpty(t, inc.ID)
	assert.Equal(t, models.StagePreOrder, inc.Stage)
	assert.Equal(t, models.ChannelInAppChat, inc.Channel)
	assert.Equal(t, models.TriggerUserInitiated, inc.Trigger)
	assert.Equal(t, models.OutcomeInProgress, inc.Outcome)
	assert.Equal(t, models.OrderImpactNone, inc.OrderImpact)
	assert.Nil(t, inc.ConversationID)
	assert.True(t, inc.CreatedAt.Equal(clock.Now()))

	withOrder, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1", OrderID: "ord-9"})
	require.NoError(t, err)
	assert.Equal(t, models.StagePostOrder, withOrder.Stage)
	require.NotNil(t, withOrder.OrderID)
	assert.Equal(t, "ord-9", *withOrder.OrderID)
}

func TestIncidenceService_CreateValidation(t *testing.T) {
	svc, _ := newTestStore(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, &IncidenceCreateRequest{})
	assert.ErrorIs(t, err, ErrInvalidIncidence)

	_, err = svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1", Channel: "PIGEON"})
	assert.ErrorIs(t, err, ErrInvalidIncidence)

	_, err = svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1", Stage: "LATER"})
	assert.ErrorIs(t, err, ErrInvalidIncidence)
}

func TestIncidenceService_CloseComputesTimeToResolve(t *testing.T) {
	svc, clock := newTestStore(t)
	notifier := &recordingNotifier{}
	svc.SetNotifier(notifier)
	ctx := context.Background()

	inc, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1"})
	require.NoError(t, err)

	clock.Advance(90 * time.Second)
	closed, err := svc.Close(ctx, inc.ID, &CloseRequest{
		Outcome:       "converted",
		OrderImpact:   models.OrderImpactPlaced,
		IssueCategory: strPtr("menu"),
		Metadata:      map[string]interface{}{"tags": []string{"order_placed"}},
	})
	require.NoError(t, err)
	require.NotNil(t, closed)
	assert.Equal(t, models.OutcomeConverted, closed.Outcome)
	assert.Equal(t, models.OrderImpactPlaced, closed.OrderImpact)
	require.NotNil(t, closed.ResolvedAt)
	assert.True(t, closed.ResolvedAt.Equal(clock.Now()))
	require.NotNil(t, closed.TimeToResolveSeconds)
	assert.Equal(t, int64(90), *closed.TimeToResolveSeconds)
	require.NotNil(t, closed.IssueCategory)
	assert.Equal(t, "menu", *closed.IssueCategory)

	timeline, err := svc.GetTimeline(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, models.TimelineResolved, timeline[0].EventType)
	assert.Equal(t, models.ActorSystem, timeline[0].Actor)
	assert.Equal(t, "Conversation resolved with outcome: CONVERTED", timeline[0].Content)
	assert.Equal(t, "CONVERTED", timeline[0].Metadata["outcome"])
	assert.Equal(t, "PLACED", timeline[0].Metadata["order_impact"])
	assert.Contains(t, timeline[0].Metadata, "tags")

	assert.Equal(t, []models.TimelineEventType{models.TimelineResolved}, notifier.types())
}

func TestIncidenceService_CloseRejections(t *testing.T) {
	svc, _ := newTestStore(t)
	ctx := context.Background()
	inc, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.Close(ctx, inc.ID, &CloseRequest{Outcome: models.OutcomeInProgress})
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = svc.Close(ctx, inc.ID, &CloseRequest{Outcome: models.OutcomeResolved, OrderImpact: "MAYBE"})
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	missing, err := svc.Close(ctx, "does-not-exist", &CloseRequest{Outcome: models.OutcomeResolved})
	assert.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.Close(ctx, inc.ID, &CloseRequest{Outcome: models.OutcomeResolved})
	require.NoError(t, err)
	_, err = svc.Close(ctx, inc.ID, &CloseRequest{Outcome: models.OutcomeDropped})
	assert.ErrorIs(t, err, ErrIncidenceAlreadyClosed)

	// 第二次关闭不追加时间线
	timeline, err := svc.GetTimeline(ctx, inc.ID)
	require.NoError(t, err)
	assert.Len(t, timeline, 1)
}

func TestIncidenceService_ReopenKeepsResolution(t *testing.T) {
	svc, clock := newTestStore(t)
	ctx := context.Background()
	inc, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.Reopen(ctx, inc.ID)
	assert.ErrorIs(t, err, ErrIncidenceNotClosed)

	clock.Advance(time.Minute)
	closed, err := svc.Close(ctx, inc.ID, &CloseRequest{Outcome: models.OutcomeDropped, OrderImpact: models.OrderImpactLost})
	require.NoError(t, err)

	clock.Advance(time.Hour)
	reopened, err := svc.Reopen(ctx, inc.ID)
	require.NoError(t, err)
	require.NotNil(t, reopened)
	assert.Equal(t, models.OutcomeInProgress, reopened.Outcome)

	stored, err := svc.FindByID(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeInProgress, stored.Outcome)
	require.NotNil(t, stored.ResolvedAt)
	assert.True(t, stored.ResolvedAt.Equal(*closed.ResolvedAt))
	assert.Equal(t, int64(60), *stored.TimeToResolveSeconds)

	timeline, err := svc.GetTimeline(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, models.TimelineReopened, timeline[1].EventType)
	assert.Equal(t, "DROPPED", timeline[1].Metadata["previous_outcome"])

	missing, err := svc.Reopen(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIncidenceService_Assign(t *testing.T) {
	svc, _ := newTestStore(t)
	ctx := context.Background()
	inc, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1"})
	require.NoError(t, err)

	assigned, err := svc.Assign(ctx, inc.ID, &AssignRequest{AgentID: "agent-1", AgentName: "Asha"})
	require.NoError(t, err)
	require.NotNil(t, assigned.AgentID)
	assert.Equal(t, "agent-1", *assigned.AgentID)
	assert.Equal(t, models.OutcomeInProgress, assigned.Outcome)

	timeline, err := svc.GetTimeline(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, models.TimelineAgentAssigned, timeline[0].EventType)
	assert.Equal(t, "Assigned to agent: Asha", timeline[0].Content)

	missing, err := svc.Assign(ctx, "nope", &AssignRequest{AgentID: "a"})
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestIncidenceService_AppendTimeline(t *testing.T) {
	svc, clock := newTestStore(t)
	ctx := context.Background()
	inc, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1"})
	require.NoError(t, err)

	_, err = svc.AppendTimeline(ctx, inc.ID, &TimelineAppendRequest{EventType: "NOTE", Actor: "ROBOT"})
	assert.ErrorIs(t, err, ErrInvalidIncidence)

	missing, err := svc.AppendTimeline(ctx, "nope", &TimelineAppendRequest{EventType: "NOTE", Actor: "agent"})
	assert.NoError(t, err)
	assert.Nil(t, missing)

	for _, content := range []string{"first", "second", "third"} {
		clock.Advance(time.Second)
		_, err := svc.AppendTimeline(ctx, inc.ID, &TimelineAppendRequest{EventType: "note", Actor: "agent", Content: content})
		require.NoError(t, err)
	}

	full, err := svc.GetWithTimeline(ctx, inc.ID)
	require.NoError(t, err)
	require.Len(t, full.Timeline, 3)
	assert.Equal(t, "first", full.Timeline[0].Content)
	assert.Equal(t, "third", full.Timeline[2].Content)
	assert.Equal(t, models.TimelineEventType("NOTE"), full.Timeline[0].EventType)
	assert.Equal(t, models.ActorAgent, full.Timeline[0].Actor)
}

func TestIncidenceService_UpdateAndDelete(t *testing.T) {
	svc, _ := newTestStore(t)
	ctx := context.Background()
	inc, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1", CartValue: 5000})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, inc.ID, &IncidenceUpdateRequest{
		RootCause: strPtr("payment gateway timeout"),
		CallNotes: strPtr("called twice"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.RootCause)
	assert.Equal(t, "payment gateway timeout", *updated.RootCause)
	assert.Equal(t, 5000.0, updated.CartValue)

	missing, err := svc.Update(ctx, "nope", &IncidenceUpdateRequest{RootCause: strPtr("x")})
	assert.NoError(t, err)
	assert.Nil(t, missing)

	_, err = svc.AppendTimeline(ctx, inc.ID, &TimelineAppendRequest{EventType: "NOTE", Actor: "SYSTEM"})
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, inc.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	timeline, err := svc.GetTimeline(ctx, inc.ID)
	require.NoError(t, err)
	assert.Empty(t, timeline)

	deleted, err = svc.Delete(ctx, inc.ID)
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestIncidenceService_BindConversationIsCompareAndSet(t *testing.T) {
	svc, _ := newTestStore(t)
	ctx := context.Background()
	a, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1"})
	require.NoError(t, err)
	b, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "u2"})
	require.NoError(t, err)

	ok, err := svc.BindConversation(ctx, a.ID, "conv-1")
	require.NoError(t, err)
	assert.True(t, ok)

	// 已绑定的记录不会被改写
	ok, err = svc.BindConversation(ctx, a.ID, "conv-2")
	require.NoError(t, err)
	assert.False(t, ok)

	// 同一会话不能绑定到第二条记录
	_, err = svc.BindConversation(ctx, b.ID, "conv-1")
	assert.Error(t, err)

	found, err := svc.FindByConversation(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, a.ID, found.ID)

	none, err := svc.FindByConversation(ctx, "")
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestIncidenceService_FindRecentUnbound(t *testing.T) {
	svc, clock := newTestStore(t)
	ctx := context.Background()

	old, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "old"})
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	recent, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "recent"})
	require.NoError(t, err)
	clock.Advance(time.Minute)

	found, err := svc.FindRecentUnbound(ctx, clock.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, recent.ID, found.ID)

	_, err = svc.BindConversation(ctx, recent.ID, "conv")
	require.NoError(t, err)
	found, err = svc.FindRecentUnbound(ctx, clock.Now().Add(-5*time.Minute))
	require.NoError(t, err)
	assert.Nil(t, found)

	found, err = svc.FindRecentUnbound(ctx, clock.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, old.ID, found.ID)
}

func TestIncidenceService_List(t *testing.T) {
	svc, clock := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		user := "u1"
		if i%2 == 1 {
			user = "u2"
		}
		_, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: user})
		require.NoError(t, err)
	}

	list, total, err := svc.List(ctx, &IncidenceListRequest{UserID: "u1", Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 2)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt))

	_, total, err = svc.List(ctx, &IncidenceListRequest{Outcome: "resolved"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	byUser, err := svc.ListByUser(ctx, "u2", 0)
	require.NoError(t, err)
	assert.Len(t, byUser, 2)
}

func TestIncidenceService_RequestCall(t *testing.T) {
	svc, _ := newTestStore(t)
	ctx := context.Background()

	_, _, err := svc.RequestCall(ctx, &CallRequest{UserID: "u1"})
	assert.ErrorIs(t, err, ErrInvalidIncidence)

	existing, err := svc.Create(ctx, &IncidenceCreateRequest{UserID: "u1"})
	require.NoError(t, err)
	inc, created, err := svc.RequestCall(ctx, &CallRequest{UserID: "u1", Phone: "+919999999999", IncidenceID: existing.ID})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, inc.ID)
	assert.Equal(t, models.ChannelCall, inc.Channel)

	timeline, err := svc.GetTimeline(ctx, existing.ID)
	require.NoError(t, err)
	require.Len(t, timeline, 1)
	assert.Equal(t, models.TimelineCallRequested, timeline[0].EventType)
	assert.Equal(t, models.ActorUser, timeline[0].Actor)
	assert.Equal(t, "User requested a call back to +919999999999", timeline[0].Content)

	fresh, created, err := svc.RequestCall(ctx, &CallRequest{UserID: "u2", Phone: "12345", IncidenceID: "missing", CartValue: 30000})
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, existing.ID, fresh.ID)
	assert.Equal(t, models.ChannelCall, fresh.Channel)

	pending, err := svc.PendingCalls(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)
}
