package push

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notificationEvent(t *testing.T, kind NotificationKind, message string) Event {
	t.Helper()
	data, err := json.Marshal(Notification{Kind: kind, Message: message})
	require.NoError(t, err)
	return Event{Type: EventNotification, Data: data}
}

func TestRouterDispatchesInRegistrationOrder(t *testing.T) {
	router := NewRouter()
	var order []string
	router.On(EventNotification, func(Event) { order = append(order, "first") })
	router.On(EventNotification, func(Event) { order = append(order, "second") })
	router.On(EventNotification, func(Event) { order = append(order, "third") })

	router.Dispatch(notificationEvent(t, NoticeInfo, "hello"))

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRouterIgnoresOtherEventTypes(t *testing.T) {
	router := NewRouter()
	calls := 0
	router.On(EventProcessingStatus, func(Event) { calls++ })

	router.Dispatch(notificationEvent(t, NoticeInfo, "hello"))

	assert.Zero(t, calls)
}

func TestSubscriptionOffIsIdempotent(t *testing.T) {
	router := NewRouter()
	calls := 0
	sub := router.On(EventNotification, func(Event) { calls++ })

	sub.Off()
	require.NotPanics(t, func() { sub.Off() })
	require.NotPanics(t, func() { router.Off(sub) })

	router.Dispatch(notificationEvent(t, NoticeInfo, "hello"))
	assert.Zero(t, calls)
}

func TestOffDetachesOnlyItsHandler(t *testing.T) {
	router := NewRouter()
	var survivor, detached int
	keep := router.On(EventNotification, func(Event) { survivor++ })
	drop := router.On(EventNotification, func(Event) { detached++ })

	drop.Off()
	router.Dispatch(notificationEvent(t, NoticeSuccess, "done"))

	assert.Equal(t, 1, survivor)
	assert.Zero(t, detached)
	keep.Off()
}

func TestHandlerMayDetachDuringDispatch(t *testing.T) {
	router := NewRouter()
	var sub Subscription
	calls := 0
	sub = router.On(EventNotification, func(Event) {
		calls++
		sub.Off()
	})

	router.Dispatch(notificationEvent(t, NoticeInfo, "one"))
	router.Dispatch(notificationEvent(t, NoticeInfo, "two"))

	assert.Equal(t, 1, calls)
}

func TestZeroSubscriptionOffIsSafe(t *testing.T) {
	var sub Subscription
	require.NotPanics(t, func() { sub.Off() })
}

func TestEventPayloadDecoding(t *testing.T) {
	router := NewRouter()
	got := make(chan ProcessingStatus, 1)
	router.On(EventProcessingStatus, func(e Event) {
		status, err := e.ProcessingStatus()
		require.NoError(t, err)
		got <- status
	})

	router.Dispatch(Event{
		Type: EventProcessingStatus,
		Data: json.RawMessage(`{"status":"completed","document_name":"doc.pdf"}`),
	})

	status := <-got
	assert.Equal(t, ProcessingCompleted, status.Status)
	assert.Equal(t, "doc.pdf", status.DocumentName)
}
