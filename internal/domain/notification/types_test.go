package notification

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidSubjectID(t *testing.T) {
	assert.True(t, ValidSubjectID(uuid.NewString()))
	assert.False(t, ValidSubjectID(""))
	assert.False(t, ValidSubjectID("abc"))
	// uuid.Parse accepts the braced and urn forms; the gate does not.
	assert.False(t, ValidSubjectID("urn:uuid:"+uuid.NewString()))
}

func TestChannelKeyAndFilter(t *testing.T) {
	id := "0b8c2c1e-9f55-4a34-8f0e-3d0f7c1c2a10"
	assert.Equal(t, "notifications-channel-for-"+id, ChannelKey(id))
	assert.Equal(t, "user_id=eq."+id, Filter(id))
}

func TestNewPayload(t *testing.T) {
	id := uuid.NewString()
	p, err := NewPayload(id, " Booking ", "approved", KindBooking)
	require.NoError(t, err)
	assert.Equal(t, "Booking", p.Title)
	assert.Equal(t, PriorityNormal, p.Priority)

	_, err = NewPayload("nope", "t", "m", KindInfo)
	require.Error(t, err)
	_, err = NewPayload(id, "", "m", KindInfo)
	require.Error(t, err)
	_, err = NewPayload(id, "t", "m", Kind("spam"))
	require.Error(t, err)
}

func TestNewNotification_Defaults(t *testing.T) {
	n, err := NewNotification(Notification{ID: "n1", Title: "t"})
	require.NoError(t, err)
	assert.Equal(t, KindInfo, n.Kind)
	assert.Equal(t, PriorityNormal, n.Priority)

	_, err = NewNotification(Notification{ID: "n1", Title: "t", Priority: "critical"})
	require.Error(t, err)
	_, err = NewNotification(Notification{Title: "t"})
	require.Error(t, err)
}

func TestParseFilter(t *testing.T) {
	id := uuid.NewString()
	got, err := ParseFilter(Filter(id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	for _, bad := range []string{"", "user_id=" + id, "owner=eq." + id, "user_id=eq.nope"} {
		_, err := ParseFilter(bad)
		assert.Error(t, err, bad)
	}
}

func TestDecode_RowJSON(t *testing.T) {
	payload := []byte(`{
		"id": "5d7d0c1c-4c1e-4f7e-9a49-0f6b0c7b1a11",
		"user_id": "0b8c2c1e-9f55-4a34-8f0e-3d0f7c1c2a10",
		"title": "Quiz published",
		"message": "Quiz 3 is open",
		"type": "quiz",
		"priority": "high",
		"related_table": "quizzes",
		"related_id": "42",
		"is_read": false,
		"is_push_sent": false,
		"is_email_sent": false,
		"read_at": null,
		"created_at": "2024-05-01T10:00:00.123456+00:00"
	}`)

	n, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, "Quiz published", n.Title)
	assert.Equal(t, KindQuiz, n.Kind)
	assert.Equal(t, PriorityHigh, n.Priority)
	require.NotNil(t, n.RelatedTable)
	assert.Equal(t, "quizzes", *n.RelatedTable)
	assert.Nil(t, n.ReadAt)
	assert.Equal(t, 2024, n.CreatedAt.Year())

	_, err = Decode([]byte(`{"id": 1}`))
	require.Error(t, err)
	_, err = Decode([]byte(`{"id": "x", "title": ""}`))
	require.Error(t, err)
}

func TestUnreadCount(t *testing.T) {
	list := []Notification{{ID: "1"}, {ID: "2", Read: true}, {ID: "3"}}
	assert.Equal(t, 2, UnreadCount(list))
	assert.Equal(t, 0, UnreadCount(nil))
}
