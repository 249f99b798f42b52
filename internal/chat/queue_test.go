package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConversationQueue(t *testing.T) {
	q := newConversationQueue("sms:+1")
	q.Enqueue(Inbound{Text: "a"})
	q.Enqueue(Inbound{Text: "b"})
	assert.Equal(t, 2, q.Len())

	assert.True(t, q.TryLock())
	assert.False(t, q.TryLock())

	in, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "a", in.Text)
	assert.False(t, q.Unlock(), "pending messages keep the lock")

	_, ok = q.Dequeue()
	assert.True(t, ok)
	_, ok = q.Dequeue()
	assert.False(t, ok)

	assert.True(t, q.Unlock())
	assert.True(t, q.TryLock())
}
