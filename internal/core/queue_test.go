package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOrder(t *testing.T) {
	q := NewQueue()
	q.Add(&Download{ID: 1, Status: StatusPaused})
	q.Add(&Download{ID: 2, Status: StatusPending})
	q.Add(&Download{ID: 3, Status: StatusPending})
	q.Add(&Download{ID: 2, Status: StatusPending})

	assert.Equal(t, 3, q.Len())

	next := q.Next()
	require.NotNil(t, next)
	assert.Equal(t, int64(2), next.ID)

	q.Remove(3)
	assert.Nil(t, q.Next())

	all := q.GetAll()
	require.Len(t, all, 1)
	assert.Equal(t, int64(1), all[0].ID)
}
