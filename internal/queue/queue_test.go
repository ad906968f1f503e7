package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

func TestNewListingQueue(t *testing.T) {
	q := NewListingQueue(10, logrus.New())
	assert.NotNil(t, q)
	assert.Equal(t, 10, q.maxSize)
	assert.False(t, q.IsClosed())
}

func TestListingQueue_TryPush(t *testing.T) {
	q := NewListingQueue(2, logrus.New())

	err := q.TryPush(&models.Listing{ID: 1})
	assert.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	_ = q.TryPush(&models.Listing{ID: 2})
	err = q.TryPush(&models.Listing{ID: 3})
	assert.Equal(t, ErrQueueFull, err)

	require.NoError(t, q.Close())
	err = q.TryPush(&models.Listing{ID: 4})
	assert.Equal(t, ErrQueueClosed, err)
}

func TestListingQueue_PushBlocksUntilCancelled(t *testing.T) {
	q := NewListingQueue(1, logrus.New())
	require.NoError(t, q.Push(context.Background(), &models.Listing{ID: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := q.Push(ctx, &models.Listing{ID: 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListingQueue_CloseDrains(t *testing.T) {
	q := NewListingQueue(4, logrus.New())

	var mu sync.Mutex
	var seen []int64
	q.Subscribe(func(l *models.Listing) error {
		mu.Lock()
		seen = append(seen, l.ID)
		mu.Unlock()
		return nil
	})
	q.Start()

	for i := int64(1); i <= 20; i++ {
		require.NoError(t, q.Push(context.Background(), &models.Listing{ID: i}))
	}
	require.NoError(t, q.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 20)
	assert.Equal(t, int64(1), seen[0])
	assert.Equal(t, int64(20), seen[19])
}

func TestListingQueue_Close(t *testing.T) {
	q := NewListingQueue(10, logrus.New())

	assert.NoError(t, q.Close())
	assert.True(t, q.IsClosed())

	// second close is a no-op
	assert.NoError(t, q.Close())
}

func TestListingQueue_MultipleHandlers(t *testing.T) {
	q := NewListingQueue(10, logrus.New())

	var wg sync.WaitGroup
	var mu sync.Mutex
	handled := 0
	for i := 0; i < 3; i++ {
		wg.Add(1)
		q.Subscribe(func(*models.Listing) error {
			mu.Lock()
			handled++
			mu.Unlock()
			wg.Done()
			return nil
		})
	}
	q.Start()

	require.NoError(t, q.Push(context.Background(), &models.Listing{ID: 7}))
	wg.Wait()

	mu.Lock()
	assert.Equal(t, 3, handled)
	mu.Unlock()
	require.NoError(t, q.Close())
}
