package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Phil-Grim/london-properties-analysis/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// ListingQueue fans normalized listings from crawl workers into subscribed handlers.
type ListingQueue struct {
	items    chan *models.Listing
	drained  chan struct{}
	maxSize  int
	closed   bool
	started  bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []func(*models.Listing) error
}

// NewListingQueue creates a new listing queue with the specified buffer size
func NewListingQueue(bufferSize int, logger *logrus.Logger) *ListingQueue {
	if logger == nil {
		logger = logrus.New()
	}
	return &ListingQueue{
		items:    make(chan *models.Listing, bufferSize),
		drained:  make(chan struct{}),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]func(*models.Listing) error, 0),
	}
}

// Push adds a listing, waiting for buffer space until ctx is done.
func (q *ListingQueue) Push(ctx context.Context, listing *models.Listing) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- listing:
		q.logger.WithField("listing_id", listing.ID).Debug("Pushed listing to queue")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPush adds a listing without blocking.
func (q *ListingQueue) TryPush(listing *models.Listing) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- listing:
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler function that will be called for each listing
func (q *ListingQueue) Subscribe(handler func(*models.Listing) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins processing items in the queue. Handlers subscribed after
// Start are not called.
func (q *ListingQueue) Start() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	handlers := append([]func(*models.Listing) error(nil), q.handlers...)
	go q.process(handlers)
}

func (q *ListingQueue) process(handlers []func(*models.Listing) error) {
	defer close(q.drained)
	for listing := range q.items {
		q.dispatch(handlers, listing)
	}
}

func (q *ListingQueue) dispatch(handlers []func(*models.Listing) error, listing *models.Listing) {
	for _, handler := range handlers {
		if err := handler(listing); err != nil {
			q.logger.WithError(err).WithField("listing_id", listing.ID).Error("Handler failed to process listing")
		}
	}
}

// Close stops accepting listings and, if the queue was started, waits
// until every buffered listing has been handled.
func (q *ListingQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.items)
	started := q.started
	q.mu.Unlock()

	if started {
		<-q.drained
	}
	return nil
}

// Len returns the current number of buffered listings
func (q *ListingQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *ListingQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
