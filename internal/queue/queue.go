package queue

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"flipradar/server/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// OpportunityQueue is an in-memory queue of freshly discovered deals,
// decoupling the scanner loop from notification delivery
type OpportunityQueue struct {
	items    chan *models.Opportunity
	done     chan struct{}
	maxSize  int
	closed   bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []func(*models.Opportunity) error
}

// NewOpportunityQueue creates a new queue with the specified buffer size
func NewOpportunityQueue(bufferSize int, logger *logrus.Logger) *OpportunityQueue {
	return &OpportunityQueue{
		items:    make(chan *models.Opportunity, bufferSize),
		done:     make(chan struct{}),
		maxSize:  bufferSize,
		logger:   logger,
		handlers: make([]func(*models.Opportunity) error, 0),
	}
}

// Push adds an opportunity to the queue. The read lock is held across
// the send so a concurrent Close cannot close the channel mid-send.
func (q *OpportunityQueue) Push(opp *models.Opportunity) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	// Non-blocking send to prevent deadlocks
	select {
	case q.items <- opp:
		q.logger.WithField("opportunity_id", opp.ID).Debug("Pushed opportunity to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler function that will be called for each opportunity
func (q *OpportunityQueue) Subscribe(handler func(*models.Opportunity) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start begins processing items in the queue
func (q *OpportunityQueue) Start() {
	go q.process()
}

// process handles the queue processing loop
func (q *OpportunityQueue) process() {
	for {
		select {
		case <-q.done:
			return
		case opp := <-q.items:
			if opp == nil {
				return
			}
			q.dispatch(opp)
		}
	}
}

// dispatch sends the opportunity to all subscribed handlers
func (q *OpportunityQueue) dispatch(opp *models.Opportunity) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(opp); err != nil {
			q.logger.WithError(err).Error("Handler failed to process opportunity")
		}
	}
}

// Close stops the queue and prevents new items from being added
func (q *OpportunityQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}

	q.closed = true
	close(q.done)
	close(q.items)
	return nil
}

// Len returns the current number of opportunities in the queue
func (q *OpportunityQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *OpportunityQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
