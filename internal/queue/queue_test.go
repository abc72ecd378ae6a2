package queue

import (
    "sync"
    "testing"
    "time"

    "github.com/sirupsen/logrus"
    "github.com/stretchr/testify/assert"

    "flipradar/server/internal/models"
)

func TestNewOpportunityQueue(t *testing.T) {
    logger := logrus.New()
    q := NewOpportunityQueue(10, logger)
    assert.NotNil(t, q)
    assert.Equal(t, 10, q.maxSize)
    assert.False(t, q.IsClosed())
}

func TestOpportunityQueue_Push(t *testing.T) {
    logger := logrus.New()
    q := NewOpportunityQueue(2, logger)

    // Test successful push
    opp := &models.Opportunity{ID: "opp-1"}
    err := q.Push(opp)
    assert.NoError(t, err)
    assert.Equal(t, 1, q.Len())

    // Test queue full
    for i := 0; i < 2; i++ {
        _ = q.Push(&models.Opportunity{ID: "filler"})
    }
    err = q.Push(opp)
    assert.Equal(t, ErrQueueFull, err)

    // Test closed queue
    q.Close()
    err = q.Push(opp)
    assert.Equal(t, ErrQueueClosed, err)
}

func TestOpportunityQueue_Subscribe(t *testing.T) {
    logger := logrus.New()
    q := NewOpportunityQueue(10, logger)

    var processed []*models.Opportunity
    var mu sync.Mutex

    // Add handler
    q.Subscribe(func(opp *models.Opportunity) error {
        mu.Lock()
        processed = append(processed, opp)
        mu.Unlock()
        return nil
    })

    // Start queue
    q.Start()

    // Push items
    err := q.Push(&models.Opportunity{ID: "opp-1"})
    assert.NoError(t, err)
    err = q.Push(&models.Opportunity{ID: "opp-2"})
    assert.NoError(t, err)

    // Wait for processing
    time.Sleep(100 * time.Millisecond)

    // Verify processing
    mu.Lock()
    assert.Equal(t, 2, len(processed))
    assert.Equal(t, "opp-1", processed[0].ID)
    assert.Equal(t, "opp-2", processed[1].ID)
    mu.Unlock()
}

func TestOpportunityQueue_Close(t *testing.T) {
    logger := logrus.New()
    q := NewOpportunityQueue(10, logger)

    // Test first close
    err := q.Close()
    assert.NoError(t, err)
    assert.True(t, q.IsClosed())

    // Test second close (should be no-op)
    err = q.Close()
    assert.NoError(t, err)
}

func TestOpportunityQueue_Dispatch(t *testing.T) {
    logger := logrus.New()
    q := NewOpportunityQueue(10, logger)

    var wg sync.WaitGroup
    notified := 0
    var mu sync.Mutex

    // Add multiple handlers
    for i := 0; i < 3; i++ {
        wg.Add(1)
        q.Subscribe(func(opp *models.Opportunity) error {
            mu.Lock()
            notified++
            mu.Unlock()
            wg.Done()
            return nil
        })
    }

    // Start queue
    q.Start()

    // Push an opportunity
    err := q.Push(&models.Opportunity{ID: "opp-1"})
    assert.NoError(t, err)

    // Wait for all handlers
    wg.Wait()

    // Verify all handlers saw the opportunity
    mu.Lock()
    assert.Equal(t, 3, notified)
    mu.Unlock()
}

func TestOpportunityQueue_ConcurrentPushAndClose(t *testing.T) {
    logger := logrus.New()
    q := NewOpportunityQueue(4, logger)

    // Pushers hammer the queue while it is closed underneath them;
    // they must only ever observe ErrQueueFull or ErrQueueClosed,
    // never a send on a closed channel.
    var wg sync.WaitGroup
    for i := 0; i < 8; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for {
                err := q.Push(&models.Opportunity{ID: "opp"})
                if err == ErrQueueClosed {
                    return
                }
                if err != nil && err != ErrQueueFull {
                    t.Errorf("unexpected push error: %v", err)
                    return
                }
            }
        }()
    }

    time.Sleep(10 * time.Millisecond)
    assert.NoError(t, q.Close())
    wg.Wait()
}
