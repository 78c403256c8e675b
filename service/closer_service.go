package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/verivote/dreip-node/authority"
	"github.com/verivote/dreip-node/log"
)

// ElectionCloser is a service that periodically closes elections whose end
// time has passed, revealing their tallies. An election closed here behaves
// exactly as one closed on demand through the authority.
type ElectionCloser struct {
	authority *authority.Authority
	interval  time.Duration
	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewElectionCloser creates a new ElectionCloser service instance.
// The interval parameter specifies how often the service checks for
// elections to close.
func NewElectionCloser(auth *authority.Authority, interval time.Duration) *ElectionCloser {
	return &ElectionCloser{
		authority: auth,
		interval:  interval,
	}
}

// Start begins the closer service. It returns an error if the service
// is already running.
func (ec *ElectionCloser) Start(ctx context.Context) error {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.cancel != nil {
		return fmt.Errorf("service already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	ec.cancel = cancel

	ec.wg.Add(1)
	go ec.monitorElections(ctx)

	log.Infow("election closer started", "interval", ec.interval.String())
	return nil
}

// Stop halts the closer service and waits for the monitor goroutine to exit.
func (ec *ElectionCloser) Stop() {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.cancel != nil {
		ec.cancel()
		ec.cancel = nil
		ec.wg.Wait()
		log.Infow("election closer stopped")
	}
}

func (ec *ElectionCloser) monitorElections(ctx context.Context) {
	defer ec.wg.Done()
	ticker := time.NewTicker(ec.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ec.closeExpired()
		}
	}
}

// closeExpired scans the stored elections and closes every open one whose
// end time has passed. A close racing with a manual close is not an error.
func (ec *ElectionCloser) closeExpired() {
	ids, err := ec.authority.Storage().ListElections()
	if err != nil {
		log.Warnw("could not list elections", "error", err)
		return
	}
	now := time.Now()
	for _, id := range ids {
		election, err := ec.authority.Storage().Election(id)
		if err != nil {
			log.Warnw("could not load election", "election", id.String(), "error", err)
			continue
		}
		if election.Closed || now.Before(election.EndTime) {
			continue
		}
		if err := ec.authority.CloseElection(id, false); err != nil {
			if errors.Is(err, authority.ErrStateConflict) {
				continue
			}
			log.Warnw("could not close election", "election", id.String(), "error", err)
			continue
		}
		log.Infow("election closed by end-time monitor", "election", id.String())
	}
}
