package jobs

import (
	"context"
	"log"
	"time"

	"duel-arena/internal/services"
)

// DuelExpiry sweeps PENDING duels past their join deadline into EXPIRED.
type DuelExpiry struct {
	duelService *services.DuelService
	interval    time.Duration
	stopChan    chan struct{}
	doneChan    chan struct{}
}

func NewDuelExpiry(duelService *services.DuelService, interval time.Duration) *DuelExpiry {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &DuelExpiry{
		duelService: duelService,
		interval:    interval,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

func (e *DuelExpiry) Start() {
	log.Printf("[DuelExpiry] Starting with interval %s", e.interval)
	go e.run()
}

func (e *DuelExpiry) Stop() {
	close(e.stopChan)
	<-e.doneChan
	log.Printf("[DuelExpiry] Stopped")
}

func (e *DuelExpiry) run() {
	defer close(e.doneChan)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if _, err := e.duelService.ExpirePendingDuels(ctx); err != nil {
				log.Printf("[DuelExpiry] sweep failed: %v", err)
			}
			cancel()
		}
	}
}
