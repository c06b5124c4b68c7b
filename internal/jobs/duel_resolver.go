package jobs

import (
	"context"
	"errors"
	"log"
	"time"

	"duel-arena/internal/services"
)

// DuelResolver periodically advances running duels: it activates duels whose
// countdown has elapsed and settles duels whose active window is over.
type DuelResolver struct {
	duelService *services.DuelService
	interval    time.Duration
	batchSize   int
	stopChan    chan struct{}
	doneChan    chan struct{}
}

func NewDuelResolver(duelService *services.DuelService, interval time.Duration) *DuelResolver {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &DuelResolver{
		duelService: duelService,
		interval:    interval,
		batchSize:   100,
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
	}
}

func (r *DuelResolver) Start() {
	log.Printf("[DuelResolver] Starting with interval %s", r.interval)
	go r.run()
}

func (r *DuelResolver) Stop() {
	close(r.stopChan)
	<-r.doneChan
	log.Printf("[DuelResolver] Stopped")
}

func (r *DuelResolver) run() {
	defer close(r.doneChan)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.resolvePass()
		}
	}
}

// resolvePass walks the running duels once. Conflicts are expected noise
// here: a duel can be advanced by a claim or a concurrent pass between the
// query and the transition.
func (r *DuelResolver) resolvePass() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	duels, err := r.duelService.GetRunningDuels(ctx, r.batchSize)
	if err != nil {
		log.Printf("[DuelResolver] failed to list running duels: %v", err)
		return
	}

	now := time.Now()
	for _, duel := range duels {
		due, activateOnly := r.duelService.DueAction(duel, now)
		if !due {
			continue
		}

		if activateOnly {
			if err := r.duelService.ActivateDuel(ctx, duel.ID); err != nil && !errors.Is(err, services.ErrStateConflict) {
				log.Printf("[DuelResolver] activation of duel %s failed: %v", duel.ID, err)
			}
			continue
		}

		if _, err := r.duelService.AutoResolveDuel(ctx, duel.ID); err != nil && !errors.Is(err, services.ErrStateConflict) {
			log.Printf("[DuelResolver] resolution of duel %s failed: %v", duel.ID, err)
		}
	}
}
