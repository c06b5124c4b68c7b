package services

import (
	"context"
	"log"
	"time"

	"duel-arena/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// StartMatching launches the matching worker pool. Workers drain the bounded
// queue and pair PENDING duels with equal stakes, oldest first.
func (s *DuelService) StartMatching(ctx context.Context) {
	if s.queueDone != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.stopQueue = cancel
	s.queueDone = make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.cfg.WorkerCount; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case item := <-s.matchQueue:
					s.matchOnce(gctx, item)
				}
			}
		})
	}

	go func() {
		defer close(s.queueDone)
		if err := g.Wait(); err != nil {
			log.Printf("[DuelMatching] worker pool exited with error: %v", err)
		}
	}()

	log.Printf("[DuelMatching] Started %d matching workers (queue capacity %d)",
		s.cfg.WorkerCount, s.cfg.QueueSize)
}

// StopMatching stops the worker pool and waits for in-flight matches.
func (s *DuelService) StopMatching() {
	if s.stopQueue == nil {
		return
	}
	s.stopQueue()
	<-s.queueDone
	s.stopQueue = nil
	s.queueDone = nil
	log.Printf("[DuelMatching] Matching workers stopped")
}

// enqueueMatch hands a new duel to the matching workers without blocking the
// request path. On overflow the item is dropped; the PENDING row stays
// joinable directly and is still visible to later matching passes.
func (s *DuelService) enqueueMatch(item models.DuelQueueItem) {
	select {
	case s.matchQueue <- item:
	default:
		log.Printf("[DuelMatching] queue full, dropping match request for duel %s", item.DuelUUID)
	}
}

// matchOnce pairs one queued duel against the oldest compatible PENDING duel
// from another player. Only duels strictly older than the requester's own are
// candidates, so when two players queue against each other both workers
// converge on the earlier duel and only the newer one acts. The requester's
// own row is retired before any counterparty claim: its stake moves to the
// matched duel as the player 2 deposit and must never back both rows at once.
func (s *DuelService) matchOnce(ctx context.Context, item models.DuelQueueItem) {
	own, err := s.repo.GetDuelByID(ctx, item.DuelUUID)
	if err != nil {
		log.Printf("[DuelMatching] failed to load queued duel %s: %v", item.DuelUUID, err)
		return
	}
	if own.Status != models.DuelStatusPending {
		// Joined, cancelled or expired while waiting in the queue.
		return
	}

	counterparty, err := s.repo.FindMatchingDuel(ctx, item.PlayerID, item.BetAmount, item.Symbol, own.ID, own.CreatedAt)
	if err != nil {
		log.Printf("[DuelMatching] match lookup failed for duel %s: %v", item.DuelUUID, err)
		return
	}
	if counterparty == nil {
		return
	}

	closed, err := s.repo.TransitionDuel(ctx, item.DuelUUID, models.DuelStatusPending, map[string]interface{}{
		"status":     models.DuelStatusCancelled,
		"updated_at": time.Now(),
	})
	if err != nil {
		log.Printf("[DuelMatching] failed to retire duel %s before matching: %v", item.DuelUUID, err)
		return
	}
	if !closed {
		// Someone joined the requester's row directly; its stake is spoken for.
		return
	}

	claimed, err := s.repo.ClaimPlayer2Slot(ctx, counterparty.ID, item.PlayerID, item.BetAmount)
	if err != nil {
		log.Printf("[DuelMatching] slot claim failed for duel %s: %v", counterparty.ID, err)
		s.reopenDuel(ctx, item.DuelUUID)
		return
	}
	if !claimed {
		// Raced: the counterparty was joined or cancelled in between.
		s.reopenDuel(ctx, item.DuelUUID)
		return
	}

	if err := s.startMatchedDuel(ctx, counterparty.ID, ""); err != nil {
		// The slot claim was rolled back; the counterparty is PENDING again.
		log.Printf("[DuelMatching] start of duel %s failed: %v", counterparty.ID, err)
		s.reopenDuel(ctx, item.DuelUUID)
		return
	}

	log.Printf("[DuelMatching] Matched duel %s: player %d vs player %d for %d lamports",
		counterparty.ID, counterparty.Player1ID, item.PlayerID, item.BetAmount)
}

// reopenDuel reverts a retired matching request so the duel is joinable again
// after a failed claim or start.
func (s *DuelService) reopenDuel(ctx context.Context, duelUUID uuid.UUID) {
	reopened, err := s.repo.TransitionDuel(ctx, duelUUID, models.DuelStatusCancelled, map[string]interface{}{
		"status":     models.DuelStatusPending,
		"updated_at": time.Now(),
	})
	if err != nil {
		log.Printf("[DuelMatching] failed to reopen duel %s: %v", duelUUID, err)
	} else if !reopened {
		log.Printf("[DuelMatching] duel %s left CANCELLED concurrently, leaving it", duelUUID)
	}
}
