package registry

import (
	"clusterdir/internal/ports"
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// apply persists a sequence of write stages.
// On a ports.Transactional backend every op of every stage goes into one transaction, unless the
// backend caps transactions below the op count. Otherwise stages run in order, the ops of a stage run concurrently, and the first failure
// stops the sequence. Ops applied before the failure are not rolled back.
func apply(ctx context.Context, kv ports.KV, stages ...[]ports.Op) error {
	var all []ports.Op
	for _, st := range stages {
		all = append(all, st...)
	}
	if len(all) == 0 {
		return nil
	}
	if tx, ok := kv.(ports.Transactional); ok && len(all) > 1 {
		limit, capped := kv.(ports.TransactionLimiter)
		if !capped || len(all) <= limit.MaxTransactOps() {
			return tx.Transact(ctx, all...)
		}
		log.WithField("ops", len(all)).Warn("update exceeds the transaction limit, writing in stages")
	}

	applied := 0
	for _, st := range stages {
		if len(st) == 0 {
			continue
		}
		if err := applyConcurrently(ctx, kv, st); err != nil {
			if applied > 0 || len(st) > 1 {
				log.WithError(err).WithFields(log.Fields{
					"applied": applied,
					"total":   len(all),
				}).Warn("partial update; records may disagree until the operation is re-run")
			}
			return err
		}
		applied += len(st)
	}
	return nil
}

func applyConcurrently(ctx context.Context, kv ports.KV, ops []ports.Op) error {
	if len(ops) == 1 {
		return applyOne(ctx, kv, ops[0])
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, op := range ops {
		g.Go(func() error { return applyOne(gctx, kv, op) })
	}
	return g.Wait()
}

func applyOne(ctx context.Context, kv ports.KV, op ports.Op) error {
	switch op.Kind {
	case ports.OpDelete:
		return kv.Delete(ctx, op.Path)
	default:
		return kv.Write(ctx, op.Path, op.Record)
	}
}
