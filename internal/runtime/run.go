package runtime

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/steer-ml/steer/internal/bias"
	"github.com/steer-ml/steer/internal/control"
	"github.com/steer-ml/steer/internal/toktrie"
)

// SampleFunc picks the next token for a sequence under its bias
// constraint. It must never return a token whose bias bit is false.
type SampleFunc func(id control.SeqID, v *bias.Vector) (toktrie.TokenID, error)

// Run drives one sequence to termination: it loops the event/decision
// cycle, samples through the given function on SampleWithBias, applies
// splices, fans forks out onto concurrently driven child sequences, and
// parks on WaitAll until the conjunction holds. It returns when the
// sequence and every child transitively forked from it have stopped.
func (r *Runtime) Run(ctx context.Context, id control.SeqID, sample SampleFunc) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return r.drive(ctx, g, id, sample, nil)
	})
	return g.Wait()
}

// drive loops one sequence. A non-nil first decision resumes a child that
// already received its ForkGroup event.
func (r *Runtime) drive(ctx context.Context, g *errgroup.Group, id control.SeqID,
	sample SampleFunc, first control.Decision) error {
	var tokens []toktrie.TokenID
	d := first
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d == nil {
			var err error
			d, err = r.Step(id, tokens)
			if err != nil {
				return err
			}
		}

		switch dec := d.(type) {
		case control.Stop:
			return nil

		case control.SampleWithBias:
			v, err := r.Bias(id)
			if err != nil {
				return err
			}
			t, err := sample(id, v)
			if err != nil {
				return err
			}
			tokens = []toktrie.TokenID{t}

		case control.Splice:
			// The backtrack is already applied; the next Append echoes
			// the fast-forward tokens back to the controller.
			tokens = dec.FFTokens

		case control.Fork:
			group, err := r.ResumeFork(id)
			if err != nil {
				return err
			}
			for _, cid := range group[1:] {
				cid := cid
				cd, err := r.StepFork(cid, group)
				if err != nil {
					return err
				}
				g.Go(func() error {
					return r.drive(ctx, g, cid, sample, cd)
				})
			}
			next, err := r.StepFork(id, group)
			if err != nil {
				return err
			}
			d = next
			continue

		case control.WaitAll:
			if err := r.await(ctx, dec); err != nil {
				return err
			}
			tokens = nil
		}
		d = nil
	}
}

// await blocks the driver (never the core) until a WaitAll conjunction
// holds. The core itself is only re-invoked afterwards, so the sequence is
// woken by re-invocation exactly as the host contract demands.
func (r *Runtime) await(ctx context.Context, w control.WaitAll) error {
	for {
		ch := r.waitChan()
		if r.waitSatisfied(w) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}
