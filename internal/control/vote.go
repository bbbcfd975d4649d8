package control

import (
	"fmt"

	"github.com/steer-ml/steer/internal/store"
	"github.com/steer-ml/steer/internal/toktrie"
)

// votePhase tracks the vote policy through its lifecycle.
type votePhase uint8

const (
	voteInit votePhase = iota
	voteForked
	voteWaiting
	voteSpliced
)

// VoteController forks a sequence into ranked children that each cast a
// vote through the shared variable store, then has rank 0 wait for all of
// them and splice the tally into its own history. It exercises every
// cross-sequence primitive: fork fan-out, compare-and-swap writes, WaitAll
// and splice.
//
// Children append their ballot to the shared "tally" variable with a CAS
// retry loop, then publish a per-rank "vote.<rank>" variable and stop.
// Rank 0 waits on every vote variable and every child sequence, reads the
// tally and fast-forwards it into history.
type VoteController struct {
	helper   *Helper
	encode   toktrie.EncodeFunc
	children uint32
	rank     uint32
	group    []SeqID
	phase    votePhase
}

// NewVoteController creates the rank-0 instance. encode turns the final
// tally bytes into tokens for the splice.
func NewVoteController(helper *Helper, encode toktrie.EncodeFunc, children uint32) *VoteController {
	return &VoteController{
		helper:   helper,
		encode:   encode,
		children: children,
	}
}

// InitPrompt ignores the prompt.
func (c *VoteController) InitPrompt(_ []toktrie.TokenID) {}

// Helper returns the controller's working state.
func (c *VoteController) Helper() *Helper {
	return c.helper
}

// ForkChild implements Forker. The child shares the policy configuration
// but gets its own helper and rank.
func (c *VoteController) ForkChild(rank uint32) Controller {
	return &VoteController{
		helper:   c.helper.Clone(),
		encode:   c.encode,
		children: c.children,
		rank:     rank,
		phase:    voteInit,
	}
}

// Process implements Controller.
func (c *VoteController) Process(ev Event) Decision {
	switch ev := ev.(type) {
	case Append:
		return c.processAppend(ev)
	case ForkGroup:
		return c.processFork(ev)
	default:
		return Stop{}
	}
}

func (c *VoteController) processAppend(_ Append) Decision {
	switch c.phase {
	case voteInit:
		if c.children < 2 {
			// Nothing to coordinate with; degenerate single-voter run.
			c.group = []SeqID{c.helper.SeqID()}
			c.castBallot()
			return c.spliceTally()
		}
		return Fork{NumChildren: c.children}
	case voteSpliced:
		// Echo of our own splice.
		return Stop{}
	default:
		return Stop{}
	}
}

func (c *VoteController) processFork(ev ForkGroup) Decision {
	switch c.phase {
	case voteInit:
		c.group = ev.Group
		c.phase = voteForked
		c.castBallot()
		if c.rank != 0 {
			return Stop{}
		}
		c.phase = voteWaiting
		vars := make([]string, 0, len(c.group)-1)
		for rank := 1; rank < len(c.group); rank++ {
			vars = append(vars, voteVar(uint32(rank)))
		}
		return WaitAll{Variables: vars, Finished: c.group[1:]}
	case voteWaiting:
		// Re-invoked once the conjunction holds.
		return c.spliceTally()
	default:
		return Stop{}
	}
}

// castBallot appends this rank's ballot to the shared tally with a CAS
// retry loop, then publishes the per-rank vote variable. Exactly one racing
// appender wins each version; losers re-read and retry.
func (c *VoteController) castBallot() {
	st := c.helper.Storage()
	ballot := []byte(fmt.Sprintf("rank%d;", c.rank))

	for {
		cur, ok := st.ReadVar("tally")
		if !ok {
			// A CAS can never match a missing variable, so the first
			// writer appends unconditionally. Append is atomic, so
			// racing first writers cannot lose each other's ballot.
			res := st.WriteVar("tally", ballot, store.OpAppend, nil)
			if res.Written {
				break
			}
			continue
		}
		v := cur.Version
		res := st.WriteVar("tally", ballot, store.OpAppend, &v)
		if res.Written {
			break
		}
	}

	st.WriteVar(voteVar(c.rank), ballot, store.OpSet, nil)
}

func (c *VoteController) spliceTally() Decision {
	c.phase = voteSpliced
	cur, ok := c.helper.Storage().ReadVar("tally")
	if !ok || len(cur.Data) == 0 {
		return Stop{}
	}
	return Splice{Backtrack: 0, FFTokens: c.encode(cur.Data)}
}

func voteVar(rank uint32) string {
	return fmt.Sprintf("vote.%d", rank)
}
