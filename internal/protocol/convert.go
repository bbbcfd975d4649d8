package protocol

import (
	"fmt"

	"github.com/steer-ml/steer/internal/control"
	"github.com/steer-ml/steer/internal/store"
	"github.com/steer-ml/steer/internal/toktrie"
)

// Event converts an inbound argument to a controller event.
func (a *ProcessArg) Event() (control.Event, error) {
	switch {
	case a.Append != nil:
		tokens := make([]toktrie.TokenID, len(a.Append.Tokens))
		copy(tokens, a.Append.Tokens)
		return control.Append{Tokens: tokens}, nil
	case a.Fork != nil:
		group := make([]control.SeqID, len(a.Fork.Group))
		for i, id := range a.Fork.Group {
			group[i] = control.SeqID(id)
		}
		return control.ForkGroup{Group: group}, nil
	default:
		return nil, fmt.Errorf("ProcessArg: no variant set")
	}
}

// ArgFromEvent converts a controller event to its wire form.
func ArgFromEvent(ev control.Event) (ProcessArg, error) {
	switch ev := ev.(type) {
	case control.Append:
		tokens := make([]uint32, len(ev.Tokens))
		copy(tokens, ev.Tokens)
		return ProcessArg{Append: &AppendArg{Tokens: tokens}}, nil
	case control.ForkGroup:
		group := make([]uint32, len(ev.Group))
		for i, id := range ev.Group {
			group[i] = uint32(id)
		}
		return ProcessArg{Fork: &ForkArg{Group: group}}, nil
	default:
		return ProcessArg{}, fmt.Errorf("unknown event type %T", ev)
	}
}

// ResultFromDecision converts a controller decision to its wire form.
func ResultFromDecision(d control.Decision) (ProcessResult, error) {
	switch d := d.(type) {
	case control.Stop:
		return ProcessResult{Stop: &StopResult{}}, nil
	case control.SampleWithBias:
		return ProcessResult{SampleWithBias: &SampleResult{}}, nil
	case control.Splice:
		ff := make([]uint32, len(d.FFTokens))
		copy(ff, d.FFTokens)
		return ProcessResult{Splice: &SpliceResult{Backtrack: d.Backtrack, FFTokens: ff}}, nil
	case control.Fork:
		return ProcessResult{Fork: &ForkResult{NumChildren: d.NumChildren}}, nil
	case control.WaitAll:
		finished := make([]uint32, len(d.Finished))
		for i, id := range d.Finished {
			finished[i] = uint32(id)
		}
		return ProcessResult{WaitAll: &WaitAllResult{Variables: d.Variables, Finished: finished}}, nil
	default:
		return ProcessResult{}, fmt.Errorf("unknown decision type %T", d)
	}
}

// Decision converts a wire result back to a controller decision.
func (r *ProcessResult) Decision() (control.Decision, error) {
	switch {
	case r.Stop != nil:
		return control.Stop{}, nil
	case r.SampleWithBias != nil:
		return control.SampleWithBias{}, nil
	case r.Splice != nil:
		ff := make([]toktrie.TokenID, len(r.Splice.FFTokens))
		copy(ff, r.Splice.FFTokens)
		return control.Splice{Backtrack: r.Splice.Backtrack, FFTokens: ff}, nil
	case r.Fork != nil:
		return control.Fork{NumChildren: r.Fork.NumChildren}, nil
	case r.WaitAll != nil:
		finished := make([]control.SeqID, len(r.WaitAll.Finished))
		for i, id := range r.WaitAll.Finished {
			finished[i] = control.SeqID(id)
		}
		return control.WaitAll{Variables: r.WaitAll.Variables, Finished: finished}, nil
	default:
		return nil, fmt.Errorf("ProcessResult: no variant set")
	}
}

// ExecStorage executes one storage command against a store and shapes the
// response per the command semantics.
func ExecStorage(s *store.Store, cmd StorageCmd) (StorageResp, error) {
	switch {
	case cmd.ReadVar != nil:
		v, ok := s.Read(cmd.ReadVar.Name)
		if !ok {
			return StorageResp{VariableMissing: &MissingResp{}}, nil
		}
		return StorageResp{ReadVar: &ReadVarResp{Version: v.Version, Value: v.Data}}, nil

	case cmd.WriteVar != nil:
		op, err := parseOp(cmd.WriteVar.Op)
		if err != nil {
			return StorageResp{}, err
		}
		res := s.Write(cmd.WriteVar.Name, cmd.WriteVar.Value, op, cmd.WriteVar.WhenVersionIs)
		if res.Written {
			return StorageResp{WriteVar: &WriteVarResp{Version: res.Version}}, nil
		}
		if !res.Exists {
			return StorageResp{VariableMissing: &MissingResp{}}, nil
		}
		return StorageResp{ReadVar: &ReadVarResp{Version: res.Current.Version, Value: res.Current.Data}}, nil

	default:
		return StorageResp{}, fmt.Errorf("StorageCmd: no variant set")
	}
}

func parseOp(op string) (store.Op, error) {
	switch op {
	case "Set":
		return store.OpSet, nil
	case "Append":
		return store.OpAppend, nil
	default:
		return 0, fmt.Errorf("StorageCmd: unknown op %q", op)
	}
}
