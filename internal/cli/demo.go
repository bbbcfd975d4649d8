package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/steer-ml/steer/control"
	"github.com/steer-ml/steer/tokenizer"
)

var demoChildren uint32

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run the fork-vote controller against an in-memory environment",
	Run: func(_ *cobra.Command, _ []string) {
		env, err := demoEnv()
		if err != nil {
			exitErr("build environment", err)
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		rt := control.NewRuntime(env, control.WithLogger(control.NewLogger(os.Stderr, level)))

		helper := rt.NewHelper()
		ctrl := control.NewVoteController(helper, env.TokenizeBytes, demoChildren)
		seq := rt.Spawn(ctrl, env.TokenizeBytes([]byte("ballot: ")))

		// Deterministic sampler: lowest allowed id.
		sample := func(_ control.SeqID, v *control.BiasVector) (tokenizer.TokenID, error) {
			for id := uint32(0); int(id) < v.Size(); id++ {
				if v.IsAllowed(id) {
					return id, nil
				}
			}
			return 0, fmt.Errorf("empty bias")
		}

		if err := rt.Run(context.Background(), seq, sample); err != nil {
			exitErr("run", err)
		}

		history, err := rt.History(seq)
		if err != nil {
			exitErr("history", err)
		}
		trie := env.Trie()
		var out []byte
		for _, id := range history {
			out = append(out, trie.TokenBytes(id)...)
		}
		fmt.Printf("rank 0 history: %q\n", out)

		if tally, ok := rt.Store().Read("tally"); ok {
			fmt.Printf("tally (version %d): %q\n", tally.Version, tally.Data)
		}
	},
}

// demoEnv builds a byte-level static environment covering ASCII, with one
// registered special token for end-of-sequence.
func demoEnv() (tokenizer.Env, error) {
	tokens := make([][]byte, 256)
	for i := 0; i < 255; i++ {
		tokens[i] = []byte{byte(i)}
	}
	// Slot 255 stays reserved: its byte value is the special-token marker.
	return tokenizer.NewStatic(tokenizer.StaticConfig{
		Tokens:        tokens,
		EOS:           256,
		SpecialTokens: map[string]tokenizer.TokenID{"<eos>": 256},
		Fallback:      tokenizer.ByteFallback(tokens),
	})
}

func init() {
	demoCmd.Flags().Uint32Var(&demoChildren, "children", 3, "Number of forked voters")
	RootCmd.AddCommand(demoCmd)
}
