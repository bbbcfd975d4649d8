package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/steer-ml/steer/tokenizer"
)

var (
	tokenizeEncoding string
	tokenizeEOS      uint32
	tokenizeSpecial  bool
)

var tokenizeCmd = &cobra.Command{
	Use:   "tokenize [text...]",
	Short: "Tokenize text through the trie with the tiktoken fallback",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		env, err := tokenizer.NewTiktoken(tokenizer.TiktokenConfig{
			Encoding: tokenizeEncoding,
			EOS:      tokenizer.TokenID(tokenizeEOS),
			SpecialTokens: map[string]tokenizer.TokenID{
				"<|endoftext|>": tokenizer.TokenID(tokenizeEOS),
			},
		})
		if err != nil {
			exitErr("build environment", err)
		}

		text := []byte(strings.Join(args, " "))
		var ids []tokenizer.TokenID
		if tokenizeSpecial {
			ids = env.TokenizeBytesPrefix(text)
		} else {
			ids = env.TokenizeBytes(text)
		}

		for i, id := range ids {
			if i > 0 {
				fmt.Print(" ")
			}
			fmt.Print(id)
		}
		fmt.Println()
	},
}

func init() {
	tokenizeCmd.Flags().StringVarP(&tokenizeEncoding, "encoding", "e", "cl100k_base", "Tiktoken encoding (cl100k_base, o200k_base)")
	tokenizeCmd.Flags().Uint32Var(&tokenizeEOS, "eos", 100257, "End-of-sequence token id")
	tokenizeCmd.Flags().BoolVar(&tokenizeSpecial, "special", false, "Honor marker-flagged special-token names")
	RootCmd.AddCommand(tokenizeCmd)
}
