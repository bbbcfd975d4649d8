// Package toktrie provides the vocabulary index for token-level control.
//
// The package implements:
//   - Vocabulary: the fixed ordered table of token byte-strings
//   - Trie: an immutable prefix trie over all non-empty vocabulary entries
//   - Greedy tokenization with an external encoder fallback
//   - Bias construction by pruned trie walks
//
// The trie is built once at environment construction as an arena of
// index-addressed nodes and is safe for concurrent read-only use by any
// number of controller instances.
//
// Example usage:
//
//	vocab, err := toktrie.NewVocabulary(tokens, eosID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trie := toktrie.New(vocab)
//
//	// Greedy tokenization with a fallback encoder
//	ids, err := trie.Tokenize([]byte("hello world"), fallback)
//
//	// Constrain the next token to continuations accepted by a predicate
//	trie.ComputeBias(func(b []byte) bool { return utf8.Valid(b) }, vec)
package toktrie
