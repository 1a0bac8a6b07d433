package grammar

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var keywordsYAML []byte

// keywordFile is the on-disk shape of a keyword resource: dialect → words.
// The "common" entry applies to every dialect.
type keywordFile map[string][]string

var (
	builtinOnce sync.Once
	builtin     keywordFile
	builtinErr  error
)

// Keywords is an immutable, case-insensitive set of reserved words.
type Keywords struct {
	words map[string]struct{}
}

// NewKeywords builds a keyword set from the given words.
func NewKeywords(words ...string) *Keywords {
	k := &Keywords{words: make(map[string]struct{}, len(words))}
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			k.words[w] = struct{}{}
		}
	}
	return k
}

// Contains reports whether word is reserved.
func (k *Keywords) Contains(word string) bool {
	if k == nil {
		return false
	}
	_, ok := k.words[strings.ToLower(word)]
	return ok
}

// Len returns the number of reserved words.
func (k *Keywords) Len() int {
	if k == nil {
		return 0
	}
	return len(k.words)
}

// Words returns the reserved words in sorted order.
func (k *Keywords) Words() []string {
	if k == nil {
		return nil
	}
	out := make([]string, 0, len(k.words))
	for w := range k.words {
		out = append(out, w)
	}
	slices.Sort(out)
	return out
}

// LoadKeywords returns the built-in reserved words of a dialect.
func LoadKeywords(d Dialect) (*Keywords, error) {
	builtinOnce.Do(func() {
		builtin, builtinErr = decodeKeywords(keywordsYAML)
	})
	if builtinErr != nil {
		return nil, fmt.Errorf("built-in keywords: %w", builtinErr)
	}
	return builtin.forDialect(d), nil
}

// LoadKeywordsFile reads a keyword resource from disk and returns the words
// of one dialect.
func LoadKeywordsFile(path string, d Dialect) (*Keywords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keywords: %w", err)
	}
	kf, err := decodeKeywords(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return kf.forDialect(d), nil
}

func decodeKeywords(data []byte) (keywordFile, error) {
	var kf keywordFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse keywords: %w", err)
	}
	for name := range kf {
		if name == "common" {
			continue
		}
		if _, err := ParseDialect(name); err != nil {
			return nil, err
		}
	}
	return kf, nil
}

func (kf keywordFile) forDialect(d Dialect) *Keywords {
	words := append([]string{}, kf["common"]...)
	words = append(words, kf[string(d)]...)
	return NewKeywords(words...)
}
