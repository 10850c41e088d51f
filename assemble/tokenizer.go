package assemble

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter reports how many tokens a piece of text costs against the
// context budget.
type TokenCounter interface {
	CountTokens(text string) int
}

// Estimator is a character-count-based token counter. It distinguishes
// CJK and ASCII characters for better accuracy than a naive len/4.
type Estimator struct{}

// NewEstimator creates the default heuristic counter.
func NewEstimator() *Estimator {
	return &Estimator{}
}

func (e *Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}

	totalChars := utf8.RuneCountInString(text)
	cjkCount := 0
	for _, r := range text {
		if isCJK(r) {
			cjkCount++
		}
	}

	// CJK characters ~1.5 chars/token, ASCII ~4 chars/token.
	estimated := int(float64(cjkCount)/1.5 + float64(totalChars-cjkCount)/4.0)
	if estimated == 0 {
		estimated = 1
	}
	return estimated
}

// Tiktoken counts tokens with the exact BPE encoding of OpenAI-family
// models. The encoding initializes lazily because tiktoken may download
// vocabulary data on first use; if that fails the counter degrades to the
// heuristic estimator rather than blocking assembly.
type Tiktoken struct {
	encoding string
	fallback *Estimator

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktoken creates a counter for the given tiktoken encoding name,
// such as "cl100k_base" or "o200k_base".
func NewTiktoken(encoding string) *Tiktoken {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &Tiktoken{
		encoding: encoding,
		fallback: NewEstimator(),
	}
}

// NewTiktokenForModel creates a counter using the encoding registered for
// the model name, falling back to cl100k_base for unknown models.
func NewTiktokenForModel(model string) *Tiktoken {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		return NewTiktoken("")
	}
	t := NewTiktoken("")
	t.once.Do(func() { t.enc = enc })
	return t
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = err
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Init forces the lazy encoding load. Call it at startup (the assembler's
// WarmUp does) so the first count does not pay for a vocabulary download.
func (t *Tiktoken) Init() error {
	return t.init()
}

func (t *Tiktoken) CountTokens(text string) int {
	if err := t.init(); err != nil {
		return t.fallback.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x20000 && r <= 0x2A6DF) ||
		(r >= 0xF900 && r <= 0xFAFF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}
