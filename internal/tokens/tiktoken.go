package tokens

import (
	"context"
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is specified.
const DefaultEncoding = "cl100k_base"

// TiktokenMeasurer counts tokens with a local BPE encoding; no network calls
// are involved. The count is only as faithful as the encoding's match to the
// target model, but it is exact for that encoding.
type TiktokenMeasurer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenMeasurer loads the named encoding, or DefaultEncoding when empty.
func NewTiktokenMeasurer(encoding string) (*TiktokenMeasurer, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encoding, err)
	}
	return &TiktokenMeasurer{enc: enc}, nil
}

func (t *TiktokenMeasurer) Measure(_ context.Context, text string) (int, error) {
	return len(t.enc.Encode(text, nil, nil)), nil
}
