package output_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/scriptrun/internal/model"
	"github.com/slok/scriptrun/internal/output"
)

func lines(texts ...string) []model.OutputLine {
	var ls []model.OutputLine
	for i, t := range texts {
		ls = append(ls, model.OutputLine{Seq: i + 1, Stream: model.StreamStdout, Text: t})
	}
	return ls
}

func texts(ls []model.OutputLine) []string {
	var ts []string
	for _, l := range ls {
		ts = append(ts, l.Text)
	}
	return ts
}

func TestTranscript(t *testing.T) {
	tests := map[string]struct {
		maxBytes     int
		lines        []model.OutputLine
		expTexts     []string
		expTruncated bool
		expDropped   int
	}{
		"Lines under the bound should be retained.": {
			maxBytes: 100,
			lines:    lines("a", "b", "c"),
			expTexts: []string{"a", "b", "c"},
		},

		"Lines over the bound should drop the oldest ones.": {
			maxBytes:     8,
			lines:        lines("aaa", "bbb", "ccc"),
			expTexts:     []string{"bbb", "ccc"},
			expTruncated: true,
			expDropped:   1,
		},

		"A single line bigger than the bound should be cut.": {
			maxBytes:     5,
			lines:        lines("abcdefgh"),
			expTexts:     []string{"abcd"},
			expTruncated: true,
		},

		"Cutting a line should not split runes.": {
			maxBytes:     4,
			lines:        lines("aéé"),
			expTexts:     []string{"aé"},
			expTruncated: true,
		},

		"Unbounded transcripts should keep everything.": {
			maxBytes: 0,
			lines:    lines(strings.Repeat("x", 1000), "y"),
			expTexts: []string{strings.Repeat("x", 1000), "y"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			tr := output.NewTranscript(test.maxBytes)
			for _, l := range test.lines {
				tr.Append(l)
			}

			assert.Equal(test.expTexts, texts(tr.Lines()))
			assert.Equal(test.expTruncated, tr.Truncated())
			assert.Equal(test.expDropped, tr.Dropped())
			if test.maxBytes > 0 {
				assert.LessOrEqual(tr.Bytes(), test.maxBytes)
			}
		})
	}
}

func TestTranscriptLongRunKeepsOrder(t *testing.T) {
	assert := assert.New(t)

	tr := output.NewTranscript(20)
	for i := 1; i <= 1000; i++ {
		tr.Append(model.OutputLine{Seq: i, Text: "1234"})
	}

	ls := tr.Lines()
	assert.Len(ls, 4)
	for i, l := range ls {
		assert.Equal(997+i, l.Seq)
	}
	assert.Equal(996, tr.Dropped())
}
