package service

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTranscriptRetainsLastNLines(t *testing.T) {
	tr := newTranscript()
	for i := 0; i < transcriptLines+10; i++ {
		tr.add(strings.Repeat("x", 1)) // placeholder line
	}
	// Overwrite with identifiable content for the final few lines.
	tr.add("last-1")
	tr.add("last-2")

	text := tr.String()
	require.True(t, strings.HasSuffix(text, "last-1\nlast-2"))
}

func TestTranscriptPumpReaderCollectsLines(t *testing.T) {
	tr := newTranscript()
	var emitted []string
	scanner := bufio.NewScanner(strings.NewReader("one\ntwo\nthree\n"))
	tr.pumpReader(scanner, func(line string) { emitted = append(emitted, line) })

	require.Equal(t, []string{"one", "two", "three"}, emitted)
	require.Equal(t, "one\ntwo\nthree", tr.String())
}
