package document

import (
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.perlls.io/perlls/ast"
)

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestPositionRoundTrip(t *testing.T) {
	t.Parallel()

	texts := []string{
		"plain ascii\nsecond line\n",
		"crlf line\r\nsecond\r\n",
		"unicode: héllo wörld\nsnowman ☃ here\n",
		"astral: 😀😀 emoji\nafter\n",
		"no trailing newline",
		"",
	}
	for i, text := range texts {
		text := text
		t.Run(fmt.Sprintf("text_%d", i), func(t *testing.T) {
			t.Parallel()
			doc := New("file:///t.pl", 1, text)
			for line := 0; line < len(doc.Lines); line++ {
				end := doc.LineEndOffset(line)
				for off := doc.Lines[line]; off <= end; off++ {
					if !isRuneStart(text, off) {
						continue
					}
					pos := doc.OffsetToPosition(off)
					back := doc.PositionToOffset(pos)
					require.Equal(t, off, back, "offset %d line %d", off, line)
					assert.Equal(t, pos, doc.OffsetToPosition(back))
				}
			}
		})
	}
}

func isRuneStart(s string, off int) bool {
	return off >= len(s) || (s[off]&0xC0) != 0x80
}

func TestPositionEdgeCases(t *testing.T) {
	t.Parallel()

	doc := New("file:///t.pl", 1, "ab\ncd\n")

	assert.Equal(t, 0, doc.PositionToOffset(Position{Line: -1, Character: 0}))
	assert.Equal(t, len(doc.Text), doc.PositionToOffset(Position{Line: 99, Character: 0}))
	// character past line end clamps to line end
	assert.Equal(t, 2, doc.PositionToOffset(Position{Line: 0, Character: 50}))

	assert.Equal(t, Position{Line: 0, Character: 0}, doc.OffsetToPosition(-5))
	assert.Equal(t, Position{Line: 2, Character: 0}, doc.OffsetToPosition(len(doc.Text)))
}

func TestUTF16Astral(t *testing.T) {
	t.Parallel()

	// 😀 is one rune, four UTF-8 bytes, two UTF-16 units
	doc := New("file:///t.pl", 1, "a😀b\n")
	assert.Equal(t, Position{Line: 0, Character: 0}, doc.OffsetToPosition(0))
	assert.Equal(t, Position{Line: 0, Character: 1}, doc.OffsetToPosition(1))
	assert.Equal(t, Position{Line: 0, Character: 3}, doc.OffsetToPosition(5))

	assert.Equal(t, 1, doc.PositionToOffset(Position{Line: 0, Character: 1}))
	assert.Equal(t, 5, doc.PositionToOffset(Position{Line: 0, Character: 3}))
	// a position splitting the surrogate pair does not advance past it
	assert.Equal(t, 1, doc.PositionToOffset(Position{Line: 0, Character: 2}))
}

func TestStoreVersionMonotonicity(t *testing.T) {
	t.Parallel()

	store := NewStore(discardLogger())
	store.Open("file:///a.pl", 1, "my $x = 1;")

	for v := int32(2); v <= 10; v++ {
		_, err := store.Change("file:///a.pl", v, fmt.Sprintf("my $x = %d;", v))
		require.NoError(t, err)
	}
	doc, ok := store.Get("file:///a.pl")
	require.True(t, ok)
	assert.Equal(t, int32(10), doc.Version)

	// stale and equal versions are rejected
	_, err := store.Change("file:///a.pl", 10, "nope")
	require.Error(t, err)
	_, err = store.Change("file:///a.pl", 5, "nope")
	require.Error(t, err)

	doc, _ = store.Get("file:///a.pl")
	assert.Equal(t, "my $x = 10;", doc.Text)
}

func TestStoreChangeUnopened(t *testing.T) {
	t.Parallel()

	store := NewStore(discardLogger())
	_, err := store.Change("file:///nope.pl", 2, "text")
	require.Error(t, err)
}

func TestStoreConcurrentChanges(t *testing.T) {
	t.Parallel()

	store := NewStore(discardLogger())
	store.Open("file:///c.pl", 0, "")

	var wg sync.WaitGroup
	for v := int32(1); v <= 50; v++ {
		wg.Add(1)
		go func(v int32) {
			defer wg.Done()
			//nolint:errcheck // losing the race to a newer version is expected
			store.Change("file:///c.pl", v, fmt.Sprintf("my $v = %d;", v))
		}(v)
	}
	wg.Wait()

	doc, ok := store.Get("file:///c.pl")
	require.True(t, ok)
	// whatever won, the invariant holds: the stored version is the
	// highest that succeeded, and text matches it
	assert.Equal(t, fmt.Sprintf("my $v = %d;", doc.Version), doc.Text)
}

func TestSnapshotDerivedState(t *testing.T) {
	t.Parallel()

	doc := New("file:///d.pl", 1, "sub f { my $x = 1; }\n")
	require.NotNil(t, doc.Root())
	require.NotNil(t, doc.Table)

	parents := doc.ParentMap()
	require.NotEmpty(t, parents)
	// the map is stable across calls (built once)
	again := doc.ParentMap()
	assert.Equal(t, len(parents), len(again))

	// every child's parent contains it
	for child, parent := range parents {
		assert.True(t, parent.Span().Covers(child.Span()) || child.Span().Len() == 0)
	}

	n, path := doc.NodeAt(12) // inside $x
	require.NotNil(t, n)
	require.NotEmpty(t, path)
	_, isProgram := path[0].(*ast.Program)
	assert.True(t, isProgram)
}

func TestWordAt(t *testing.T) {
	t.Parallel()

	doc := New("file:///w.pl", 1, "my $count = Util::process();")
	word, span := doc.WordAt(5) // inside count
	assert.Equal(t, "$count", word)
	assert.Equal(t, "$count", doc.Text[span.Start:span.End])

	word, _ = doc.WordAt(14) // inside Util::process
	assert.Equal(t, "Util::process", word)
}

func TestSpliceChange(t *testing.T) {
	t.Parallel()

	prev := New("file:///s.pl", 1, "my $x = 1;\nmy $y = 2;\n")
	start := Position{Line: 1, Character: 8}
	end := Position{Line: 1, Character: 9}
	out := SpliceChange(prev, &start, &end, "42")
	assert.Equal(t, "my $x = 1;\nmy $y = 42;\n", out)

	// nil range means full replacement
	assert.Equal(t, "new", SpliceChange(prev, nil, nil, "new"))
}
