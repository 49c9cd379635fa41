package fsext

import (
	"runtime"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPerlFile(t *testing.T) {
	t.Parallel()

	assert.True(t, IsPerlFile("lib/Util.pm"))
	assert.True(t, IsPerlFile("script.pl"))
	assert.True(t, IsPerlFile("t/basic.t"))
	assert.True(t, IsPerlFile("APP.PSGI"))
	assert.False(t, IsPerlFile("readme.md"))
	assert.False(t, IsPerlFile("noext"))
}

func TestWalkPerlFiles(t *testing.T) {
	t.Parallel()

	fs := NewMemMapFs()
	files := []string{
		"/ws/main.pl",
		"/ws/lib/Util.pm",
		"/ws/t/util.t",
		"/ws/.git/config.pl",
		"/ws/blib/skip.pm",
		"/ws/notes.txt",
	}
	for _, f := range files {
		require.NoError(t, WriteFile(fs, f, []byte("1;\n"), 0o644))
	}

	var found []string
	require.NoError(t, WalkPerlFiles(fs, "/ws", func(path string) error {
		found = append(found, path)
		return nil
	}))
	sort.Strings(found)
	assert.Equal(t, []string{"/ws/lib/Util.pm", "/ws/main.pl", "/ws/t/util.t"}, found)
}

func TestURIMapping(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("posix paths")
	}

	uri := FileURI("/home/dev/proj/lib/Util.pm")
	assert.Equal(t, "file:///home/dev/proj/lib/Util.pm", uri)

	path, ok := URIToPath(uri)
	require.True(t, ok)
	assert.Equal(t, "/home/dev/proj/lib/Util.pm", path)

	// spaces survive the round trip
	spaced := FileURI("/tmp/my proj/a.pl")
	path, ok = URIToPath(spaced)
	require.True(t, ok)
	assert.Equal(t, "/tmp/my proj/a.pl", path)

	_, ok = URIToPath("untitled:Untitled-1")
	assert.False(t, ok)
}

func TestModulePaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Foo/Bar/Baz.pm", ModuleRelPath("Foo::Bar::Baz"))
	assert.Equal(t, "Util.pm", ModuleRelPath("Util"))

	assert.Equal(t, "Foo::Bar", PathToModule("/ws/lib/Foo/Bar.pm", []string{"/ws/lib"}))
	assert.Equal(t, "Bar", PathToModule("/elsewhere/Bar.pm", []string{"/ws/lib"}))
}

func TestResolveModule(t *testing.T) {
	t.Parallel()

	fs := NewMemMapFs()
	require.NoError(t, WriteFile(fs, "/ws/lib/Foo/Bar.pm", []byte("package Foo::Bar;\n1;\n"), 0o644))
	require.NoError(t, WriteFile(fs, "/inc/Sys/Thing.pm", []byte("package Sys::Thing;\n1;\n"), 0o644))

	path, ok := ResolveModule(fs, "Foo::Bar", []string{"/ws"}, nil)
	require.True(t, ok)
	assert.Equal(t, "/ws/lib/Foo/Bar.pm", path)

	path, ok = ResolveModule(fs, "Sys::Thing", []string{"/ws"}, []string{"/inc"})
	require.True(t, ok)
	assert.Equal(t, "/inc/Sys/Thing.pm", path)

	_, ok = ResolveModule(fs, "No::Such", []string{"/ws"}, nil)
	assert.False(t, ok)
}
