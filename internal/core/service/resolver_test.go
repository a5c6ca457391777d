package service

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pixcache/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSandbox(t *testing.T) (string, *SandboxResolver) {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "images"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "images", "a.jpg"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "photo.jpg"), []byte("p"), 0o644))

	r, err := NewSandboxResolver(root, nil)
	require.NoError(t, err)

	return r.Root(), r
}

func TestNewSandboxResolver(t *testing.T) {
	_, err := NewSandboxResolver(filepath.Join(t.TempDir(), "missing"), nil)
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err = NewSandboxResolver(file, nil)
	assert.Error(t, err)
}

func TestResolveLocalInside(t *testing.T) {
	root, r := newSandbox(t)

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "leading slash", raw: "/photo.jpg", want: filepath.Join(root, "photo.jpg")},
		{name: "relative", raw: "images/a.jpg", want: filepath.Join(root, "images", "a.jpg")},
		{name: "query stripped", raw: "/images/a.jpg?v=2", want: filepath.Join(root, "images", "a.jpg")},
		{name: "dot segments inside", raw: "/images/../photo.jpg", want: filepath.Join(root, "photo.jpg")},
		{name: "double slash stays inside", raw: "//photo.jpg", want: filepath.Join(root, "photo.jpg")},
		{name: "missing file", raw: "/nope.jpg", want: filepath.Join(root, "nope.jpg")},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loc, err := r.ResolveLocal(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, domain.Local, loc.Kind)
			assert.Equal(t, tc.want, loc.Path)
			assert.True(t, strings.HasPrefix(loc.Path, root+string(filepath.Separator)))
		})
	}
}

func TestResolveLocalEscapes(t *testing.T) {
	_, r := newSandbox(t)

	tests := []string{
		"../../etc/passwd",
		"/../../etc/passwd",
		"images/../../outside.jpg",
		"../",
		"/",
		"",
		"..",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := r.ResolveLocal(raw)
			require.ErrorIs(t, err, domain.ErrForbidden)
			assert.NotContains(t, err.Error(), r.Root())
		})
	}
}

func TestResolveLocalSymlinkEscape(t *testing.T) {
	root, r := newSandbox(t)

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.jpg")
	require.NoError(t, os.WriteFile(secret, []byte("s"), 0o644))

	require.NoError(t, os.Symlink(secret, filepath.Join(root, "link.jpg")))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "linkdir")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "gone.jpg"), filepath.Join(root, "dangling.jpg")))
	require.NoError(t, os.Symlink(filepath.Join(root, "photo.jpg"), filepath.Join(root, "inner.jpg")))

	for _, raw := range []string{
		"/link.jpg",
		"/linkdir/secret.jpg",
		"/dangling.jpg",
		"/linkdir/missing.jpg",
		"/linkdir/sub/missing.jpg",
		"/dangling.jpg/missing.jpg",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := r.ResolveLocal(raw)
			require.ErrorIs(t, err, domain.ErrForbidden)
			assert.NotContains(t, err.Error(), outside)
		})
	}

	loc, err := r.ResolveLocal("/inner.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "photo.jpg"), loc.Path)
}

func TestResolveLocalMissingStaysInRoot(t *testing.T) {
	root, r := newSandbox(t)

	outside := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(root, "images"), filepath.Join(root, "alias")))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "linkdir")))

	loc, err := r.ResolveLocal("/alias/later.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "images", "later.jpg"), loc.Path)

	loc, err = r.ResolveLocal("/photo.jpg/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "photo.jpg", "x.jpg"), loc.Path)

	_, err = r.ResolveLocal("/linkdir/later.jpg")
	require.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, os.WriteFile(filepath.Join(outside, "later.jpg"), []byte("secret"), 0o644))
	_, err = r.ResolveLocal("/linkdir/later.jpg")
	require.ErrorIs(t, err, domain.ErrForbidden)
}

func TestResolveRemote(t *testing.T) {
	_, r := newSandbox(t)

	loc, err := r.Resolve("https://cdn.example.com/a.jpg?x=1")
	require.NoError(t, err)
	assert.Equal(t, domain.Remote, loc.Kind)
	assert.Equal(t, "https://cdn.example.com/a.jpg?x=1", loc.URL)

	loc, err = r.Resolve("/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, domain.Local, loc.Kind)

	_, err = r.Resolve("http://")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

func TestResolveRemoteAllowlist(t *testing.T) {
	root := t.TempDir()
	r, err := NewSandboxResolver(root, NewHostAllowlist([]string{"cdn.example.com"}))
	require.NoError(t, err)

	_, err = r.Resolve("https://cdn.example.com/a.jpg")
	assert.NoError(t, err)

	_, err = r.Resolve("https://evil.example.org/a.jpg")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}
