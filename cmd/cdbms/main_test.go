package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/j1sk1ss/cdbms/internal/blockfs"
	"github.com/j1sk1ss/cdbms/internal/cache"
	"github.com/j1sk1ss/cdbms/internal/container"
	"github.com/j1sk1ss/cdbms/internal/kernel"
)

func newTestContext(t *testing.T) *kernel.Context {
	t.Helper()
	dir := t.TempDir()
	c := cache.New(cache.Config{})
	deps := &container.Deps{
		FS:    blockfs.New(dir, nil, nil, c),
		Cache: c,
	}
	return kernel.NewContext(deps)
}

func TestServeRoundTripsCreateAppendGet(t *testing.T) {
	kctx := newTestContext(t)

	in := strings.NewReader(strings.Join([]string{
		"create database demo\n",
		"demo create table widgets columns ( title 8 str np na )\n",
		"demo append row widgets values gizmo\n",
		"demo get row widgets by_index 0\n",
	}, ""))
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := serve(ctx, kctx, nil, in, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "0 -1", lines[0])
	require.Equal(t, "1 -1", lines[1])
	require.Equal(t, "0 -1", lines[2])
	require.Equal(t, "0 8 gizmo\x00\x00\x00", lines[3])
}

func TestServeIgnoresBlankLines(t *testing.T) {
	kctx := newTestContext(t)

	in := strings.NewReader("\n\nversion\n")
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := serve(ctx, kctx, nil, in, &out)
	require.NoError(t, err)
	require.Equal(t, "0 9 cdbms/1.0\n", out.String())
}
