package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDates(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 6, 10, 15, 4, 0, 0, loc)

	days, err := parseDates(nil, loc, now)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{time.Date(2025, 6, 10, 0, 0, 0, 0, loc)}, days)

	days, err = parseDates([]string{"2025-06-09", "2025-06-10"}, loc, now)
	require.NoError(t, err)
	assert.Len(t, days, 2)
	assert.Equal(t, 9, days[0].Day())

	_, err = parseDates([]string{"06/09/2025"}, loc, now)
	assert.Error(t, err)
}

func TestZonesInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")

	root := newRootCmd()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetArgs([]string{"zones", "init", "--file", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Wrote 16 zones")
	_, err := os.Stat(path)
	require.NoError(t, err)

	root = newRootCmd()
	root.SetOut(out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"zones", "init", "--file", path})
	assert.Error(t, root.Execute(), "refuses to overwrite without --force")

	out.Reset()
	root = newRootCmd()
	root.SetOut(out)
	root.SetArgs([]string{"zones", "--file", path})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "Front Planters and Pots")
	assert.Contains(t, out.String(), path)
}
