package imap

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGroupBySubject(t *testing.T) {
	items := []markItem{
		{uid: 1, subject: "Delivery A"},
		{uid: 2, subject: " Delivery A "},
		{uid: 3, subject: "EAD B"},
		{uid: 4, subject: "   "},
		{uid: 5, subject: ""},
	}

	grouped := groupBySubject(items)
	require.Len(t, grouped, 2)
	require.Equal(t, []uint32{1, 2}, grouped["Delivery A"])
	require.Equal(t, []uint32{3}, grouped["EAD B"])
}

func TestExcludeUIDs(t *testing.T) {
	require.Equal(t, []uint32{10, 30}, excludeUIDs([]uint32{10, 20, 30}, []uint32{20}))
	require.Empty(t, excludeUIDs([]uint32{20}, []uint32{20}))
	require.Empty(t, excludeUIDs(nil, []uint32{1}))
	// Zero UIDs never come back from a search result worth acting on.
	require.Empty(t, excludeUIDs([]uint32{0}, nil))
}

func TestFormatUIDs(t *testing.T) {
	require.Equal(t, "1,2,3", formatUIDs([]uint32{1, 2, 3}))
	require.Equal(t, "", formatUIDs(nil))
}

func TestTruncateSubject(t *testing.T) {
	require.Equal(t, "short", truncateSubject("short"))

	long := strings.Repeat("x", 200)
	got := truncateSubject(long)
	require.True(t, strings.HasSuffix(got, "…"))
	require.Equal(t, 119, strings.Count(got, "x"))
}

func TestIsConnectionError(t *testing.T) {
	require.False(t, isConnectionError(nil))
	require.True(t, isConnectionError(errString("read tcp: use of closed network connection")))
	require.True(t, isConnectionError(errString("unexpected EOF")))
	require.False(t, isConnectionError(errString("NO mailbox does not exist")))
}

type errString string

func (e errString) Error() string { return string(e) }
