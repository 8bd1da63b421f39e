package proc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unixTableSample = `Num       RefCount Protocol Flags    Type St Inode Path
ffff880fbd6ab0c0: 00000003 00000000 00000000 0001 03 47793475 /run/dbus/system_bus_socket
ffff880fbd6afb80: 00000003 00000000 00000000 0001 03 47793476
ffff880fbd6a0000: 00000002 00000000 00010000 0001 01 12345 @/tmp/.X11-unix/X0
`

func TestParseUnixTable(t *testing.T) {
	table, err := ParseUnixTable(strings.NewReader(unixTableSample))
	require.NoError(t, err)

	assert.Equal(t, map[uint64]uint64{
		47793475: 0xffff880fbd6ab0c0,
		47793476: 0xffff880fbd6afb80,
		12345:    0xffff880fbd6a0000,
	}, table)
}

func TestParseUnixTable_SkipsMalformedRows(t *testing.T) {
	input := `Num RefCount Protocol Flags Type St Inode Path
garbage line
zzzz: 00000002 00000000 00010000 0001 01 999
ffff880fbd6a0000: 00000002 00000000 00010000 0001 01 notanumber
`
	table, err := ParseUnixTable(strings.NewReader(input))
	require.NoError(t, err)
	assert.Empty(t, table)
}
