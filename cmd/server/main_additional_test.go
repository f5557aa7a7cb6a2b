package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServerCommandHelpDescribesEveryFlag(testingT *testing.T) {
	command, commandErr := NewServerApplication().WithEnvironmentFiles().Command()
	require.NoError(testingT, commandErr)

	var output bytes.Buffer
	command.SetOut(&output)
	command.SetErr(&output)
	command.SetArgs([]string{"--help"})
	require.NoError(testingT, command.Execute())

	help := output.String()
	require.Contains(testingT, help, commandLongDescription)
	require.Contains(testingT, help, "Usage:\n  "+commandUseName)
	for _, definition := range serverFlags {
		require.Contains(testingT, help, "--"+definition.name)
		require.Contains(testingT, help, definition.usage)
	}
}
