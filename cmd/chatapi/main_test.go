package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "migrate", "issue-token", "unmute", "flags"}, names)
}

func TestIssueToken_RequiresEmail(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"issue-token"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
}

func TestUnmute_RequiresUser(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"unmute"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user")
}
