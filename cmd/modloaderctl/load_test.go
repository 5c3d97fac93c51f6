package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunLoad(t *testing.T) {
	path := writeTestObject(t, "__k_demo")
	loadBase = 0x4000_0000

	out := captureStdout(t, func() {
		require.NoError(t, runLoad(loadCmd, []string{path, "__k_demo"}))
	})

	require.Contains(t, out, "__k_demo")
	require.Contains(t, out, "published symbol")
}

func TestRunLoadRejectsMissingPrefix(t *testing.T) {
	path := writeTestObject(t, "demo")
	err := runLoad(loadCmd, []string{path, "demo"})
	require.Error(t, err)
}
