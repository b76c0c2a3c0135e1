package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ServesByDefault(t *testing.T) {
	root := rootCmd()
	require.NotNil(t, root.RunE)

	migrate := root.Flags().Lookup("migrate")
	require.NotNil(t, migrate)
	assert.Equal(t, "true", migrate.DefValue)

	for _, name := range []string{"serve", "migrate", "seed"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}
