package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"authflow/cmd"
)

func TestVersion(t *testing.T) {
	assert.Equal(t, "dev", version)

	cmd.SetVersion("1.2.3")
	defer cmd.SetVersion(version)
	assert.Equal(t, "1.2.3", cmd.GetVersion())
}
