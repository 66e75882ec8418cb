package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	_ "github.com/contracthub/contracthub/testing"
)

func TestRunRejectsUnknownCommands(t *testing.T) {
	assert.Equal(t, 2, run([]string{"bogus"}))
	assert.Equal(t, 2, run([]string{"rbac"}))
	assert.Equal(t, 2, run([]string{"rbac", "grant"}))
	assert.Equal(t, 2, run([]string{"rbac", "check", "--no-such-flag"}))
}
