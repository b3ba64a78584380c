package main

import (
	stdtesting "testing"

	"github.com/stretchr/testify/assert"

	"github.com/salesops/salesops/internal/app"
	_ "github.com/salesops/salesops/testing"
)

func TestMainSkipsStartupInTestMode(t *stdtesting.T) {
	assert.True(t, app.InTestMode())
	assert.NotPanics(t, main)
}
