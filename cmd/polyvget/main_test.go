package main

import (
	"testing"

	"github.com/evilsocket/islazy/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLog(t *testing.T) {
	require.NoError(t, setupLog("DEBUG"))
	assert.Equal(t, log.DEBUG, log.Level)

	require.NoError(t, setupLog("warning"))
	assert.Equal(t, log.WARNING, log.Level)

	assert.Error(t, setupLog("verbose"))
}

func TestServicesHelp(t *testing.T) {
	help := servicesHelp()
	assert.Contains(t, help, "wingfox: yiihuu_s_c_d")
	assert.Contains(t, help, "yiihuu: PHPSESSID")
}

func TestNewProgress(t *testing.T) {
	p := newProgress()
	for i := 1; i <= 3; i++ {
		p(i, 3)
	}
}
