package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/argus/pkg/argusmodel"
)

func TestValidate_BlocklistWins(t *testing.T) {
	cases := [][]string{
		{"rm", "-rf", "/"},
		{"mkfs.ext4", "/dev/sda1"},
		{"dd", "if=/dev/zero", "of=/dev/sda"},
		{"shutdown", "-h", "now"},
	}
	for _, cmd := range cases {
		v := Validate(cmd)
		assert.False(t, v.Allowed, "%v should be blocked", cmd)
		assert.Equal(t, argusmodel.RiskCritical, v.Risk)
	}
}

func TestValidate_RMAgainstProtectedPath(t *testing.T) {
	v := Validate([]string{"rm", "-rf", "/etc"})
	assert.False(t, v.Allowed)
}

func TestValidate_RMAgainstScratchPathAllowed(t *testing.T) {
	v := Validate([]string{"rm", "-rf", "/tmp/scratch"})
	assert.True(t, v.Allowed)
	assert.Equal(t, argusmodel.RiskMedium, v.Risk)
}

func TestValidate_ReadOnlyClassification(t *testing.T) {
	v := Validate([]string{"ps", "aux"})
	assert.True(t, v.Allowed)
	assert.Equal(t, argusmodel.RiskReadOnly, v.Risk)
}

func TestValidate_HighRiskClassification(t *testing.T) {
	v := Validate([]string{"kill", "-9", "1234"})
	assert.True(t, v.Allowed)
	assert.Equal(t, argusmodel.RiskHigh, v.Risk)
}

func TestValidate_UnknownDefaultsToMedium(t *testing.T) {
	v := Validate([]string{"some-custom-tool", "--flag"})
	assert.True(t, v.Allowed)
	assert.Equal(t, argusmodel.RiskMedium, v.Risk)
}

func TestExecute_BlockedReturnsSyntheticResult(t *testing.T) {
	res := Execute(context.Background(), []string{"rm", "-rf", "/"}, time.Second)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, "blocked", res.Stderr)
}

func TestExecute_RunsAllowedCommand(t *testing.T) {
	res := Execute(context.Background(), []string{"echo", "hello"}, 2*time.Second)
	assert.Equal(t, 0, res.ExitCode)
	assert.Contains(t, res.Stdout, "hello")
}

func TestExecute_TimesOut(t *testing.T) {
	res := Execute(context.Background(), []string{"sleep", "5"}, 50*time.Millisecond)
	assert.Equal(t, -1, res.ExitCode)
	assert.Equal(t, "timed out", res.Stderr)
}
