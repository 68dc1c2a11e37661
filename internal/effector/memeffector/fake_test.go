package memeffector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AOSC-Dev/omakase/internal/plan"
)

func TestFakeRecordsAppliedActions(t *testing.T) {
	f := New()
	a1 := plan.Action{Verb: plan.VerbInstall, Name: "foo"}
	a2 := plan.Action{Verb: plan.VerbInstall, Name: "bar"}

	require.NoError(t, f.Apply(context.Background(), a1))
	require.NoError(t, f.Apply(context.Background(), a2))
	assert.Equal(t, []plan.Action{a1, a2}, f.Applied)
}

func TestFakeFailsAtConfiguredIndex(t *testing.T) {
	f := New()
	f.FailAt = 1
	a1 := plan.Action{Verb: plan.VerbInstall, Name: "foo"}
	a2 := plan.Action{Verb: plan.VerbInstall, Name: "bar"}

	require.NoError(t, f.Apply(context.Background(), a1))
	require.Error(t, f.Apply(context.Background(), a2))
	assert.Equal(t, []plan.Action{a1}, f.Applied, "the failing action must not be recorded as applied")
}
