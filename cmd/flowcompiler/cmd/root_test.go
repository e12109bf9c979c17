package cmd

import (
	"context"
	"testing"

	"github.com/flyteorg/flytestdlib/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvironment(t *testing.T) {
	defaultStorage := *storage.GetConfig()
	require.NoError(t, storage.ConfigSection.SetConfig(&storage.Config{Type: storage.TypeMemory}))
	t.Cleanup(func() {
		assert.NoError(t, storage.ConfigSection.SetConfig(&defaultStorage))
	})

	var env *environment
	var err error
	assert.NotPanics(t, func() {
		env, err = newEnvironment(context.TODO(), "environment-test:")
	})

	require.NoError(t, err)
	assert.NotNil(t, env.catalog)
	assert.Equal(t, []string{"local://executor"}, env.executors.URIs())
}

func TestSafeMetricName(t *testing.T) {
	assert.Equal(t, "flow_compiler:", safeMetricName("flow-compiler:"))
}
