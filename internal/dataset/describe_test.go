package dataset_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dataset-attach/agent/internal/dataset"
	"github.com/dataset-attach/agent/internal/models"
	"github.com/dataset-attach/agent/internal/notify"
)

func TestGenerate_ReplacesDescription(t *testing.T) {
	e := newEnv(t)

	require.NoError(t, e.m.Generate(context.Background()))
	assert.Equal(t, "Auto-generated description", e.m.Description().Description)
	assert.False(t, e.m.IsGenerating())
}

func TestGenerate_ShowsSentinelWhileInFlight(t *testing.T) {
	e := newEnv(t)
	e.fb.DescribeDelay = 50 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- e.m.Generate(context.Background()) }()

	waitFor(t, time.Second, e.m.IsGenerating, "generation lock is held")
	assert.Equal(t, models.GeneratingDescription, e.m.Description().Description)

	require.NoError(t, <-done)
	assert.Equal(t, "Auto-generated description", e.m.Description().Description)
}

func TestGenerate_UserEditWins(t *testing.T) {
	e := newEnv(t)
	e.fb.DescribeDelay = 80 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- e.m.Generate(context.Background()) }()
	waitFor(t, time.Second, e.m.IsGenerating, "generation lock is held")

	e.m.SetDescription("", "My own words")

	require.NoError(t, <-done)
	assert.Equal(t, "My own words", e.m.Description().Description,
		"a user edit during generation beats the generated text")
}

func TestGenerate_FailureReverts(t *testing.T) {
	e := newEnv(t)
	e.fb.FailWith("/create-dataset-description", http.StatusInternalServerError,
		map[string]interface{}{"detail": "model unavailable"})

	err := e.m.Generate(context.Background())
	require.Error(t, err)

	assert.Empty(t, e.m.Description().Description, "the sentinel must not linger")
	snap := e.m.State()
	require.NotNil(t, snap.Notification)
	assert.Equal(t, notify.KindGenerationFailed, snap.Notification.Kind)
}

func TestGenerate_FailureKeepsUserEdit(t *testing.T) {
	e := newEnv(t)
	e.fb.DescribeDelay = 80 * time.Millisecond
	e.fb.FailWith("/create-dataset-description", http.StatusInternalServerError,
		map[string]interface{}{"detail": "model unavailable"})

	done := make(chan error, 1)
	go func() { done <- e.m.Generate(context.Background()) }()
	waitFor(t, time.Second, e.m.IsGenerating, "generation lock is held")

	e.m.SetDescription("", "My own words")

	require.Error(t, <-done)
	assert.Equal(t, "My own words", e.m.Description().Description)
}

func TestGenerate_LockRefusesConcurrentWork(t *testing.T) {
	e := newEnv(t)
	e.fb.DescribeDelay = 80 * time.Millisecond

	done := make(chan error, 1)
	go func() { done <- e.m.Generate(context.Background()) }()
	waitFor(t, time.Second, e.m.IsGenerating, "generation lock is held")

	assert.ErrorIs(t, e.m.Generate(context.Background()), dataset.ErrGenerationInProgress)
	assert.ErrorIs(t, e.m.Clear(), dataset.ErrGenerationInProgress)

	require.NoError(t, <-done)
	require.NoError(t, e.m.Clear(), "the lock releases once generation settles")
}

func TestSetDescription_IgnoresSentinelText(t *testing.T) {
	e := newEnv(t)
	e.m.SetDescription("Sales", "Q1 sales")

	e.m.SetDescription("", models.GeneratingDescription)
	d := e.m.Description()
	assert.Equal(t, "Sales", d.Name)
	assert.Equal(t, "Q1 sales", d.Description, "the sentinel is display-only, never user input")
}
