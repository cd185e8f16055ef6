package output_test

import (
	"testing"

	"github.com/UnknownOlympus/muniflow/internal/output"
	"github.com/UnknownOlympus/muniflow/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresWriter(t *testing.T) {
	ctx := t.Context()

	t.Run("delegates to repository", func(t *testing.T) {
		mockRepo := mocks.NewInterface(t)
		closed := false
		writer := output.NewPostgresWriter(mockRepo, func() { closed = true })

		mockRepo.On("SaveResults", ctx, results).Return(nil).Once()

		require.NoError(t, writer.Write(ctx, results))
		require.NoError(t, writer.Close())
		assert.True(t, closed)
	})

	t.Run("repository error", func(t *testing.T) {
		mockRepo := mocks.NewInterface(t)
		writer := output.NewPostgresWriter(mockRepo, nil)

		mockRepo.On("SaveResults", ctx, results).Return(assert.AnError).Once()

		require.ErrorIs(t, writer.Write(ctx, results), assert.AnError)
		require.NoError(t, writer.Close())
	})

	t.Run("ping delegates to repository", func(t *testing.T) {
		mockRepo := mocks.NewInterface(t)
		writer := output.NewPostgresWriter(mockRepo, nil)

		mockRepo.On("Ping", ctx).Return(nil).Once()
		mockRepo.On("Ping", ctx).Return(assert.AnError).Once()

		require.NoError(t, writer.Ping(ctx))
		require.ErrorIs(t, writer.Ping(ctx), assert.AnError)
	})

	t.Run("implements health checker", func(t *testing.T) {
		var writer output.Writer = output.NewPostgresWriter(mocks.NewInterface(t), nil)

		_, ok := writer.(output.HealthChecker)
		assert.True(t, ok)
	})
}
