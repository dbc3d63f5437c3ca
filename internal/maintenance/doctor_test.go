package maintenance

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDoctorTask_RunsWithoutError(t *testing.T) {
	task := DoctorTask("*/5 * * * *", nil)
	require.Equal(t, "docker-doctor", task.Name)
	require.NoError(t, task.Run(context.Background()))
}
