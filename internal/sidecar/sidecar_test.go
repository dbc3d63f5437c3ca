package sidecar

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSidecar_ContainerName(t *testing.T) {
	cfg := Config{Name: "browser"}
	require.Equal(t, "ironclaw-sidecar-browser", cfg.ContainerName())
}

func TestSidecar_EnsureReady_NoDockerClient(t *testing.T) {
	s := New(Config{Name: "browser", Image: "chromium:latest"}, nil)
	require.Equal(t, NotStarted, s.State())

	err := s.EnsureReady(context.Background())
	require.Error(t, err)

	var sidecarErr *Error
	require.ErrorAs(t, err, &sidecarErr)
	require.Equal(t, ErrDockerNotAvailable, sidecarErr.Kind)
	require.Equal(t, Failed, s.State())
}

func TestSidecar_Endpoint_NoPorts(t *testing.T) {
	s := New(Config{Name: "browser"}, nil)
	require.Nil(t, s.Endpoint())
}

func TestSidecar_Shutdown_NeverStarted(t *testing.T) {
	s := New(Config{Name: "browser"}, nil)
	require.NoError(t, s.Shutdown(context.Background()))
	require.Equal(t, Stopped, s.State())
}

func TestSidecar_Shutdown_KeepOnShutdown(t *testing.T) {
	s := New(Config{Name: "browser", KeepOnShutdown: true}, nil)
	s.containerID = "fake-container-id"
	require.NoError(t, s.Shutdown(context.Background()))
	require.Equal(t, Stopped, s.State())
}
