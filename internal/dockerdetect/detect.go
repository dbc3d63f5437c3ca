// Package dockerdetect proactively checks whether Docker is installed and
// its daemon reachable, and supplies platform-appropriate remediation text
// when it is not. cmd/ironclawd calls this once at startup (and from the
// doctor CLI command) rather than letting job spawning fail opaquely on the
// first container create.
package dockerdetect

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/docker/docker/client"
)

// Status is the outcome of a Docker availability check.
type Status string

const (
	Available    Status = "available"
	NotInstalled Status = "not installed"
	NotRunning   Status = "not running"
	Disabled     Status = "disabled"
)

// IsOK reports whether s represents a usable Docker daemon.
func (s Status) IsOK() bool { return s == Available }

// Platform identifies the host OS for remediation guidance.
type Platform string

const (
	MacOS   Platform = "macos"
	Linux   Platform = "linux"
	Windows Platform = "windows"
)

// CurrentPlatform returns the running host's Platform.
func CurrentPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return MacOS
	case "windows":
		return Windows
	default:
		return Linux
	}
}

// InstallHint returns install instructions for p.
func (p Platform) InstallHint() string {
	switch p {
	case MacOS:
		return "Install Docker Desktop: https://docs.docker.com/desktop/install/mac-install/"
	case Windows:
		return "Install Docker Desktop: https://docs.docker.com/desktop/install/windows-install/"
	default:
		return "Install Docker Engine: https://docs.docker.com/engine/install/"
	}
}

// StartHint returns daemon-startup instructions for p.
func (p Platform) StartHint() string {
	switch p {
	case MacOS:
		return "Start Docker Desktop from Applications, or run: open -a Docker"
	case Windows:
		return "Start Docker Desktop from the Start menu"
	default:
		return "Start the Docker daemon: sudo systemctl start docker"
	}
}

// Detection is the result of a Check.
type Detection struct {
	Status   Status
	Platform Platform
}

// binaryExists reports whether a docker CLI exists on PATH. Using LookPath
// rather than shelling out to which/where keeps this portable without a
// build tag per platform.
func binaryExists() bool {
	_, err := exec.LookPath("docker")
	return err == nil
}

// Check performs the detection: binary-on-PATH, then daemon ping via the
// Docker SDK client (which itself handles the platform connection target:
// unix socket on macOS/Linux, named pipe on Windows).
func Check(ctx context.Context) Detection {
	platform := CurrentPlatform()

	if !binaryExists() {
		return Detection{Status: NotInstalled, Platform: platform}
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return Detection{Status: NotRunning, Platform: platform}
	}
	defer cli.Close()

	if _, err := cli.Ping(ctx); err != nil {
		return Detection{Status: NotRunning, Platform: platform}
	}

	return Detection{Status: Available, Platform: platform}
}
