package agent

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/fieldtrack/agent/internal/config"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DeviceID returns a stable best-effort identifier for this device, sent
// with registration calls. Resolution order: AGENT_DEVICE_ID env, a hardware
// machine id, then a generated uuid persisted next to the agent database.
func DeviceID() string {
	if id := config.String("AGENT_DEVICE_ID", ""); id != "" {
		return id
	}
	if id, err := hardwareID(); err == nil && id != "" {
		return id
	}
	return persistedFallbackID()
}

// hardwareID reads a machine identifier. On Linux it prefers /etc/machine-id
// then the DMI product uuid; on macOS it asks system_profiler.
func hardwareID() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		cmd := exec.CommandContext(context.Background(), "bash", "-c",
			"system_profiler SPHardwareDataType | awk '/Hardware UUID/ {print $3}'")
		out, err := cmd.Output()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(out)), nil
	case "linux":
		if id, err := readSystemFile("/etc/machine-id"); err == nil && id != "" {
			return id, nil
		}
		if id, err := readSystemFile("/sys/class/dmi/id/product_uuid"); err == nil && id != "" {
			return id, nil
		}
		return "", nil
	default:
		return "", nil
	}
}

func persistedFallbackID() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return uuid.NewString()
	}
	path := filepath.Join(home, ".fieldtrack", "device-id")
	if id, err := readSystemFile(path); err == nil && id != "" {
		return id
	}
	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
			log.Debug().Err(err).Str("path", path).Msg("persist generated device id failed")
		}
	}
	return id
}

func readSystemFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
