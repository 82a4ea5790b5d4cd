//go:build integration
// +build integration

package integration

import (
	"context"
	"os/exec"
	"testing"
)

// restartService restarts one service of the stack in docker-compose.yml at
// the repository root. E2E_COMPOSE_FILE points at a different stack.
func restartService(t *testing.T, ctx context.Context, service string) {
	t.Helper()

	args := []string{"compose"}
	if f := getenv("E2E_COMPOSE_FILE", "../docker-compose.yml"); f != "" {
		args = append(args, "-f", f)
	}
	args = append(args, "restart", service)

	out, err := exec.CommandContext(ctx, "docker", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("docker compose restart %s failed: %v\n%s", service, err, string(out))
	}
}
