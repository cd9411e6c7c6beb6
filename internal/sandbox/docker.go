package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const defaultImageRepo = "sandbox-runner"

var containerNameDisallowed = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// sanitizeContainerName collapses disallowed characters and guarantees the
// result starts with an alphanumeric, matching Docker's naming rules.
func sanitizeContainerName(name string) string {
	cleaned := containerNameDisallowed.ReplaceAllString(name, "-")
	cleaned = strings.Trim(cleaned, "-.")
	if cleaned == "" || !isAlnum(rune(cleaned[0])) {
		cleaned = strings.Trim("sandbox-"+cleaned, "-.")
	}
	if len(cleaned) > 128 {
		cleaned = cleaned[:128]
	}
	return cleaned
}

func isAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func ensureDockerAvailable(timeout time.Duration) error {
	out, errOut, err := runDockerCmd([]string{"docker", "version"}, "", timeout)
	if err != nil {
		return err
	}
	if strings.TrimSpace(out) == "" && strings.TrimSpace(errOut) != "" {
		return fmt.Errorf("docker is unavailable. Ensure the Docker daemon is running and reachable.\n%s", errOut)
	}
	return nil
}

// runDockerCmd executes argv and reports a non-zero exit as an error
// carrying stderr/stdout, mirroring `_docker_run(check=False)` callers that
// inspect returncode themselves.
func runDockerCmd(argv []string, cwd string, timeout time.Duration) (stdout, stderr string, err error) {
	ctx := context.Background()
	var cancel context.CancelFunc
	if timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	var outBuf, errBuf strings.Builder
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return outBuf.String(), errBuf.String(), fmt.Errorf("docker command timed out after %s: %s", timeout, strings.Join(argv, " "))
	}
	if runErr != nil {
		if ee, ok := runErr.(*exec.ExitError); ok {
			msg := strings.TrimSpace(errBuf.String())
			if msg == "" {
				msg = strings.TrimSpace(outBuf.String())
			}
			if msg == "" {
				msg = fmt.Sprintf("docker exited %d", ee.ExitCode())
			}
			return outBuf.String(), errBuf.String(), fmt.Errorf("%s", msg)
		}
		return outBuf.String(), errBuf.String(), fmt.Errorf("docker CLI not found: %w", runErr)
	}
	return outBuf.String(), errBuf.String(), nil
}

func dockerImageExists(tag string, timeout time.Duration) bool {
	_, _, err := runDockerCmd([]string{"docker", "image", "inspect", tag}, "", timeout)
	return err == nil
}

func resourceArgs(r *ResourceSpec) []string {
	if r == nil {
		return nil
	}
	var out []string
	if r.CPUs != nil {
		out = append(out, "--cpus", strconv.FormatFloat(*r.CPUs, 'f', -1, 64))
	}
	if r.MemoryMiB != nil {
		out = append(out, "--memory", fmt.Sprintf("%dm", *r.MemoryMiB))
	}
	if r.PIDsLimit != nil {
		out = append(out, "--pids-limit", strconv.Itoa(*r.PIDsLimit))
	}
	return out
}

func mountArgs(mounts []MountSpec) []string {
	var out []string
	for _, m := range mounts {
		spec := fmt.Sprintf("type=bind,source=%s,target=%s", m.HostPath, m.ContainerPath)
		if m.ReadOnly {
			spec += ",readonly"
		}
		out = append(out, "--mount", spec)
	}
	return out
}

func envArgsWithOverrides(allowlist []string, overrides map[string]string) []string {
	var out []string
	for _, key := range allowlist {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, overridden := overrides[key]; overridden {
			continue
		}
		if value, ok := os.LookupEnv(key); ok {
			out = append(out, "-e", key+"="+value)
		}
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, "-e", k+"="+overrides[k])
	}
	return out
}

// DockerInstance is a started container, ready for `docker exec` calls.
type DockerInstance struct {
	workspaceDir, artifactsDir string
	ContainerName              string
	ImageTag                   string
	ImageHash                  string
	keepContainer              bool
	dockerTimeout              time.Duration
	closed                     bool
}

func (d *DockerInstance) CommandPrefix() []string {
	return []string{"docker", "exec", "-i", "-w", "/workspace", d.ContainerName}
}
func (d *DockerInstance) WorkspaceMount() string { return "/workspace" }
func (d *DockerInstance) ArtifactsMount() string { return "/artifacts" }

func (d *DockerInstance) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.keepContainer {
		return nil
	}
	_, _, _ = runDockerCmd([]string{"docker", "rm", "-f", d.ContainerName}, "", d.dockerTimeout)
	return nil
}

// StartDocker builds (or reuses) the content-addressed image and starts a
// long-lived container, returning an Instance whose CommandPrefix attaches
// via `docker exec`.
func StartDocker(workspaceDir, artifactsDir string, spec Spec) (*DockerInstance, error) {
	if spec.Backend != BackendDocker {
		return nil, fmt.Errorf("StartDocker requires spec.Backend=docker, got %q", spec.Backend)
	}
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, err
	}

	timeout := spec.DockerTimeoutSeconds
	if timeout <= 0 {
		if raw := strings.TrimSpace(os.Getenv("SANDBOX_RUNNER_DOCKER_TIMEOUT_SECONDS")); raw != "" {
			if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs > 0 {
				timeout = time.Duration(secs * float64(time.Second))
			}
		}
	}

	if err := ensureDockerAvailable(timeout); err != nil {
		return nil, err
	}

	contextDir := spec.ImageContextPath
	if contextDir == "" {
		return nil, fmt.Errorf("docker sandbox requires Spec.ImageContextPath")
	}
	contextDir, err := filepath.Abs(contextDir)
	if err != nil {
		return nil, err
	}
	if info, statErr := os.Stat(contextDir); statErr != nil || !info.IsDir() {
		return nil, fmt.Errorf("missing docker image context directory: %s", contextDir)
	}

	dockerfilePath := spec.Dockerfile
	if dockerfilePath == "" {
		dockerfilePath = filepath.Join(contextDir, "Dockerfile")
	} else if !filepath.IsAbs(dockerfilePath) {
		dockerfilePath = filepath.Join(contextDir, dockerfilePath)
	}
	if info, statErr := os.Stat(dockerfilePath); statErr != nil || info.IsDir() {
		return nil, fmt.Errorf("missing Dockerfile: %s", dockerfilePath)
	}

	imageRepo := spec.ImageRepo
	if imageRepo == "" {
		imageRepo = defaultImageRepo
	}
	imageHash, err := computeImageHash(dockerfilePath, contextDir)
	if err != nil {
		return nil, err
	}
	tag := fmt.Sprintf("%s:%s", imageRepo, imageHash)

	if spec.RebuildImage || !dockerImageExists(tag, timeout) {
		logPath := filepath.Join(artifactsDir, "docker_build.log")
		if err := dockerBuildStreaming(dockerfilePath, contextDir, tag, logPath); err != nil {
			return nil, err
		}
	}

	containerName := sanitizeContainerName(fmt.Sprintf("sandbox-%s", ulid.Make().String()))

	argv := []string{"docker", "run", "-d", "--name", containerName}
	argv = append(argv, resourceArgs(spec.Resources)...)
	if spec.Network == NetworkNone {
		argv = append(argv, "--network", "none")
	}
	argv = append(argv, "--mount", fmt.Sprintf("type=bind,source=%s,target=/workspace", workspaceDir))
	argv = append(argv, "--mount", fmt.Sprintf("type=bind,source=%s,target=/artifacts", artifactsDir))
	if spec.CacheHostDir != "" {
		argv = append(argv, "--mount", fmt.Sprintf("type=bind,source=%s,target=/cache", spec.CacheHostDir))
	}
	argv = append(argv, mountArgs(spec.ExtraMounts)...)
	argv = append(argv, envArgsWithOverrides(spec.EnvAllowlist, spec.EnvOverrides)...)
	argv = append(argv, tag, "sleep", "infinity")

	if _, _, err := runDockerCmd(argv, "", timeout); err != nil {
		return nil, fmt.Errorf("docker run: %w", err)
	}

	return &DockerInstance{
		workspaceDir:  workspaceDir,
		artifactsDir:  artifactsDir,
		ContainerName: containerName,
		ImageTag:      tag,
		ImageHash:     imageHash,
		keepContainer: spec.KeepContainer,
		dockerTimeout: timeout,
	}, nil
}

func dockerBuildStreaming(dockerfilePath, contextDir, tag, logPath string) error {
	f, err := os.Create(logPath)
	if err != nil {
		return err
	}
	defer f.Close()

	argv := []string{"docker", "build", "--progress=plain", "-f", dockerfilePath, "-t", tag, contextDir}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = f
	cmd.Stderr = f
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("docker build failed (see %s): %w", logPath, err)
	}
	return nil
}
