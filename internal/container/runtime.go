package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"brokerctl/pkg/logging"
)

const subsystem = "Container"

const labelManagedBy = "brokerctl"

// ErrContainerNotFound indicates the named container is not tracked by
// this runtime.
var ErrContainerNotFound = errors.New("container not tracked")

// DefaultLogPollInterval is how often WaitForLog re-reads the log stream.
const DefaultLogPollInterval = time.Second

// Mockable clock for deterministic tests.
var (
	timeNow = time.Now
	sleepFn = time.Sleep
)

// dockerAPI is the slice of the Docker client this package uses. The real
// *client.Client satisfies it; tests substitute a fake.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspectWithRaw(ctx context.Context, imageID string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, options container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
}

var _ dockerAPI = (*dockerclient.Client)(nil)

// Spec describes one container to start.
type Spec struct {
	Name        string
	Image       string
	Env         map[string]string
	Ports       map[int]int // container port -> host port
	Command     []string
	NetworkMode string // "bridge" when empty
}

// Runtime starts and tracks Docker containers. All tracked-set access is
// mutex-guarded; the Docker client itself is safe for concurrent use.
type Runtime struct {
	api dockerAPI

	logPollInterval time.Duration
	stopTimeout     int // seconds

	mu         sync.Mutex
	containers map[string]string // name -> container ID
}

// NewRuntime connects to the Docker daemon using the environment
// configuration (DOCKER_HOST and friends) and verifies it responds.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	api, err := dockerclient.NewClientWithOpts(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	r := newRuntime(api)
	if _, err := r.api.Ping(ctx); err != nil {
		return nil, fmt.Errorf("docker ping: %w", err)
	}
	logging.Debug(subsystem, "Docker daemon connected")
	return r, nil
}

func newRuntime(api dockerAPI) *Runtime {
	return &Runtime{
		api:             api,
		logPollInterval: DefaultLogPollInterval,
		stopTimeout:     30,
		containers:      make(map[string]string),
	}
}

func (r *Runtime) ensureImage(ctx context.Context, img string) error {
	if _, _, err := r.api.ImageInspectWithRaw(ctx, img); err == nil {
		return nil
	}
	logging.Info(subsystem, "Image %s not found locally, pulling", img)
	reader, err := r.api.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull image %s: %w", img, err)
	}
	defer reader.Close()
	// The pull stream must be drained for the pull to complete.
	io.Copy(io.Discard, reader)
	return nil
}

// StartContainer creates and starts a container per the spec and records
// it in the tracked set. The image is pulled first when absent.
func (r *Runtime) StartContainer(ctx context.Context, spec Spec) error {
	if spec.Name == "" || spec.Image == "" {
		return fmt.Errorf("container spec requires a name and an image")
	}
	if err := r.ensureImage(ctx, spec.Image); err != nil {
		return err
	}

	env := make([]string, 0, len(spec.Env))
	for key, value := range spec.Env {
		env = append(env, fmt.Sprintf("%s=%s", key, value))
	}

	exposed := nat.PortSet{}
	bindings := nat.PortMap{}
	for containerPort, hostPort := range spec.Ports {
		port, err := nat.NewPort("tcp", strconv.Itoa(containerPort))
		if err != nil {
			return fmt.Errorf("invalid container port %d: %w", containerPort, err)
		}
		exposed[port] = struct{}{}
		bindings[port] = []nat.PortBinding{{HostPort: strconv.Itoa(hostPort)}}
	}

	networkMode := spec.NetworkMode
	if networkMode == "" {
		networkMode = "bridge"
	}

	containerCfg := &container.Config{
		Image:        spec.Image,
		Env:          env,
		Cmd:          spec.Command,
		ExposedPorts: exposed,
		Labels:       map[string]string{"managed-by": labelManagedBy},
	}
	hostCfg := &container.HostConfig{
		PortBindings: bindings,
		NetworkMode:  container.NetworkMode(networkMode),
	}

	resp, err := r.api.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return fmt.Errorf("create container %s: %w", spec.Name, err)
	}
	if err := r.api.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		r.api.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("start container %s: %w", spec.Name, err)
	}

	r.mu.Lock()
	r.containers[spec.Name] = resp.ID
	r.mu.Unlock()

	logging.Info(subsystem, "Container %s started (%s)", spec.Name, spec.Image)
	return nil
}

func (r *Runtime) lookup(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.containers[name]
	return id, ok
}

// StopContainer stops and removes a tracked container and forgets it.
func (r *Runtime) StopContainer(ctx context.Context, name string) error {
	id, ok := r.lookup(name)
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrContainerNotFound)
	}

	timeout := r.stopTimeout
	if err := r.api.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil && !dockerclient.IsErrNotFound(err) {
		return fmt.Errorf("stop container %s: %w", name, err)
	}
	if err := r.api.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil && !dockerclient.IsErrNotFound(err) {
		return fmt.Errorf("remove container %s: %w", name, err)
	}

	r.mu.Lock()
	delete(r.containers, name)
	r.mu.Unlock()

	logging.Info(subsystem, "Container %s stopped", name)
	return nil
}

// StopByName stops and removes a container by its Docker name, tracked or
// not. Used by teardown paths that run in a fresh process where the
// tracked set is empty. A container that does not exist is not an error.
func (r *Runtime) StopByName(ctx context.Context, name string) error {
	timeout := r.stopTimeout
	if err := r.api.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		if dockerclient.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("stop container %s: %w", name, err)
	}
	if err := r.api.ContainerRemove(ctx, name, container.RemoveOptions{Force: true}); err != nil && !dockerclient.IsErrNotFound(err) {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	r.mu.Lock()
	delete(r.containers, name)
	r.mu.Unlock()
	return nil
}

// Logs returns the container's accumulated log output, demultiplexed.
// tail limits the number of trailing lines; pass 0 for everything.
func (r *Runtime) Logs(ctx context.Context, name string, tail int) (string, error) {
	id, ok := r.lookup(name)
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrContainerNotFound)
	}

	opts := container.LogsOptions{ShowStdout: true, ShowStderr: true}
	if tail > 0 {
		opts.Tail = strconv.Itoa(tail)
	}
	reader, err := r.api.ContainerLogs(ctx, id, opts)
	if err != nil {
		return "", fmt.Errorf("logs for container %s: %w", name, err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read logs for container %s: %w", name, err)
	}
	return demuxLogStream(raw), nil
}

// WaitForLog polls the container's logs until pattern appears or timeout
// elapses. It reports whether the pattern was seen; transient log-read
// errors do not abort the wait.
func (r *Runtime) WaitForLog(ctx context.Context, name, pattern string, timeout time.Duration) (bool, error) {
	if _, ok := r.lookup(name); !ok {
		return false, fmt.Errorf("%s: %w", name, ErrContainerNotFound)
	}
	if pattern == "" {
		return false, fmt.Errorf("empty log pattern")
	}

	deadline := timeNow().Add(timeout)
	for {
		logs, err := r.Logs(ctx, name, 0)
		if err != nil {
			logging.Debug(subsystem, "Log read for %s failed, retrying: %v", name, err)
		} else if strings.Contains(logs, pattern) {
			return true, nil
		}

		if ctx.Err() != nil {
			return false, fmt.Errorf("waiting for log %q in %s: %w", pattern, name, ctx.Err())
		}
		if !timeNow().Before(deadline) {
			return false, nil
		}
		sleepFn(r.logPollInterval)
	}
}

// ExecCommand runs a command inside a tracked container and returns its
// combined output. A non-zero exit status is reported as an error that
// carries the output.
func (r *Runtime) ExecCommand(ctx context.Context, name string, command []string) (string, error) {
	id, ok := r.lookup(name)
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrContainerNotFound)
	}
	if len(command) == 0 {
		return "", fmt.Errorf("empty command for container %s", name)
	}

	execResp, err := r.api.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          command,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", fmt.Errorf("exec create in %s: %w", name, err)
	}

	attach, err := r.api.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		return "", fmt.Errorf("exec attach in %s: %w", name, err)
	}
	defer attach.Close()

	raw, err := io.ReadAll(attach.Reader)
	if err != nil {
		return "", fmt.Errorf("read exec output in %s: %w", name, err)
	}
	output := demuxLogStream(raw)

	inspect, err := r.api.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return output, fmt.Errorf("exec inspect in %s: %w", name, err)
	}
	if inspect.ExitCode != 0 {
		return output, fmt.Errorf("command %v in %s exited with code %d: %s",
			command, name, inspect.ExitCode, strings.TrimSpace(output))
	}
	return output, nil
}

// Tracked returns the names of all containers this runtime started, in no
// particular order.
func (r *Runtime) Tracked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.containers))
	for name := range r.containers {
		names = append(names, name)
	}
	return names
}

// CleanupAll stops every tracked container. Individual failures are
// logged and do not stop the sweep; the first error is returned.
func (r *Runtime) CleanupAll(ctx context.Context) error {
	var firstErr error
	for _, name := range r.Tracked() {
		if err := r.StopContainer(ctx, name); err != nil {
			logging.Warn(subsystem, "Cleanup of %s failed: %v", name, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// demuxLogStream strips Docker's multiplexed stream framing:
// [stream(1)][pad(3)][size(4, big-endian)][payload]. Unframed data is
// passed through untouched.
func demuxLogStream(data []byte) string {
	var out strings.Builder
	for len(data) > 0 {
		if len(data) >= 8 && (data[0] == 0 || data[0] == 1 || data[0] == 2) {
			size := int(data[4])<<24 | int(data[5])<<16 | int(data[6])<<8 | int(data[7])
			data = data[8:]
			if size > 0 && size <= len(data) {
				out.Write(data[:size])
				data = data[size:]
				continue
			}
		}
		out.Write(data)
		break
	}
	return out.String()
}
