package provision

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
)

const chromeImage = "browserless/chrome:latest"

// Local provisions one browserless/chrome container per session. It is the
// fallback when no remote provisioning key is configured, and has no
// interactive live view.
type Local struct {
	client *client.Client
}

// NewLocal creates a Docker-backed provisioner.
func NewLocal() (*Local, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	return &Local{client: cli}, nil
}

// EnsureImage pulls the Chrome image if it is not present yet.
func (l *Local) EnsureImage(ctx context.Context) error {
	images, err := l.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return err
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == chromeImage {
				return nil
			}
		}
	}

	reader, err := l.client.ImagePull(ctx, chromeImage, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", chromeImage, err)
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

func (l *Local) Create(ctx context.Context, opts CreateOptions) (*Endpoint, error) {
	id := uuid.New().String()

	containerConfig := &container.Config{
		Image: chromeImage,
		Labels: map[string]string{
			"session-id": id,
			"managed-by": "browsergate",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
			"EXIT_ON_HEALTH_FAILURE=false",
		},
		ExposedPorts: nat.PortSet{
			"3000/tcp": struct{}{},
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			"3000/tcp": []nat.PortBinding{
				{HostIP: "0.0.0.0", HostPort: "0"},
			},
		},
	}

	resp, err := l.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil,
		fmt.Sprintf("session-%s", id[:8]))
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}

	if err := l.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	port, err := l.hostPort(ctx, resp.ID)
	if err != nil {
		return nil, err
	}
	if err := waitForBrowserReady(port); err != nil {
		return nil, fmt.Errorf("browser failed to become ready: %w", err)
	}

	return &Endpoint{
		ID:         id,
		ConnectURL: fmt.Sprintf("ws://localhost:%s", port),
	}, nil
}

func (l *Local) Describe(ctx context.Context, id string) (*Endpoint, error) {
	containerID, err := l.findContainer(ctx, id)
	if err != nil {
		return nil, err
	}
	inspect, err := l.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("inspect container: %w", err)
	}
	if !inspect.State.Running {
		return nil, fmt.Errorf("session container %s is not running", id)
	}
	port, err := l.hostPort(ctx, containerID)
	if err != nil {
		return nil, err
	}
	return &Endpoint{
		ID:         id,
		ConnectURL: fmt.Sprintf("ws://localhost:%s", port),
	}, nil
}

func (l *Local) Release(ctx context.Context, id string) error {
	containerID, err := l.findContainer(ctx, id)
	if err != nil {
		return err
	}

	timeout := 10
	if err := l.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return fmt.Errorf("stop container: %w", err)
	}
	if err := l.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return fmt.Errorf("remove container: %w", err)
	}
	return nil
}

func (l *Local) SupportsLiveView() bool { return false }

// Close releases the Docker client; running containers are left to Release.
func (l *Local) Close() error { return l.client.Close() }

func (l *Local) findContainer(ctx context.Context, id string) (string, error) {
	containers, err := l.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", "session-id="+id)),
	})
	if err != nil {
		return "", fmt.Errorf("list containers: %w", err)
	}
	if len(containers) == 0 {
		return "", fmt.Errorf("no container for session %s", id)
	}
	return containers[0].ID, nil
}

func (l *Local) hostPort(ctx context.Context, containerID string) (string, error) {
	inspect, err := l.client.ContainerInspect(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("inspect container: %w", err)
	}
	bindings := inspect.NetworkSettings.Ports["3000/tcp"]
	if len(bindings) == 0 {
		return "", fmt.Errorf("no port binding for container %s", containerID)
	}
	return bindings[0].HostPort, nil
}

// waitForBrowserReady polls the /json/version endpoint until the DevTools
// socket accepts connections.
func waitForBrowserReady(port string) error {
	url := fmt.Sprintf("http://localhost:%s/json/version", port)
	maxRetries := 20 // 10 seconds total

	for i := 0; i < maxRetries; i++ {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == 200 {
				// Give the WebSocket a moment to come up behind the HTTP endpoint
				time.Sleep(500 * time.Millisecond)
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("browser did not become ready after %d retries", maxRetries)
}
