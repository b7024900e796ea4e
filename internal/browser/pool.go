// Package browser is the page driver: it provisions headless Chrome for
// JS-rendered sessions and captures static pages into raw records. The
// processing engine treats this capability as an external collaborator.
package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"go.uber.org/zap"

	"github.com/scrapeforge/scrapeforge/internal/errs"
)

const chromeImage = "browserless/chrome:latest"

// Instance is one provisioned headless Chrome container.
type Instance struct {
	ContainerID string
	SessionID   string
	ConnectURL  string
	Port        string
}

// Pool provisions one Chrome container per session that asks for JS
// rendering.
type Pool struct {
	client *client.Client
	log    *zap.SugaredLogger
}

// NewPool creates a docker-backed browser pool.
func NewPool(log *zap.SugaredLogger) (*Pool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errs.Wrap(err, "create docker client")
	}
	return &Pool{
		client: cli,
		log:    log.With("component", "browser"),
	}, nil
}

// Launch starts a Chrome container for a session and waits for its CDP
// endpoint to come up.
func (p *Pool) Launch(ctx context.Context, sessionID string) (*Instance, error) {
	containerConfig := &container.Config{
		Image: chromeImage,
		Labels: map[string]string{
			"session-id": sessionID,
			"managed-by": "scrapeforge",
		},
		Env: []string{
			"CONNECTION_TIMEOUT=-1",
			"MAX_CONCURRENT_SESSIONS=1",
			"PREBOOT_CHROME=true",
			"KEEP_ALIVE=true",
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

	name := fmt.Sprintf("scrape-%s", sessionID[:8])
	resp, err := p.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		return nil, errs.Wrap(err, "create browser container")
	}

	if err := p.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, errs.Wrap(err, "start browser container")
	}

	inspect, err := p.client.ContainerInspect(ctx, resp.ID)
	if err != nil {
		return nil, errs.Wrap(err, "inspect browser container")
	}
	port := inspect.NetworkSettings.Ports["3000/tcp"][0].HostPort

	if err := p.waitForReady(port); err != nil {
		return nil, errs.Wrap(err, "browser failed to become ready")
	}

	p.log.Infow("browser launched", "session", sessionID, "container", resp.ID[:12], "port", port)
	return &Instance{
		ContainerID: resp.ID,
		SessionID:   sessionID,
		ConnectURL:  fmt.Sprintf("ws://localhost:%s", port),
		Port:        port,
	}, nil
}

// Stop tears a session's container down.
func (p *Pool) Stop(ctx context.Context, containerID string) error {
	timeout := 10
	if err := p.client.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &timeout}); err != nil {
		return errs.Wrap(err, "stop browser container")
	}
	if err := p.client.ContainerRemove(ctx, containerID, container.RemoveOptions{}); err != nil {
		return errs.Wrap(err, "remove browser container")
	}
	return nil
}

// EnsureImage pulls the Chrome image if it is not present locally.
func (p *Pool) EnsureImage(ctx context.Context) error {
	images, err := p.client.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return errs.Wrap(err, "list images")
	}
	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == chromeImage {
				return nil
			}
		}
	}

	p.log.Infow("pulling browser image", "image", chromeImage)
	reader, err := p.client.ImagePull(ctx, chromeImage, image.PullOptions{})
	if err != nil {
		return errs.Wrap(err, "pull browser image")
	}
	defer reader.Close()
	_, err = io.Copy(io.Discard, reader)
	return err
}

// Close releases the docker client.
func (p *Pool) Close() error {
	return p.client.Close()
}

// waitForReady polls the container's /json/version endpoint until Chrome
// answers.
func (p *Pool) waitForReady(port string) error {
	url := fmt.Sprintf("http://localhost:%s/json/version", port)
	const maxRetries = 20

	for i := 0; i < maxRetries; i++ {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				// give the websocket endpoint a moment to settle
				time.Sleep(500 * time.Millisecond)
				return nil
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
	return errs.Newf("browser not ready after %d retries", maxRetries)
}
