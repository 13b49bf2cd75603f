package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/updatectl/updatectl/api/v1alpha1"
	"github.com/updatectl/updatectl/internal/agent/device/errors"
	"github.com/updatectl/updatectl/pkg/log"
)

var _ Protocol = (*ddiClient)(nil)

// Config carries the connection settings of the default DDI client.
type Config struct {
	// ServerURL is the base URL of the update server.
	ServerURL string
	// Tenant is the server-side tenant the device belongs to.
	Tenant string
	// ControllerID identifies this device on the server.
	ControllerID string
	// GatewayToken, when set, authenticates every request.
	GatewayToken string
	// TargetToken, when set and GatewayToken is empty, authenticates every
	// request with the device-specific token.
	TargetToken string
}

// NewDDI returns the default Protocol implementation speaking the DDI
// controller resource over HTTP. The http.Client is supplied by the embedding
// application (TLS setup is its concern).
func NewDDI(cfg Config, httpClient *http.Client, log *log.PrefixLogger) Protocol {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ddiClient{
		cfg:        cfg,
		httpClient: httpClient,
		log:        log,
	}
}

type ddiClient struct {
	cfg        Config
	httpClient *http.Client
	log        *log.PrefixLogger
}

// controllerBase is the poll resource. The server advertises an assigned
// deployment through the deploymentBase link.
type controllerBase struct {
	Links struct {
		DeploymentBase struct {
			Href string `json:"href"`
		} `json:"deploymentBase"`
	} `json:"_links"`
}

type deploymentBase struct {
	ID         string `json:"id"`
	Deployment struct {
		Chunks []struct {
			Part      string `json:"part"`
			Name      string `json:"name"`
			Version   string `json:"version"`
			Artifacts []struct {
				Filename string          `json:"filename"`
				Hashes   v1alpha1.Hashes `json:"hashes"`
				Size     int64           `json:"size"`
				Links    struct {
					DownloadHTTP struct {
						Href string `json:"href"`
					} `json:"download-http"`
				} `json:"_links"`
			} `json:"artifacts"`
		} `json:"chunks"`
	} `json:"deployment"`
}

type feedbackBody struct {
	ID     string `json:"id"`
	Status struct {
		Execution string   `json:"execution"`
		Details   []string `json:"details,omitempty"`
		Result    struct {
			Finished string `json:"finished"`
		} `json:"result"`
	} `json:"status"`
}

func (c *ddiClient) FetchAction(ctx context.Context) (*v1alpha1.Action, error) {
	base := controllerBase{}
	url := fmt.Sprintf("%s/%s/controller/v1/%s", c.cfg.ServerURL, c.cfg.Tenant, c.cfg.ControllerID)
	if err := c.getJSON(ctx, url, &base); err != nil {
		return nil, err
	}

	if base.Links.DeploymentBase.Href == "" {
		return nil, errors.ErrNoContent
	}

	deployment := deploymentBase{}
	if err := c.getJSON(ctx, base.Links.DeploymentBase.Href, &deployment); err != nil {
		return nil, err
	}

	action := &v1alpha1.Action{ID: deployment.ID}
	for _, chunk := range deployment.Deployment.Chunks {
		module := v1alpha1.SoftwareModule{
			ID:      chunk.Name,
			Type:    chunk.Part,
			Name:    chunk.Name,
			Version: chunk.Version,
		}
		for _, artifact := range chunk.Artifacts {
			module.Artifacts = append(module.Artifacts, v1alpha1.Artifact{
				Name:        artifact.Filename,
				Hashes:      artifact.Hashes,
				Size:        artifact.Size,
				DownloadURL: artifact.Links.DownloadHTTP.Href,
			})
		}
		action.Modules = append(action.Modules, module)
	}

	return action, nil
}

func (c *ddiClient) OpenArtifact(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: opening artifact stream: %w", errors.ErrNetwork, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, resp.ContentLength, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: artifact %s", errors.ErrNotFound, url)
	default:
		_ = resp.Body.Close()
		return nil, 0, fmt.Errorf("%w: unexpected status code %d", errors.ErrNetwork, resp.StatusCode)
	}
}

func (c *ddiClient) SubmitFeedback(ctx context.Context, actionID string, entries []v1alpha1.StatusEntry) error {
	url := fmt.Sprintf("%s/%s/controller/v1/%s/deploymentBase/%s/feedback",
		c.cfg.ServerURL, c.cfg.Tenant, c.cfg.ControllerID, actionID)

	// the feedback resource takes one message per request, entries are posted
	// in history order
	for _, entry := range entries {
		body := feedbackBody{ID: actionID}
		body.Status.Details = entry.Details
		body.Status.Execution, body.Status.Result.Finished = executionOf(entry.Kind)

		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		c.authorize(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: submitting feedback: %w", errors.ErrNetwork, err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%w: feedback rejected with status code %d", errors.ErrNetwork, resp.StatusCode)
		}
	}
	return nil
}

// executionOf maps a status entry kind to the execution/result pair the
// feedback resource expects.
func executionOf(kind v1alpha1.StatusEntryKind) (execution string, finished string) {
	switch kind {
	case v1alpha1.StatusFinished:
		return "closed", "success"
	case v1alpha1.StatusError:
		return "closed", "failure"
	case v1alpha1.StatusRetrieved:
		return "proceeding", "none"
	case v1alpha1.StatusDownload:
		return "download", "none"
	default:
		return "proceeding", "none"
	}
}

func (c *ddiClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response from %s: %w", url, err)
		}
		return nil
	case http.StatusNoContent:
		return errors.ErrNoContent
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", errors.ErrNotFound, url)
	default:
		return fmt.Errorf("%w: unexpected status code %d from %s", errors.ErrNetwork, resp.StatusCode, url)
	}
}

func (c *ddiClient) authorize(req *http.Request) {
	switch {
	case c.cfg.GatewayToken != "":
		req.Header.Set("Authorization", "GatewayToken "+c.cfg.GatewayToken)
	case c.cfg.TargetToken != "":
		req.Header.Set("Authorization", "TargetToken "+c.cfg.TargetToken)
	}
}
