package external

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/craftops/agent/pkg/logger"
)

const (
	// DefaultAPIBase is the public downloads API of the Paper project
	DefaultAPIBase = "https://api.papermc.io/v2"
	UserAgent      = "craftops-agent/1.0 (https://github.com/craftops/agent)"
)

// PaperClient queries a PaperMC-style downloads API for build metadata
type PaperClient struct {
	httpClient *http.Client
	baseURL    string
	project    string
}

// NewPaperClient creates a new release feed client. Metadata requests
// use a short bounded timeout; binary downloads use their own client.
func NewPaperClient(baseURL, project string) *PaperClient {
	if baseURL == "" {
		baseURL = DefaultAPIBase
	}
	if project == "" {
		project = "paper"
	}
	return &PaperClient{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		baseURL: baseURL,
		project: project,
	}
}

// VersionBuildsResponse lists the builds published for one version line
type VersionBuildsResponse struct {
	ProjectID string `json:"project_id"`
	Version   string `json:"version"`
	Builds    []int  `json:"builds"`
}

// GetBuilds returns the build numbers published for a version line,
// in feed order (ascending).
func (c *PaperClient) GetBuilds(version string) ([]int, error) {
	buildsURL := fmt.Sprintf("%s/projects/%s/versions/%s", c.baseURL, c.project, version)

	resp, err := c.doRequest(buildsURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var buildsResp VersionBuildsResponse
	if err := json.NewDecoder(resp.Body).Decode(&buildsResp); err != nil {
		return nil, fmt.Errorf("failed to decode builds response: %w", err)
	}

	return buildsResp.Builds, nil
}

// LatestBuild returns the numerically highest build of a version line
func (c *PaperClient) LatestBuild(version string) (int, error) {
	builds, err := c.GetBuilds(version)
	if err != nil {
		return 0, err
	}
	if len(builds) == 0 {
		return 0, fmt.Errorf("no builds published for version %s", version)
	}

	latest := builds[0]
	for _, b := range builds[1:] {
		if b > latest {
			latest = b
		}
	}
	return latest, nil
}

// BinaryName returns the canonical jar filename for a build
func (c *PaperClient) BinaryName(version string, build int) string {
	return fmt.Sprintf("%s-%s-%d.jar", c.project, version, build)
}

// DownloadURL returns the canonical download URL for a build
func (c *PaperClient) DownloadURL(version string, build int) string {
	return fmt.Sprintf("%s/projects/%s/versions/%s/builds/%d/downloads/%s",
		c.baseURL, c.project, version, build, c.BinaryName(version, build))
}

// doRequest performs a GET request with proper headers
func (c *PaperClient) doRequest(url string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	logger.Debug("Release feed request", map[string]interface{}{
		"url": url,
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("feed returned status %d: %s", resp.StatusCode, resp.Status)
	}

	return resp, nil
}
