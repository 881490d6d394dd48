package util

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v63/github"
	"golang.org/x/mod/semver"

	"github.com/lumenframe/frame/internal/config"
)

const (
	githubOwner = "lumenframe"
	githubRepo  = "frame"
)

// CheckForUpdatesResult holds the outcome of the update check.
type CheckForUpdatesResult struct {
	UpdateAvailable bool
	CurrentVersion  string
	LatestVersion   string
	ReleaseURL      string
	ReleaseNotes    string
}

// CheckForUpdates polls GitHub for the latest stable release.
// It automatically uses the global config.Version.
// If httpClient is nil, a default client is used.
func CheckForUpdates(ctx context.Context, httpClient *http.Client) (*CheckForUpdatesResult, error) {
	client := github.NewClient(httpClient)

	release, _, err := client.Repositories.GetLatestRelease(ctx, githubOwner, githubRepo)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest GitHub release: %w", err)
	}

	// Use the global Version from the config package.
	currentVersion := config.Version
	if currentVersion == "" {
		currentVersion = "v0.0.0"
	}
	latestVersionTag := release.GetTagName()

	// Prepare versions for semantic version comparison.
	if !strings.HasPrefix(currentVersion, "v") {
		currentVersion = "v" + currentVersion
	}
	if !strings.HasPrefix(latestVersionTag, "v") {
		latestVersionTag = "v" + latestVersionTag
	}

	result := &CheckForUpdatesResult{
		CurrentVersion: currentVersion,
		LatestVersion:  latestVersionTag,
		ReleaseURL:     release.GetHTMLURL(),
		ReleaseNotes:   release.GetBody(),
	}

	if semver.Compare(latestVersionTag, currentVersion) > 0 {
		result.UpdateAvailable = true
	}

	return result, nil
}
