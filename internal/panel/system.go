package panel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/avast/retry-go/v4"

	"grimm.is/hearth/internal/i18n"
)

// DefaultUpdateURI is the version service queried by System.checkUpdate.
const DefaultUpdateURI = "https://version.hearth.grimm.is/api"

var releaseVersion = regexp.MustCompile(`^(\d+\.)(\d+\.)(\d+\.)?(\d+)?(-(svn|dev|rc)(\d+))?$`)

type UpdateCheckParams struct{}

type ListFunctionsParams struct {
	Module string `json:"module" desc:"only list the functions of this module"`
}

// UpdateInfo is returned by System.checkUpdate.
type UpdateInfo struct {
	Available      bool   `json:"available"`
	Version        string `json:"version,omitempty"`
	Message        string `json:"message"`
	Link           string `json:"link,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

func (s *Service) registerSystem() {
	Register(s.registry, "System", "checkUpdate", "checks whether a newer panel version is available", s.SystemCheckUpdate)
	Register(s.registry, "System", "listFunctions", "lists the available API commands", s.SystemListFunctions)
}

// fetchLatest queries "<uri>/<version>" and returns the version, message
// and link fields of the "|" separated answer.
func (s *Service) fetchLatest(ctx context.Context) (string, string, string, error) {
	uri := s.updateURI
	if uri == "" {
		uri = DefaultUpdateURI
	}
	url := strings.TrimRight(uri, "/") + "/" + s.version

	var body string
	err := retry.Do(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("version service returned %s", resp.Status)
			if resp.StatusCode < 500 {
				return retry.Unrecoverable(err)
			}
			return err
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return err
		}
		body = strings.TrimSpace(string(data))
		return nil
	},
		retry.Context(ctx),
		retry.Attempts(s.updateRetries),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", "", "", err
	}

	parts := strings.SplitN(body, "|", 3)
	for len(parts) < 3 {
		parts = append(parts, "")
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), nil
}

// SystemCheckUpdate compares the running version with the latest release.
func (s *Service) SystemCheckUpdate(ctx context.Context, c *Caller, _ UpdateCheckParams) (any, error) {
	if !c.canChangeServerSettings() {
		return nil, errNotAllowed()
	}
	s.logRead(ctx, c, "[API] checking for updates")

	latest, message, link, err := s.fetchLatest(ctx)
	if err != nil {
		s.logger.Warn("update check failed", "error", err)
		return nil, newError(http.StatusBadGateway, "updatecheckfailed", err.Error())
	}

	if !releaseVersion.MatchString(latest) {
		return nil, invalid("customized_version")
	}
	if compareVersions(s.version, latest) < 0 {
		s.logger.Info("newer version available", "current", s.version, "latest", latest)
		return &UpdateInfo{
			Available:      true,
			Version:        latest,
			Message:        i18n.T(ctx, "newerversion", latest, s.version),
			Link:           link,
			AdditionalInfo: message,
		}, nil
	}
	return &UpdateInfo{Message: i18n.T(ctx, "noupdatesavail")}, nil
}

// SystemListFunctions lists the registered commands, optionally of one
// module.
func (s *Service) SystemListFunctions(_ context.Context, _ *Caller, p ListFunctionsParams) (any, error) {
	if p.Module != "" && !s.registry.HasModule(p.Module) {
		return nil, newError(http.StatusNotFound, "modulenotfound", p.Module)
	}
	return s.registry.List(p.Module), nil
}

// compareVersions orders "1.2.3" style versions with an optional -svnN,
// -devN or -rcN suffix; a suffixed version sorts before its release.
func compareVersions(a, b string) int {
	return toSemver(a).Compare(toSemver(b))
}

// toSemver maps a panel version onto semver. semver has no fourth release
// part, so "x.y.z.w" folds w into the patch number. The pre-release suffix
// becomes "<rank>.<n>" so svn < dev < rc orders numerically.
func toSemver(v string) *semver.Version {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	base, suffix, _ := strings.Cut(v, "-")

	var nums [4]uint64
	for i, part := range strings.SplitN(base, ".", 4) {
		nums[i], _ = strconv.ParseUint(part, 10, 64)
	}
	return semver.New(nums[0], nums[1], nums[2]*patchScale+nums[3], preRelease(suffix), "")
}

const patchScale = 10000

func preRelease(suffix string) string {
	if suffix == "" {
		return ""
	}
	for rank, tag := range []string{"svn", "dev", "rc"} {
		if n, ok := strings.CutPrefix(suffix, tag); ok {
			num, _ := strconv.ParseUint(n, 10, 64)
			return fmt.Sprintf("%d.%d", rank+1, num)
		}
	}
	return "0"
}
