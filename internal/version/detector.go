package version

import (
	"runtime/debug"
	"strings"

	"golang.org/x/mod/semver"
)

const (
	unknownVersion      = "unknown"
	develModuleVersion  = "(devel)"
	revisionSettingKey  = "vcs.revision"
	modifiedSettingKey  = "vcs.modified"
	revisionPrefix      = "devel-"
	modifiedSuffix      = "-dirty"
	shortRevisionLength = 12
)

// injectedVersion is set at link time:
//
//	go build -ldflags "-X github.com/tyemirov/reqbatch/internal/version.injectedVersion=v1.2.3"
var injectedVersion string

// BuildInfoProvider reads the build metadata embedded in the binary.
type BuildInfoProvider interface {
	Read() (*debug.BuildInfo, bool)
}

// Dependencies overrides the sources the Detector consults. Zero values fall back to
// the running binary's build info and the link-time version.
type Dependencies struct {
	BuildInfoProvider BuildInfoProvider
	InjectedVersion   string
}

// Detector picks the version string reqbatch reports.
type Detector struct {
	buildInfo BuildInfoProvider
	injected  string
}

func NewDetector(dependencies Dependencies) *Detector {
	detector := &Detector{buildInfo: dependencies.BuildInfoProvider, injected: strings.TrimSpace(dependencies.InjectedVersion)}
	if detector.buildInfo == nil {
		detector.buildInfo = runtimeBuildInfo{}
	}
	if len(detector.injected) == 0 {
		detector.injected = strings.TrimSpace(injectedVersion)
	}
	return detector
}

// Detect is shorthand for NewDetector(dependencies).Version().
func Detect(dependencies Dependencies) string {
	return NewDetector(dependencies).Version()
}

// Version prefers a link-time semantic version, then the module version from build
// info, then a devel-<revision> string for VCS builds.
func (detector *Detector) Version() string {
	if detector == nil {
		return unknownVersion
	}
	if release := canonicalize(detector.injected); len(release) > 0 {
		return release
	}

	info, ok := detector.buildInfo.Read()
	if !ok || info == nil {
		return unknownVersion
	}
	if release := canonicalize(info.Main.Version); len(release) > 0 {
		return release
	}
	if development := developmentVersion(info.Settings); len(development) > 0 {
		return development
	}
	return unknownVersion
}

// canonicalize returns the canonical semantic version for candidate, adding the "v"
// prefix when missing, or "" when candidate is not a version.
func canonicalize(candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if len(candidate) == 0 || candidate == develModuleVersion {
		return ""
	}
	if !strings.HasPrefix(candidate, "v") {
		candidate = "v" + candidate
	}
	if !semver.IsValid(candidate) {
		return ""
	}
	return semver.Canonical(candidate) + semver.Build(candidate)
}

func developmentVersion(settings []debug.BuildSetting) string {
	var revision string
	var modified bool
	for _, setting := range settings {
		switch setting.Key {
		case revisionSettingKey:
			revision = strings.TrimSpace(setting.Value)
		case modifiedSettingKey:
			modified = setting.Value == "true"
		}
	}
	if len(revision) == 0 {
		return ""
	}
	if len(revision) > shortRevisionLength {
		revision = revision[:shortRevisionLength]
	}
	if modified {
		return revisionPrefix + revision + modifiedSuffix
	}
	return revisionPrefix + revision
}

type runtimeBuildInfo struct{}

func (runtimeBuildInfo) Read() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}
