package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

const (
	// EmbeddedRootConfigurationReference identifies the embedded fallback configuration source.
	EmbeddedRootConfigurationReference = "embedded default configuration"

	// ConfigPathEnvironmentVariable names a configuration file that takes
	// precedence over the search directories.
	ConfigPathEnvironmentVariable = "PKTABLES_CONFIG"

	configurationFileName                 = "config.yaml"
	applicationDirectoryName              = "pktables"
	homeDirectoryName                     = ".pktables"
	homeEnvironmentVariable               = "HOME"
	configHomeEnvironmentVariable         = "XDG_CONFIG_HOME"
	requiredConfigurationReadErrorFormat  = "read configuration %s: %w"
	workingDirectoryResolutionErrorFormat = "determine working directory: %w"
)

//go:embed default_root_configuration.yaml
var embeddedRootConfigurationBytes []byte

// RootConfigurationSource holds the raw configuration data and its origin.
type RootConfigurationSource struct {
	Reference string
	Content   []byte
}

// EmbeddedRootConfiguration is the configuration compiled into the binary.
func EmbeddedRootConfiguration() RootConfigurationSource {
	return RootConfigurationSource{Reference: EmbeddedRootConfigurationReference, Content: embeddedRootConfigurationBytes}
}

// RootConfigurationLoader searches, in order: the explicit path, the
// PKTABLES_CONFIG file, ./config.yaml, $XDG_CONFIG_HOME/pktables/config.yaml
// and ~/.pktables/config.yaml. The embedded configuration is used when none
// of them can be read.
type RootConfigurationLoader struct {
	Fs                afero.Fs
	WorkingDirectory  string
	HomeDirectory     string
	ConfigHome        string
	EnvironmentConfig string
}

// NewRootConfigurationLoader searches only the two given directories.
func NewRootConfigurationLoader(workingDirectory string, homeDirectory string) RootConfigurationLoader {
	return RootConfigurationLoader{
		Fs:               afero.NewOsFs(),
		WorkingDirectory: workingDirectory,
		HomeDirectory:    homeDirectory,
	}
}

// NewDefaultRootConfigurationLoader reads the process working directory and
// the HOME, XDG_CONFIG_HOME and PKTABLES_CONFIG variables.
func NewDefaultRootConfigurationLoader() (RootConfigurationLoader, error) {
	workingDirectory, err := os.Getwd()
	if err != nil {
		return RootConfigurationLoader{}, fmt.Errorf(workingDirectoryResolutionErrorFormat, err)
	}
	loader := NewRootConfigurationLoader(workingDirectory, os.Getenv(homeEnvironmentVariable))
	loader.ConfigHome = os.Getenv(configHomeEnvironmentVariable)
	loader.EnvironmentConfig = os.Getenv(ConfigPathEnvironmentVariable)
	return loader, nil
}

// Load returns the first readable candidate. A named file (explicit or from
// the environment) that exists but cannot be read is an error; a missing one
// falls through to the next candidate.
func (loader RootConfigurationLoader) Load(explicitPath string) (RootConfigurationSource, error) {
	filesystem := loader.Fs
	if filesystem == nil {
		filesystem = afero.NewOsFs()
	}
	for _, candidate := range loader.candidates(explicitPath) {
		content, err := afero.ReadFile(filesystem, candidate.path)
		if err == nil {
			return RootConfigurationSource{Reference: candidate.path, Content: content}, nil
		}
		if candidate.named && !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, fs.ErrPermission) {
			return RootConfigurationSource{}, fmt.Errorf(requiredConfigurationReadErrorFormat, candidate.path, err)
		}
	}
	return EmbeddedRootConfiguration(), nil
}

// SearchPath lists the candidate files in the order Load tries them.
func (loader RootConfigurationLoader) SearchPath(explicitPath string) []string {
	candidates := loader.candidates(explicitPath)
	paths := make([]string, 0, len(candidates))
	for _, candidate := range candidates {
		paths = append(paths, candidate.path)
	}
	return paths
}

type configurationCandidate struct {
	path  string
	named bool
}

func (loader RootConfigurationLoader) candidates(explicitPath string) []configurationCandidate {
	var candidates []configurationCandidate
	add := func(named bool, directory string, elements ...string) {
		if directory != "" {
			candidates = append(candidates, configurationCandidate{
				path:  filepath.Join(append([]string{directory}, elements...)...),
				named: named,
			})
		}
	}
	add(true, explicitPath)
	add(true, loader.EnvironmentConfig)
	add(false, loader.WorkingDirectory, configurationFileName)
	add(false, loader.ConfigHome, applicationDirectoryName, configurationFileName)
	add(false, loader.HomeDirectory, homeDirectoryName, configurationFileName)
	return candidates
}
