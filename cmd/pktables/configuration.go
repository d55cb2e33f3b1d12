package pktables

import (
	"fmt"

	"github.com/temirov/pktables/internal/config"
)

// loadRootConfiguration parses the first configuration found on the search
// path and reports where it came from. A missing --config file falls through
// to the search path.
func loadRootConfiguration(configurationPath string) (config.Root, config.RootConfigurationSource, error) {
	loader, err := config.NewDefaultRootConfigurationLoader()
	if err != nil {
		return config.Root{}, config.RootConfigurationSource{}, fmt.Errorf(configurationLoaderInitializationErrorFormat, err)
	}
	source, err := loader.Load(configurationPath)
	if err != nil {
		return config.Root{}, config.RootConfigurationSource{}, fmt.Errorf(configurationSourceResolutionErrorFormat, err)
	}
	rootConfiguration, err := config.LoadRoot(source)
	if err != nil {
		return config.Root{}, source, fmt.Errorf(rootConfigurationLoadErrorFormat, source.Reference, err)
	}
	return rootConfiguration, source, nil
}
