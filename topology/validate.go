package topology

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

// resourceNameRegex: letter first, letters, digits and single hyphens, no trailing hyphen.
var resourceNameRegex = regexp.MustCompile(`^[a-zA-Z]([a-zA-Z0-9-]{0,62}[a-zA-Z0-9])?$`)

var envKeyRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// volumeNameRegex follows the Docker volume naming rules.
var volumeNameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]+$`)

func validateResourceName(name string) error {
	if !resourceNameRegex.MatchString(name) || strings.Contains(name, "--") {
		return InvalidResourceError{Name: name, Reason: "name must start with a letter and contain only letters, digits and single hyphens (max 64)"}
	}
	return nil
}

func validateEnvKey(container, key string) error {
	if !envKeyRegex.MatchString(key) {
		return InvalidResourceError{Name: container, Reason: fmt.Sprintf("environment key %q is not a valid variable name", key)}
	}
	return nil
}

func validatePort(resource string, label string, port int) error {
	if port < 1 || port > 65535 {
		return InvalidResourceError{Name: resource, Reason: fmt.Sprintf("%s %d out of range 1-65535", label, port)}
	}
	return nil
}

func validateVolume(resource, volume, mountPath string) error {
	if !volumeNameRegex.MatchString(volume) {
		return InvalidResourceError{Name: resource, Reason: fmt.Sprintf("volume name %q is invalid", volume)}
	}
	if !path.IsAbs(mountPath) || path.Clean(mountPath) != mountPath {
		return InvalidResourceError{Name: resource, Reason: fmt.Sprintf("mount path %q must be a clean absolute path", mountPath)}
	}
	return nil
}
