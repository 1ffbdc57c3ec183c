package manager

import (
	"strings"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"

	"apphost/types"
)

// plainServer is a postgres container as the plain-container profile leaves it.
func plainServer() observedContainer {
	return observedContainer{
		Image:    "postgres:17",
		Volumes:  map[string]string{types.PostgresDataPath: "3f1c0d2a9b"},
		Networks: map[string][]string{"apphost": {"postgres"}},
	}
}

func cloudServerSpec() ContainerSpec {
	return ContainerSpec{
		Name:       "mealie-postgres",
		Image:      "postgres:17",
		Network:    "mealie",
		Aliases:    []string{"postgres"},
		Mounts:     []types.VolumeMount{{Name: "postgres-data", Target: types.PostgresDataPath}},
		Persistent: true,
	}
}

func TestRecreateReason(t *testing.T) {
	tests := []struct {
		name     string
		observed observedContainer
		spec     ContainerSpec
		want     string // Substring of the reason, empty when reusable
	}{
		{
			name:     "same image and no requested volumes",
			observed: plainServer(),
			spec:     ContainerSpec{Image: "postgres:17", Network: "apphost"},
		},
		{
			name:     "image changed",
			observed: plainServer(),
			spec:     ContainerSpec{Image: "postgres:18"},
			want:     "image",
		},
		{
			name:     "requested data volume missing",
			observed: plainServer(),
			spec:     cloudServerSpec(),
			want:     `volume "postgres-data"`,
		},
		{
			name: "requested data volume present",
			observed: observedContainer{
				Image:   "postgres:17",
				Volumes: map[string]string{types.PostgresDataPath: "postgres-data"},
			},
			spec: cloudServerSpec(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.observed.recreateReason(tt.spec)
			if tt.want == "" && got != "" {
				t.Errorf("Expected container to be reusable, got reason %q", got)
			}
			if tt.want != "" && !strings.Contains(got, tt.want) {
				t.Errorf("Expected reason containing %q, got %q", tt.want, got)
			}
		})
	}
}

func TestNeedsNetwork(t *testing.T) {
	observed := plainServer()

	if observed.needsNetwork(ContainerSpec{Network: "apphost"}) {
		t.Error("Container already on its network should not be connected again")
	}
	if !observed.needsNetwork(cloudServerSpec()) {
		t.Error("Container reused by another topology must join that topology's network")
	}
	if observed.needsNetwork(ContainerSpec{}) {
		t.Error("No network requested, nothing to join")
	}
}

func TestObserveContainer(t *testing.T) {
	inspect := container.InspectResponse{
		Config: &container.Config{Image: "postgres:17"},
		Mounts: []container.MountPoint{
			{Type: mount.TypeVolume, Name: "postgres-data", Destination: types.PostgresDataPath},
			{Type: mount.TypeBind, Source: "/etc/localtime", Destination: "/etc/localtime"},
		},
	}

	observed := observeContainer(inspect)
	if observed.Image != "postgres:17" {
		t.Errorf("Expected image postgres:17, got %q", observed.Image)
	}
	if len(observed.Volumes) != 1 || observed.Volumes[types.PostgresDataPath] != "postgres-data" {
		t.Errorf("Expected only the named volume, got %v", observed.Volumes)
	}
	if len(observed.Networks) != 0 {
		t.Errorf("Expected no networks without network settings, got %v", observed.Networks)
	}
	if reason := observed.recreateReason(cloudServerSpec()); reason != "" {
		t.Errorf("Expected the cloud server to be reusable, got %q", reason)
	}
	if !observed.needsNetwork(cloudServerSpec()) {
		t.Error("Expected the cloud server to join its network")
	}

	// Zero value from a failed inspect must not panic.
	_ = observeContainer(container.InspectResponse{})
}
