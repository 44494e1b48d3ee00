// Package compose reads just enough of a compose file to support host-port
// conflict remapping: each service's image, environment, container name, and
// published ports. It is a lookup table, not a compose implementation;
// orchestration of compose services is delegated to the docker CLI.
package compose

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type File struct {
	Name     string             `yaml:"name,omitempty"`
	Services map[string]Service `yaml:"services"`
}

type Service struct {
	Image         string   `yaml:"image,omitempty"`
	ContainerName string   `yaml:"container_name,omitempty"`
	Environment   EnvList  `yaml:"environment,omitempty"`
	Ports         []string `yaml:"ports,omitempty"`
	Volumes       []string `yaml:"volumes,omitempty"`
}

// EnvList accepts both compose forms: a map and a list of KEY=VALUE strings.
type EnvList map[string]string

func (e *EnvList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		m := map[string]string{}
		if err := node.Decode(&m); err != nil {
			return errors.Wrap(err, "decode environment map")
		}
		*e = m
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return errors.Wrap(err, "decode environment list")
		}
		m := map[string]string{}
		for _, item := range items {
			k, v, _ := strings.Cut(item, "=")
			m[k] = v
		}
		*e = m
	default:
		return errors.New("environment must be a map or a list")
	}
	return nil
}

func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read compose file")
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "parse compose yaml")
	}
	return &f, nil
}

// Service returns the named service definition.
func (f *File) Service(name string) (*Service, bool) {
	if f == nil {
		return nil, false
	}
	s, ok := f.Services[name]
	if !ok {
		return nil, false
	}
	return &s, true
}

// PortBinding is one published port from a compose "ports" entry.
type PortBinding struct {
	Host      int
	Container int
}

// PortBindings parses the service's short-syntax port entries. Entries
// without a host part (container-only) are skipped: nothing to conflict with.
func (s *Service) PortBindings() []PortBinding {
	var out []PortBinding
	for _, raw := range s.Ports {
		b, ok := parsePortEntry(raw)
		if ok {
			out = append(out, b)
		}
	}
	return out
}

func parsePortEntry(raw string) (PortBinding, bool) {
	// Forms: "8080:80", "127.0.0.1:8080:80", "80".
	parts := strings.Split(strings.TrimSpace(raw), ":")
	switch len(parts) {
	case 2:
		return makeBinding(parts[0], parts[1])
	case 3:
		return makeBinding(parts[1], parts[2])
	default:
		return PortBinding{}, false
	}
}

func makeBinding(host, container string) (PortBinding, bool) {
	container = strings.TrimSuffix(container, "/tcp")
	container = strings.TrimSuffix(container, "/udp")
	h, err := strconv.Atoi(host)
	if err != nil {
		return PortBinding{}, false
	}
	c, err := strconv.Atoi(container)
	if err != nil {
		return PortBinding{}, false
	}
	return PortBinding{Host: h, Container: c}, true
}
