// Package config reads the fully-resolved project file. Stack detection,
// profile merging, and template generation happen elsewhere; by the time a
// file lands here every app and container is spelled out.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/devstack/pkg/specs"
)

const DefaultConfigFilename = ".devstack.yaml"

func DefaultPath(root string) string {
	return filepath.Join(root, DefaultConfigFilename)
}

func LoadFromFile(path string) (*specs.Project, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read project file")
	}
	var p specs.Project
	if err := yaml.Unmarshal(b, &p); err != nil {
		return nil, errors.Wrap(err, "parse project yaml")
	}
	if err := validate(&p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		p.Name = filepath.Base(filepath.Dir(path))
	}
	if p.ProxyHost == "" {
		p.ProxyHost = "localhost"
	}
	return &p, nil
}

func validate(p *specs.Project) error {
	seen := map[string]bool{}
	for _, a := range p.Apps {
		if a.Name == "" {
			return errors.New("app missing name")
		}
		if a.Command == "" {
			return errors.Errorf("app %q missing command", a.Name)
		}
		if seen[a.Name] {
			return errors.Errorf("duplicate app name %q", a.Name)
		}
		seen[a.Name] = true
	}
	for _, c := range p.Containers {
		if c.Name == "" {
			return errors.New("container missing name")
		}
		if c.Image == "" {
			return errors.Errorf("container %q missing image", c.Name)
		}
	}
	for _, s := range p.Services {
		if s.Service == "" {
			return errors.New("compose service missing name")
		}
		if p.ComposeFile == "" {
			return errors.Errorf("service %q declared but no compose_file set", s.Service)
		}
	}
	return nil
}
