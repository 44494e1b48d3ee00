package specs

// AppSpec describes one application process, fully resolved by the
// configuration layer. It is immutable for the duration of a run.
type AppSpec struct {
	Name    string            `yaml:"name" json:"name"`
	Dir     string            `yaml:"dir,omitempty" json:"dir,omitempty"`
	Command string            `yaml:"command" json:"command"`
	Port    PortSpec          `yaml:"port,omitempty" json:"port,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`

	HealthURL            string `yaml:"health_url,omitempty" json:"health_url,omitempty"`
	HealthTimeoutSeconds int    `yaml:"health_timeout_seconds,omitempty" json:"health_timeout_seconds,omitempty"`
}

// PortSpec is either a fixed port number, the string "auto", or absent.
type PortSpec struct {
	Value int
	Auto  bool
}

// Fixed reports whether the spec names a concrete port.
func (p PortSpec) Fixed() bool { return !p.Auto && p.Value > 0 }

// None reports whether no port was declared at all.
func (p PortSpec) None() bool { return !p.Auto && p.Value == 0 }

// ContainerSpec describes a standalone container started with an explicit
// image and run arguments, outside any compose file.
type ContainerSpec struct {
	Name           string            `yaml:"name" json:"name"`
	Image          string            `yaml:"image" json:"image"`
	Ports          []PortMapping     `yaml:"ports,omitempty" json:"ports,omitempty"`
	Env            map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Volumes        []string          `yaml:"volumes,omitempty" json:"volumes,omitempty"`
	ReadyCheck     string            `yaml:"ready_check,omitempty" json:"ready_check,omitempty"`
	TimeoutSeconds int               `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`

	// Route, when set, registers <Name> -> first host port in the shared
	// route table so the gateway can front the container's HTTP API.
	Route bool `yaml:"route,omitempty" json:"route,omitempty"`
}

// PortMapping maps a host port to a container port.
type PortMapping struct {
	Host      int `yaml:"host" json:"host"`
	Container int `yaml:"container" json:"container"`
}

// ComposeServiceSpec describes one service managed through a compose file.
type ComposeServiceSpec struct {
	Service        string `yaml:"service" json:"service"`
	ContainerName  string `yaml:"container_name,omitempty" json:"container_name,omitempty"`
	ReadyCheck     string `yaml:"ready_check,omitempty" json:"ready_check,omitempty"`
	TimeoutSeconds int    `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
}

// Project is the fully-resolved input handed to the runtime: what to run,
// which containers it depends on, and where the compose file lives.
type Project struct {
	Name        string               `yaml:"name,omitempty" json:"name,omitempty"`
	ProxyHost   string               `yaml:"proxy_host,omitempty" json:"proxy_host,omitempty"`
	ComposeFile string               `yaml:"compose_file,omitempty" json:"compose_file,omitempty"`
	Apps        []AppSpec            `yaml:"apps,omitempty" json:"apps,omitempty"`
	Containers  []ContainerSpec      `yaml:"containers,omitempty" json:"containers,omitempty"`
	Services    []ComposeServiceSpec `yaml:"services,omitempty" json:"services,omitempty"`
}

// App returns the app spec with the given name, or nil.
func (p *Project) App(name string) *AppSpec {
	for i := range p.Apps {
		if p.Apps[i].Name == name {
			return &p.Apps[i]
		}
	}
	return nil
}
