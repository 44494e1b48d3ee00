package specs

import (
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// UnmarshalYAML accepts an integer, the string "auto", or nothing.
func (p *PortSpec) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return errors.Wrap(err, "decode port")
	}
	return p.set(raw)
}

func (p *PortSpec) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "decode port")
	}
	return p.set(raw)
}

func (p *PortSpec) set(raw any) error {
	switch v := raw.(type) {
	case nil:
		*p = PortSpec{}
	case int:
		return p.setInt(v)
	case float64:
		return p.setInt(int(v))
	case string:
		if v == "auto" {
			*p = PortSpec{Auto: true}
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Errorf("port must be an integer or \"auto\", got %q", v)
		}
		return p.setInt(n)
	default:
		return errors.Errorf("port must be an integer or \"auto\", got %T", raw)
	}
	return nil
}

func (p *PortSpec) setInt(n int) error {
	if n <= 0 || n > 65535 {
		return errors.Errorf("port %d out of range", n)
	}
	*p = PortSpec{Value: n}
	return nil
}

func (p PortSpec) MarshalYAML() (any, error) {
	if p.Auto {
		return "auto", nil
	}
	if p.Value == 0 {
		return nil, nil
	}
	return p.Value, nil
}

func (p PortSpec) MarshalJSON() ([]byte, error) {
	if p.Auto {
		return []byte(`"auto"`), nil
	}
	if p.Value == 0 {
		return []byte("null"), nil
	}
	return []byte(strconv.Itoa(p.Value)), nil
}

func (p PortSpec) String() string {
	switch {
	case p.Auto:
		return "auto"
	case p.Value > 0:
		return strconv.Itoa(p.Value)
	default:
		return "none"
	}
}
