package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/happyface/jobeff/efficiency"
)

var ErrInstances = errors.New("invalid instance configuration")

// Instance is one configured report module. An empty Module means the jobs
// efficiency module.
type Instance struct {
	Name              string `yaml:"name"`
	Module            string `yaml:"module"`
	efficiency.Config `yaml:",inline"`
}

type instanceFile struct {
	Instances []Instance `yaml:"instances"`
}

func LoadInstances(filename string) ([]Instance, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open instance config %v: %w", filename, err)
	}
	defer f.Close()
	instances, err := ParseInstances(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load instance config %v: %w", filename, err)
	}
	return instances, nil
}

func ParseInstances(r io.Reader) ([]Instance, error) {
	var file instanceFile
	err := yaml.NewDecoder(r).Decode(&file)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode instance config: %w", err)
	}

	seen := make(map[string]bool)
	for i := range file.Instances {
		inst := &file.Instances[i]
		if inst.Name == "" {
			return nil, fmt.Errorf("%w: instance %d has no name", ErrInstances, i)
		}
		if seen[inst.Name] {
			return nil, fmt.Errorf("%w: duplicate instance %v", ErrInstances, inst.Name)
		}
		seen[inst.Name] = true
		if inst.Module == "" {
			inst.Module = efficiency.Name
		}
		if inst.Module != efficiency.Name {
			return nil, fmt.Errorf("%w: unknown module %v for instance %v", ErrInstances, inst.Module, inst.Name)
		}
	}
	return file.Instances, nil
}

// Select returns the instances named in names, in that order, or all
// instances when names is empty.
func Select(instances []Instance, names []string) ([]Instance, error) {
	if len(names) == 0 {
		return instances, nil
	}
	byName := make(map[string]Instance, len(instances))
	for _, inst := range instances {
		byName[inst.Name] = inst
	}
	var out []Instance
	for _, n := range names {
		inst, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("%w: no instance named %v", ErrInstances, n)
		}
		out = append(out, inst)
	}
	return out, nil
}
