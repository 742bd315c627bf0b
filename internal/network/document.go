package network

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultNetwork []byte

// Document is the on-disk shape of a network file.
type Document struct {
	Stops    []StopDoc         `yaml:"stops" toml:"stops" validate:"required,min=1,dive"`
	Routes   []RouteDoc        `yaml:"routes" toml:"routes" validate:"dive"`
	Vehicles map[string]string `yaml:"vehicles" toml:"vehicles" validate:"dive,keys,required,endkeys,required"`
}

type StopDoc struct {
	Name string  `yaml:"name" toml:"name" validate:"required"`
	Lat  float64 `yaml:"lat" toml:"lat" validate:"gte=-90,lte=90"`
	Lon  float64 `yaml:"lon" toml:"lon" validate:"gte=-180,lte=180"`
}

type RouteDoc struct {
	Name  string   `yaml:"name" toml:"name" validate:"required"`
	Stops []string `yaml:"stops" toml:"stops" validate:"min=2,dive,required"`
}

// Build validates the document and turns it into a Network.
func (d Document) Build() (*Network, error) {
	if err := validator.New().Struct(d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidNetwork, err)
	}
	stops := make([]Stop, len(d.Stops))
	for i, s := range d.Stops {
		stops[i] = Stop{Name: strings.TrimSpace(s.Name), Lat: s.Lat, Lon: s.Lon}
	}
	routes := make([]Route, len(d.Routes))
	for i, r := range d.Routes {
		seq := make([]string, len(r.Stops))
		for j, s := range r.Stops {
			seq[j] = strings.TrimSpace(s)
		}
		routes[i] = Route{Name: strings.TrimSpace(r.Name), Stops: seq}
	}
	return New(stops, routes, d.Vehicles)
}

func ParseYAML(data []byte) (*Network, error) {
	var d Document
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode network yaml: %w", err)
	}
	return d.Build()
}

func ParseTOML(data []byte) (*Network, error) {
	var d Document
	if _, err := toml.Decode(string(data), &d); err != nil {
		return nil, fmt.Errorf("decode network toml: %w", err)
	}
	return d.Build()
}

// LoadFile reads a network file, picking the decoder from the extension.
func LoadFile(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return ParseYAML(data)
	case ".toml":
		return ParseTOML(data)
	default:
		return nil, fmt.Errorf("unsupported network file %q (want .yaml, .yml or .toml)", path)
	}
}

// Default returns the built-in campus shuttle network.
func Default() (*Network, error) { return ParseYAML(defaultNetwork) }
