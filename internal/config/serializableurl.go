package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrMustBeScalar = errors.New("URL must be a scalar")

// SerializableURL is a URL written as a plain string in the configuration.
type SerializableURL struct {
	URL *url.URL
}

func (s *SerializableURL) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("%w (line %d)", ErrMustBeScalar, node.Line)
	}

	parsed, err := url.Parse(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("invalid URL (line %d): %w", node.Line, err)
	}

	s.URL = parsed
	return nil
}

func (s SerializableURL) MarshalYAML() (any, error) {
	return s.String(), nil
}

func (s SerializableURL) String() string {
	if s.URL == nil {
		return ""
	}
	return s.URL.String()
}
