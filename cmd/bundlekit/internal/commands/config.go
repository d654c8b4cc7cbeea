package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/bundlekit/internal/config"
)

type ConfigCmd struct {
	Mode   string `help:"build mode" default:"production" enum:"development,production" env:"BUNDLEKIT_MODE"`
	Format string `help:"output format" default:"yaml" enum:"yaml,json"`

	Project ProjectFlags `embed:""`
}

func (c *ConfigCmd) Run() error {
	return c.print(os.Stdout)
}

func (c *ConfigCmd) print(w io.Writer) error {
	mode, err := parseMode(c.Mode)
	if err != nil {
		return err
	}

	layout, err := c.Project.layout(mode)
	if err != nil {
		return err
	}

	desc, err := config.Resolve(mode, layout)
	if err != nil {
		return err
	}

	switch c.Format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(desc)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(desc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", c.Format)
	}
}
