package metadata

import (
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// NewID generates a record identifier. Drivers call this when a create
// payload omits "id" (spec §4.3 "create ... assigns id if absent").
func NewID() string { return uuid.New().String() }

// yamlField mirrors the subset of FieldDef that is expressible declaratively.
type yamlField struct {
	Type      FieldType `yaml:"type"`
	Label     string    `yaml:"label"`
	Help      string    `yaml:"help"`
	Required  bool      `yaml:"required"`
	Unique    bool      `yaml:"unique"`
	Readonly  bool      `yaml:"readonly"`
	Hidden    bool      `yaml:"hidden"`
	Multiple  bool      `yaml:"multiple"`
	Target    string    `yaml:"target"`
	MinLength *int      `yaml:"min_length"`
	MaxLength *int      `yaml:"max_length"`
	Pattern   string    `yaml:"pattern"`
	Regex     string    `yaml:"regex"`
	Options   []Option  `yaml:"options"`
}

type yamlAction struct {
	Scope   ActionScope          `yaml:"scope"`
	Label   string               `yaml:"label"`
	Icon    string               `yaml:"icon"`
	Confirm string               `yaml:"confirm"`
	Handler string               `yaml:"handler"`
	Input   map[string]yamlField `yaml:"input"`
}

type yamlObject struct {
	ID           string                `yaml:"id"`
	Label        string                `yaml:"label"`
	Icon         string                `yaml:"icon"`
	Description  string                `yaml:"description"`
	Datasource   string                `yaml:"datasource"`
	Customizable bool                  `yaml:"customizable"`
	Fields       map[string]yamlField  `yaml:"fields"`
	Actions      map[string]yamlAction `yaml:"actions"`
	Listeners    ListenerSet           `yaml:"listeners"`
	InitialData  []map[string]any      `yaml:"initial_data"`
}

// Package is a YAML-declared bundle of object definitions, the shape a
// package loader hands to Registry.RegisterObject in a loop.
type Package struct {
	Name    string `yaml:"package"`
	Objects []yamlObject `yaml:"objects"`
}

// LoadPackage parses a YAML document into a Package of ObjectDefs and
// registers every one of them under pkg's name.
func LoadPackage(r *Registry, doc []byte) error {
	var pkg Package
	if err := yaml.Unmarshal(doc, &pkg); err != nil {
		return fmt.Errorf("metadata: parse package: %w", err)
	}
	if pkg.Name == "" {
		return fmt.Errorf("metadata: package document missing top-level 'package' name")
	}
	for _, yo := range pkg.Objects {
		obj, err := buildObject(yo)
		if err != nil {
			return fmt.Errorf("metadata: object %q: %w", yo.ID, err)
		}
		r.RegisterObject(pkg.Name, obj)
	}
	return nil
}

func buildObject(yo yamlObject) (*ObjectDef, error) {
	if yo.ID == "" {
		return nil, fmt.Errorf("missing id")
	}
	obj := NewObject(yo.ID)
	obj.Label = yo.Label
	obj.Icon = yo.Icon
	obj.Description = yo.Description
	obj.Customizable = yo.Customizable
	if yo.Datasource != "" {
		obj.Datasource = yo.Datasource
	}
	obj.InitialData = yo.InitialData
	if yo.Listeners != nil {
		obj.Listeners = yo.Listeners
	}

	for name, yf := range yo.Fields {
		obj.WithField(buildField(name, yf))
	}
	for name, ya := range yo.Actions {
		input := make(map[string]*FieldDef, len(ya.Input))
		for pname, pf := range ya.Input {
			input[pname] = buildField(pname, pf)
		}
		obj.WithAction(&ActionDef{
			Name:    name,
			Scope:   ya.Scope,
			Label:   ya.Label,
			Icon:    ya.Icon,
			Confirm: ya.Confirm,
			Handler: ya.Handler,
			Input:   input,
		})
	}
	return obj, nil
}

func buildField(name string, yf yamlField) *FieldDef {
	f := newField(name, yf.Type)
	f.label = yf.Label
	f.help = yf.Help
	f.required = yf.Required
	f.unique = yf.Unique
	f.readonly = yf.Readonly
	f.hidden = yf.Hidden
	f.multiple = yf.Multiple
	f.relationTarget = yf.Target
	f.options = yf.Options

	if yf.MinLength != nil {
		f.MinLength(*yf.MinLength)
	}
	if yf.MaxLength != nil {
		f.MaxLength(*yf.MaxLength)
	}
	if yf.Pattern == "" {
		yf.Pattern = yf.Regex
	}
	if yf.Pattern != "" {
		f.Pattern(yf.Pattern)
	}

	// A declaratively-loaded email/url field gets the same built-in format
	// check its Go-constructor counterpart (Email/URL) attaches, unless the
	// document already supplied its own validation-relevant pattern.
	if yf.Pattern == "" {
		switch yf.Type {
		case FieldEmail:
			f.ensureValidation().Format = FormatEmail
		case FieldURL:
			f.ensureValidation().Format = FormatURL
		}
	}
	return f
}
