package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/dshills/lspsync/internal/app"
	"github.com/dshills/lspsync/internal/dispatcher"
)

// step is one scripted event. File names a document relative to the
// workspace root; it fills URI and, for doc.open without text, the text.
type step struct {
	Name  string         `yaml:"name"`
	URI   string         `yaml:"uri"`
	File  string         `yaml:"file"`
	Start int64          `yaml:"start"`
	End   int64          `yaml:"end"`
	Text  string         `yaml:"text"`
	Args  map[string]any `yaml:"args"`
	Wait  time.Duration  `yaml:"wait"`
}

// loadScript reads a YAML (or JSON) list of steps.
func loadScript(path string) ([]step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading script %s", path)
	}
	var steps []step
	if err := yaml.Unmarshal(data, &steps); err != nil {
		return nil, errors.Wrapf(err, "parsing script %s", path)
	}
	for i, s := range steps {
		if s.Name == "" {
			return nil, errors.Newf("script %s: step %d has no name", path, i+1)
		}
	}
	return steps, nil
}

// event resolves the step against the workspace root.
func (s step) event(root string) (dispatcher.Event, error) {
	ev := dispatcher.Event{
		Name:  s.Name,
		URI:   s.URI,
		Start: s.Start,
		End:   s.End,
		Text:  s.Text,
		Args:  s.Args,
	}
	if s.File == "" {
		return ev, nil
	}

	path := s.File
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	uri, err := app.FileURI(path)
	if err != nil {
		return ev, err
	}
	ev.URI = uri

	if s.Name == "doc.open" && s.Text == "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return ev, errors.Wrapf(err, "reading %s", path)
		}
		ev.Text = string(data)
	}
	return ev, nil
}
