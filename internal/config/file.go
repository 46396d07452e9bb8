package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// maxIncludeDepth bounds nested @include directives.
const maxIncludeDepth = 8

// LoadFile reads a TOML, YAML or JSON config file into a map, chosen by
// extension. A missing file yields a nil map and no error.
//
// A top-level "@include" key names further files, relative to the including
// file, whose values sit below the including file's.
func LoadFile(path string) (map[string]any, error) {
	return loadFile(path, maxIncludeDepth)
}

func loadFile(path string, depth int) (map[string]any, error) {
	if depth <= 0 {
		return nil, errors.Wrap(ErrIncludeDepth, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading config file %s", path)
	}

	m, err := Parse(path, data)
	if err != nil || m == nil {
		return m, err
	}

	includes, ok := m["@include"]
	if !ok {
		return m, nil
	}
	delete(m, "@include")

	list, err := includeList(includes)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	base := filepath.Dir(path)
	merged := map[string]any{}
	for _, inc := range list {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(base, inc)
		}
		sub, err := loadFile(inc, depth-1)
		if err != nil {
			return nil, errors.Wrapf(err, "loading include %s", inc)
		}
		merged = DeepMerge(merged, sub)
	}
	return DeepMerge(merged, m), nil
}

func includeList(v any) ([]string, error) {
	switch v := v.(type) {
	case string:
		return []string{v}, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, errors.New("@include must be string or array of strings")
			}
			out = append(out, s)
		}
		return out, nil
	case []string:
		return v, nil
	default:
		return nil, errors.Newf("@include must be string or array of strings, got %T", v)
	}
}

// Parse decodes config data. The format is taken from the extension of
// source.
func Parse(source string, data []byte) (map[string]any, error) {
	var m map[string]any
	var err error

	switch strings.ToLower(filepath.Ext(source)) {
	case ".toml":
		err = toml.Unmarshal(data, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &m)
	case ".json":
		err = json.Unmarshal(data, &m)
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", source)
	}
	if err != nil {
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	return m, nil
}

// DeepMerge recursively merges src into dst.
// Values in src override values in dst.
// Maps are merged recursively; other types are replaced.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		dstVal, exists := dst[key]
		if !exists {
			dst[key] = srcVal
			continue
		}

		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dstVal.(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
		} else {
			dst[key] = srcVal
		}
	}
	return dst
}
