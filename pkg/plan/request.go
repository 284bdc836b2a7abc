package plan

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-viper/mapstructure/v2"

	"github.com/matzehuels/distbuilder/pkg/errors"
)

// RequestEntry asks for one library. An empty Version and missing options
// are inferred by the resolver.
type RequestEntry struct {
	Version string         `json:"version,omitempty" toml:"version,omitempty" mapstructure:"version"`
	Options map[string]any `json:"options,omitempty" toml:"options,omitempty" mapstructure:"options"`
}

// Request maps library names (full or short) to what is asked of them.
type Request map[string]RequestEntry

// Libraries returns the requested names in sorted order.
func (r Request) Libraries() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Format is a request document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatOf picks the encoding from a file extension. Unknown extensions
// are treated as JSON.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatJSON
}

// LoadRequest reads a request document.
func LoadRequest(path string) (Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeIO, err, "read request %s", path)
	}
	req, err := ParseRequest(data, FormatOf(path))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfiguration, err, "parse request %s", path)
	}
	return req, nil
}

// ParseRequest decodes a request document.
func ParseRequest(data []byte, format Format) (Request, error) {
	raw := map[string]any{}
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, err
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
	}

	req := Request{}
	if err := flatten(req, "", raw); err != nil {
		return nil, err
	}
	return req, nil
}

// flatten walks decoded tables. An unquoted TOML header such as
// [madler.zlib] decodes as nested tables, so a table holding only tables
// is treated as a name prefix.
func flatten(req Request, prefix string, raw map[string]any) error {
	for key, val := range raw {
		name := key
		if prefix != "" {
			name = prefix + "." + key
		}
		table, ok := val.(map[string]any)
		if !ok {
			return errors.New(errors.ErrCodeConfiguration, "%s: expected a table, got %T", name, val)
		}
		if !isEntry(table) && isNamespace(table) {
			if err := flatten(req, name, table); err != nil {
				return err
			}
			continue
		}
		entry, err := decodeEntry(name, table)
		if err != nil {
			return err
		}
		req[name] = entry
	}
	return nil
}

func isEntry(table map[string]any) bool {
	if len(table) == 0 {
		return true
	}
	for k := range table {
		if k != "version" && k != "options" {
			return false
		}
	}
	return true
}

func isNamespace(table map[string]any) bool {
	for _, v := range table {
		if _, ok := v.(map[string]any); !ok {
			return false
		}
	}
	return true
}

func decodeEntry(name string, table map[string]any) (RequestEntry, error) {
	var entry RequestEntry
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &entry,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return entry, err
	}
	if err := dec.Decode(table); err != nil {
		return entry, errors.Wrap(errors.ErrCodeConfiguration, err, "request entry %s", name)
	}
	for k, v := range entry.Options {
		if n, ok := v.(json.Number); ok {
			i, err := n.Int64()
			if err != nil {
				return entry, errors.New(errors.ErrCodeConfiguration, "%s option %s: %s is not an integer", name, k, n)
			}
			entry.Options[k] = i
		}
	}
	return entry, nil
}

// Encode renders the request in the given format.
func (r Request) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(map[string]RequestEntry(r)); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode request")
		}
		return buf.Bytes(), nil
	default:
		data, err := json.MarshalIndent(r, "", "    ")
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInternal, err, "encode request")
		}
		return append(data, '\n'), nil
	}
}
