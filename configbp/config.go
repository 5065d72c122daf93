// Package configbp parses YAML configuration files strictly, with
// environment variable substitution.
package configbp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/reddit/searchbp.go/log"
)

// ConfigPath is the default config file, from $SEARCHBP_CONFIG_PATH.
var ConfigPath = os.Getenv("SEARCHBP_CONFIG_PATH")

// Validator is implemented by configs that check themselves after parsing.
type Validator interface {
	Validate() error
}

type envsubstReader struct {
	buffer bytes.Buffer
	lines  *bufio.Scanner
}

func (r *envsubstReader) Read(buf []byte) (int, error) {
	if r.buffer.Len() > 0 {
		return r.buffer.Read(buf)
	}

	if !r.lines.Scan() {
		if err := r.lines.Err(); err != nil {
			return 0, err
		}
		return 0, io.EOF
	}
	r.buffer.WriteString(os.ExpandEnv(r.lines.Text()))
	r.buffer.WriteString("\n")
	return r.buffer.Read(buf)
}

// ParseStrictFile parses the YAML file at path into ptr.
//
// See ParseStrictYAML for the parsing rules.
func ParseStrictFile(path string, ptr interface{}) error {
	switch ext := filepath.Ext(path); strings.ToLower(ext) {
	case ".yaml", ".yml":
	default:
		return fmt.Errorf("configbp: unsupported config extension %q", ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return err // contains filename
	}
	defer f.Close()
	return ParseStrictYAML(f, ptr)
}

// ParseStrictYAML parses YAML read from reader into ptr.
//
// Environment variables ($FOO and ${FOO}) are substituted before parsing,
// and unknown fields are errors. When ptr implements Validator, its Validate
// result is returned.
func ParseStrictYAML(reader io.Reader, ptr interface{}) error {
	reader = &envsubstReader{
		lines: bufio.NewScanner(reader),
	}

	var debugOutput strings.Builder
	if log.With().Desugar().Core().Enabled(zap.DebugLevel) {
		reader = io.TeeReader(reader, &debugOutput)
	}

	dec := yaml.NewDecoder(reader)
	dec.SetStrict(true)
	if err := dec.Decode(ptr); err != nil {
		if debugOutput.Len() > 0 {
			log.Debugw(
				"Partial configuration",
				"type", fmt.Sprintf("%T", ptr),
				"err", err,
				"yaml", debugOutput.String(),
			)
		}
		return fmt.Errorf("configbp: parsing YAML into %T: %w", ptr, err)
	}

	if debugOutput.Len() > 0 {
		log.Debugw(
			"Parsed configuration",
			"type", fmt.Sprintf("%T", ptr),
			"yaml", debugOutput.String(),
		)
	}

	if v, ok := ptr.(Validator); ok {
		return v.Validate()
	}
	return nil
}
