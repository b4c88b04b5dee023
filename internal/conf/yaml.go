package conf

import (
	"bytes"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/tphakala/framebridge/internal/errors"
)

// DumpYAML writes the effective settings as YAML. The Sentry DSN is masked.
func DumpYAML(w io.Writer, settings *Settings) error {
	out := *settings
	if out.Sentry.DSN != "" {
		out.Sentry.DSN = "[REDACTED]"
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "encode-yaml").
			Build()
	}
	if err := enc.Close(); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "encode-yaml").
			Build()
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			Context("operation", "write-yaml").
			Build()
	}
	return nil
}
