package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/torosent/courier/internal/httpclient"
)

type outputFormat string

const (
	outputText outputFormat = "text"
	outputJSON outputFormat = "json"
	outputYAML outputFormat = "yaml"
)

func parseOutputFormat(s string) (outputFormat, error) {
	switch f := outputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", outputText:
		return outputText, nil
	case outputJSON, outputYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported output %q: use text, json or yaml", s)
	}
}

// responseReport is the structured form of a response for json and yaml
// output. Body holds decoded JSON when the response is JSON, otherwise text.
type responseReport struct {
	Status   int               `json:"status" yaml:"status"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body     any               `json:"body" yaml:"body"`
	Mocked   bool              `json:"mocked" yaml:"mocked"`
	Duration string            `json:"duration,omitempty" yaml:"duration,omitempty"`
}

type printOptions struct {
	format  outputFormat
	path    string
	verbose bool
	elapsed time.Duration
}

// printResponse writes resp to w. With a path only the selected gjson value
// is written.
func printResponse(w io.Writer, resp *httpclient.Response, opts printOptions) error {
	if opts.path != "" {
		return printPath(w, resp, opts)
	}

	switch opts.format {
	case outputJSON, outputYAML:
		report := responseReport{
			Status: resp.Status(),
			Body:   decodedBody(resp),
			Mocked: resp.IsMocked(),
		}
		if opts.verbose {
			report.Headers = resp.Headers().All()
			report.Duration = opts.elapsed.String()
		}
		return encode(w, opts.format, report)
	default:
		return printText(w, resp, opts)
	}
}

func printPath(w io.Writer, resp *httpclient.Response, opts printOptions) error {
	result := resp.JSON(opts.path)
	if !result.Exists() {
		return fmt.Errorf("path %q not found in response", opts.path)
	}
	switch opts.format {
	case outputJSON, outputYAML:
		return encode(w, opts.format, result.Value())
	default:
		if result.Type == gjson.String {
			_, err := fmt.Fprintln(w, result.String())
			return err
		}
		_, err := fmt.Fprintln(w, result.Raw)
		return err
	}
}

func printText(w io.Writer, resp *httpclient.Response, opts printOptions) error {
	if opts.verbose {
		mocked := ""
		if resp.IsMocked() {
			mocked = " (mocked)"
		}
		fmt.Fprintf(w, "%d %s%s in %s\n", resp.Status(), http.StatusText(resp.Status()), mocked, opts.elapsed.Round(time.Millisecond))
		for _, e := range resp.Headers().Entries() {
			fmt.Fprintf(w, "%s: %s\n", e.Key, e.Value)
		}
		fmt.Fprintln(w)
	}

	data := resp.Body()
	if gjson.ValidBytes(data) && len(bytes.TrimSpace(data)) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, data, "", "  "); err == nil {
			data = buf.Bytes()
		}
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if len(data) > 0 && data[len(data)-1] != '\n' {
		_, err := fmt.Fprintln(w)
		return err
	}
	return nil
}

func decodedBody(resp *httpclient.Response) any {
	data := resp.Body()
	if len(bytes.TrimSpace(data)) > 0 && gjson.ValidBytes(data) {
		return resp.JSON().Value()
	}
	return string(data)
}

func encode(w io.Writer, format outputFormat, v any) error {
	if format == outputYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
