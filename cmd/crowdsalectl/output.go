package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// printer writes command results as text, JSON or jq-filtered JSON.
type printer struct {
	w    io.Writer
	json bool
	code *gojq.Code
}

func newPrinter(c *cli.Context) (*printer, error) {
	p := &printer{w: c.App.Writer, json: c.Bool("json")}
	if filter := c.String("jq"); filter != "" {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		p.code, err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
		p.json = true
	}
	return p, nil
}

// print writes v as JSON when requested, otherwise calls text.
func (p *printer) print(v any, text func(w io.Writer)) error {
	if !p.json {
		text(p.w)
		return nil
	}
	if p.code == nil {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		fmt.Fprintln(p.w, string(data))
		return nil
	}

	// gojq operates on plain JSON values.
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("unmarshal output: %w", err)
	}

	iter := p.code.Run(doc)
	for {
		out, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := out.(error); isErr {
			return fmt.Errorf("jq: %w", err)
		}
		line, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshal jq result: %w", err)
		}
		fmt.Fprintln(p.w, string(line))
	}
}
