// Command docgen renders the protocol reference. It combines
// docs/protocol.adoc with an endpoint listing scraped from the @Title/@Route
// annotations in internal/api, then converts the result to HTML with
// libasciidoc.
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bytesparadise/libasciidoc"
	"github.com/bytesparadise/libasciidoc/pkg/configuration"
)

type Endpoint struct {
	Title       string
	Route       string
	Description string
	Response    string
}

func main() {
	endpoints, err := scanEndpoints("internal/api")
	if err != nil {
		fmt.Fprintf(os.Stderr, "scan endpoints: %v\n", err)
		os.Exit(1)
	}

	source, err := buildAdoc("docs/protocol.adoc", endpoints)
	if err != nil {
		fmt.Fprintf(os.Stderr, "assemble document: %v\n", err)
		os.Exit(1)
	}

	output := bytes.NewBuffer(nil)
	config := configuration.NewConfiguration(
		configuration.WithHeaderFooter(true),
		configuration.WithAttribute("toc", "left"),
	)

	if _, err := libasciidoc.Convert(strings.NewReader(source), output, config); err != nil {
		fmt.Fprintf(os.Stderr, "convert asciidoc: %v\n", err)
		os.Exit(1)
	}

	outPath := "docs/protocol.html"
	if err := os.WriteFile(outPath, output.Bytes(), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s (%d endpoints)\n", outPath, len(endpoints))
}

func scanEndpoints(apiDir string) ([]Endpoint, error) {
	files, err := os.ReadDir(apiDir)
	if err != nil {
		return nil, err
	}

	reTitle := regexp.MustCompile(`// @Title: (.*)`)
	reRoute := regexp.MustCompile(`// @Route: (.*)`)
	reDesc := regexp.MustCompile(`// @Description: (.*)`)
	reResp := regexp.MustCompile(`// @Response: (.*)`)

	var endpoints []Endpoint
	for _, file := range files {
		if !strings.HasSuffix(file.Name(), ".go") || strings.HasSuffix(file.Name(), "_test.go") {
			continue
		}

		f, err := os.Open(filepath.Join(apiDir, file.Name()))
		if err != nil {
			continue
		}

		scanner := bufio.NewScanner(f)
		var current Endpoint

		for scanner.Scan() {
			line := scanner.Text()

			if match := reTitle.FindStringSubmatch(line); len(match) > 1 {
				current.Title = strings.TrimSpace(match[1])
			}
			if match := reRoute.FindStringSubmatch(line); len(match) > 1 {
				current.Route = strings.TrimSpace(match[1])
			}
			if match := reDesc.FindStringSubmatch(line); len(match) > 1 {
				current.Description = strings.TrimSpace(match[1])
			}
			if match := reResp.FindStringSubmatch(line); len(match) > 1 {
				current.Response = strings.TrimSpace(match[1])
				// End of block, append and reset
				if current.Title != "" && current.Route != "" {
					endpoints = append(endpoints, current)
					current = Endpoint{}
				}
			}
		}
		f.Close()
	}

	return endpoints, nil
}

func buildAdoc(basePath string, endpoints []Endpoint) (string, error) {
	base, err := os.ReadFile(basePath)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Write(base)
	b.WriteString("\n== Endpoints\n\n")
	b.WriteString("[cols=\"2,3,3\", options=\"header\"]\n|===\n")
	b.WriteString("|Route |Description |Response\n\n")
	for _, ep := range endpoints {
		fmt.Fprintf(&b, "|`%s`\n|%s\n|%s\n\n", ep.Route, ep.Description, ep.Response)
	}
	b.WriteString("|===\n")

	return b.String(), nil
}
