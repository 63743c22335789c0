// Command x402-validate validates an x402 discovery document.
//
//	x402-validate <url>          fetch and validate a served document
//	x402-validate --file <path>  validate a document on disk
//	x402-validate --stdin        validate a document from standard input
//
// Exit status is 0 iff the document is valid. Warnings do not affect the
// exit status.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/x402labs/x402-go/extensions/bazaar"
)

func main() {
	file := flag.String("file", "", "path to a discovery document on disk")
	stdin := flag.Bool("stdin", false, "read the discovery document from stdin")
	flag.Usage = usage
	flag.Parse()

	data, source, err := loadDocument(*file, *stdin, flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "x402-validate: %v\n", err)
		os.Exit(2)
	}

	doc, result := bazaar.ParseDiscoveryDocument(data)
	if !result.Valid {
		fmt.Printf("%s: INVALID\n", source)
		for _, problem := range result.Errors {
			fmt.Printf("  error: %s\n", problem)
		}
		os.Exit(1)
	}

	warnings := collectWarnings(doc)
	fmt.Printf("%s: valid (%d resources)\n", source, len(doc.DiscoveryDocument.Resources))
	for _, warning := range warnings {
		fmt.Printf("  warning: %s\n", warning)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: x402-validate <url> | --file <path> | --stdin")
	flag.PrintDefaults()
}

func loadDocument(file string, stdin bool, args []string) ([]byte, string, error) {
	switch {
	case stdin:
		data, err := io.ReadAll(os.Stdin)
		return data, "stdin", err

	case file != "":
		data, err := os.ReadFile(file)
		return data, file, err

	case len(args) == 1:
		url := args[0]
		client := &http.Client{Timeout: 15 * time.Second}
		resp, err := client.Get(url)
		if err != nil {
			return nil, url, fmt.Errorf("failed to fetch %s: %w", url, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, url, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		return data, url, err

	default:
		usage()
		return nil, "", fmt.Errorf("exactly one document source is required")
	}
}

// collectWarnings flags omissions that are legal but hurt discoverability.
func collectWarnings(doc *bazaar.DiscoveryDocument) []string {
	var warnings []string
	for path, entry := range doc.DiscoveryDocument.Resources {
		if entry.Description == "" {
			warnings = append(warnings, fmt.Sprintf("%s: entry has no description", path))
		}
		for i, req := range entry.Accepts {
			if req.MaxTimeoutSeconds == 0 {
				warnings = append(warnings, fmt.Sprintf("%s: accepts[%d]: maxTimeoutSeconds is unset", path, i))
			}
			if req.Description == "" && entry.Description == "" {
				warnings = append(warnings, fmt.Sprintf("%s: accepts[%d]: no description", path, i))
			}
		}
	}
	return warnings
}
