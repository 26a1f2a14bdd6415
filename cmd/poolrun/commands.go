package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Meridian-Labs/poolrun/pkg/auth"
	"github.com/Meridian-Labs/poolrun/pkg/config"
)

// runHealthCmd probes a running server's health endpoint.
func runHealthCmd(stdout, stderr io.Writer) int {
	cfg := config.Load()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://localhost:" + cfg.Port + "/health")
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "health check failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		_, _ = fmt.Fprintf(stderr, "health check returned %d\n", resp.StatusCode)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "ok")
	return 0
}

// runTokenCmd mints a bearer token for local development and operations.
func runTokenCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	identity := fs.String("identity", "", "subject identity for the token")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	roles := fs.String("roles", "", "comma-separated roles")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *identity == "" {
		_, _ = fmt.Fprintln(stderr, "token: -identity is required")
		return 2
	}

	cfg := config.Load()
	if cfg.AuthSecret == "" {
		_, _ = fmt.Fprintln(stderr, "token: AUTH_SECRET is not set")
		return 1
	}

	token, err := auth.IssueToken([]byte(cfg.AuthSecret), *identity, splitRoles(*roles), *ttl)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "token: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, token)
	return 0
}

// runTemplatesCmd lists the configured run templates as JSON.
func runTemplatesCmd(stdout, stderr io.Writer) int {
	cfg := config.Load()
	if cfg.TemplatesDir == "" {
		_, _ = fmt.Fprintln(stderr, "templates: RUN_TEMPLATES_DIR is not set")
		return 1
	}
	templates, err := config.ListTemplates(cfg.TemplatesDir)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "templates: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(templates)
	return 0
}

func splitRoles(raw string) []string {
	if raw == "" {
		return nil
	}
	var roles []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
