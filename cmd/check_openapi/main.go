// Command check_openapi verifies that api/openapi.yaml documents every route
// the shop serves and the wire shapes its handlers emit.
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// servedRoutes mirrors the shop router.
var servedRoutes = map[string][]string{
	"/healthz":                           {"get"},
	"/metrics":                           {"get"},
	"/api/brands":                        {"get", "post"},
	"/api/mechanics":                     {"get", "post"},
	"/api/mechanics/{id}":                {"get", "put", "delete"},
	"/api/mechanics/{id}/workload":       {"get"},
	"/api/mechanics/{id}/tasks":          {"get", "post"},
	"/api/mechanics/{id}/tasks/{taskId}": {"put", "delete"},
	"/api/tasks/{taskId}":                {"get"},
	"/api/tasks/{taskId}/reassign":       {"put"},
}

// wireFields are the JSON names of response bodies; all are required.
var wireFields = map[string][]string{
	"Mechanic": {"id", "name", "brands", "max_complexity"},
	"Task":     {"id", "mechanic_id", "brand", "name", "complexity"},
	"Brand":    {"id", "name"},
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := check(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// check reports every mismatch at once.
func check(doc openAPIDoc) error {
	var errs []error
	errs = append(errs, checkRoutes(doc)...)
	if s, err := getSchema(doc, "ErrorResponse"); err != nil {
		errs = append(errs, err)
	} else if err := validateErrorResponse(s); err != nil {
		errs = append(errs, err)
	}
	names := make([]string, 0, len(wireFields))
	for name := range wireFields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s, err := getSchema(doc, name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := validateRequiredFields(name, s, wireFields[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func checkRoutes(doc openAPIDoc) []error {
	var errs []error
	paths := make([]string, 0, len(servedRoutes))
	for p := range servedRoutes {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		ops, ok := doc.Paths[p]
		if !ok {
			errs = append(errs, fmt.Errorf("path %s is served but not documented", p))
			continue
		}
		for _, method := range servedRoutes[p] {
			if _, ok := ops[method]; !ok {
				errs = append(errs, fmt.Errorf("%s %s is served but not documented", strings.ToUpper(method), p))
			}
		}
	}
	for p := range doc.Paths {
		if _, ok := servedRoutes[p]; !ok {
			errs = append(errs, fmt.Errorf("path %s is documented but not served", p))
		}
	}
	return errs
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	for _, field := range []string{"error", "code", "requestId"} {
		if prop, ok := s.Properties[field]; !ok || prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", field)
		}
	}
	if prop, ok := s.Properties["details"]; !ok || prop.Type != "object" {
		return errors.New("ErrorResponse.details must be object")
	}
	return nil
}

func validateRequiredFields(name string, s schema, fields []string) error {
	required := makeSet(s.Required)
	for _, field := range fields {
		if _, ok := s.Properties[field]; !ok {
			return fmt.Errorf("%s.%s missing", name, field)
		}
		if !required[field] {
			return fmt.Errorf("%s.required must include %q", name, field)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
