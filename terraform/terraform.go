// Package terraform renders Terraform JSON fragments describing the cloud
// resources svckit services expect to exist: DynamoDB tables for caches, S3
// buckets for blob stores, SNS topics and SES identities for messaging.
//
// The output is deterministic: resources render sorted by type and name, so
// generated fragments diff cleanly in version control.
package terraform

import (
	"encoding/json"
	"fmt"
)

// Document accumulates Terraform resources and renders them as a .tf.json
// fragment.
type Document struct {
	// resources maps resource type to resource name to its attributes.
	resources map[string]map[string]map[string]any
}

// NewDocument returns an empty document.
func NewDocument() *Document {
	return &Document{resources: make(map[string]map[string]map[string]any)}
}

// AddResource registers one resource under its Terraform address
// (type.name). Registering the same address twice is an error.
func (d *Document) AddResource(resourceType, name string, attrs map[string]any) error {
	if resourceType == "" || name == "" {
		return fmt.Errorf("terraform: resource type and name required")
	}
	byName, ok := d.resources[resourceType]
	if !ok {
		byName = make(map[string]map[string]any)
		d.resources[resourceType] = byName
	}
	if _, exists := byName[name]; exists {
		return fmt.Errorf("terraform: duplicate resource address %s.%s", resourceType, name)
	}
	byName[name] = attrs
	return nil
}

// Len reports the number of registered resources.
func (d *Document) Len() int {
	n := 0
	for _, byName := range d.resources {
		n += len(byName)
	}
	return n
}

// Render serializes the document as Terraform JSON. Map keys marshal in
// sorted order, which makes the output stable across runs.
func (d *Document) Render() ([]byte, error) {
	if d.Len() == 0 {
		return nil, fmt.Errorf("terraform: empty document")
	}
	doc := map[string]any{"resource": d.resources}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("terraform: render: %w", err)
	}
	return append(out, '\n'), nil
}
