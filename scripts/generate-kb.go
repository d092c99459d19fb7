//go:build ignore

// Package main generates a synthetic markdown knowledge base with a
// matching labeled query set, for benchmarking the harness at corpus
// sizes the real KB has not reached yet.
// Usage: go run scripts/generate-kb.go -files 500 -queries 100 -output testdata/synthetic
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	numFiles   = flag.Int("files", 200, "Number of markdown documents to generate")
	numQueries = flag.Int("queries", 50, "Number of labeled queries to generate")
	outputDir  = flag.String("output", "testdata/synthetic", "Output directory")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// docTemplate is one generated policy document. Every fact a positive
// query targets appears verbatim in some section body.
const docTemplate = `# %s Policy

## Overview

This document defines the %s policy for %s. It applies to all %s
maintained by the %s team and is reviewed %s.

## Requirements

The %s policy requires %s every %d days. Exceptions must be approved
by the %s owner and recorded in the exception register.

## Scope

- All %s environments
- %s managed by the %s team
- Third-party %s under contract

## Enforcement

Violations of the %s policy are escalated to the %s owner within
%d business days. Repeated violations trigger a formal %s review.

## Revision History

| Version | Change |
|---------|--------|
| 1.0 | Initial version |
| 1.1 | Added %s requirements |
`

// Word pools for generating policy content.
var (
	topics = []string{
		"Data Retention", "Access Control", "Incident Response", "Encryption",
		"Backup", "Vendor Management", "Change Management", "Asset Inventory",
		"Password", "Remote Work", "Acceptable Use", "Logging",
		"Vulnerability Management", "Business Continuity", "Key Rotation",
		"Onboarding", "Offboarding", "Data Classification", "Patch Management",
		"Network Segmentation",
	}
	activities = []string{
		"a documented review", "an automated scan", "a compliance audit",
		"a restore test", "an access recertification", "a tabletop exercise",
		"a key rotation", "an inventory reconciliation",
	}
	subjects = []string{
		"production systems", "customer records", "service accounts",
		"source repositories", "build pipelines", "support tooling",
		"laptops and workstations", "cloud storage buckets",
	}
	teams = []string{
		"platform", "security", "infrastructure", "compliance", "operations",
	}
	cadences = []string{
		"quarterly", "annually", "every six months", "at each major release",
	}

	// absentTopics never appear in any generated document; negative
	// queries draw from here so the gate has something to reject.
	absentTopics = []string{
		"quantum cryptography migration", "drone fleet maintenance",
		"submarine cable repair", "asteroid mining compliance",
		"interplanetary data residency", "carrier pigeon backup routing",
		"cafeteria menu rotation", "volcano monitoring thresholds",
	}
)

type generatedDoc struct {
	path  string
	topic string
	days  int
}

type queryLine struct {
	Query string `json:"query"`
	Label string `json:"label,omitempty"`
	Notes string `json:"notes,omitempty"`
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	kbDir := filepath.Join(*outputDir, "kb")
	if err := os.MkdirAll(kbDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generating %d documents in %s...\n", *numFiles, kbDir)

	docs := make([]generatedDoc, 0, *numFiles)
	for i := 0; i < *numFiles; i++ {
		doc, err := generateDoc(rng, kbDir, i)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating document %d: %v\n", i, err)
			os.Exit(1)
		}
		docs = append(docs, doc)
	}

	queriesPath := filepath.Join(*outputDir, "queries.jsonl")
	if err := generateQueries(rng, queriesPath, docs); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating queries: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %d documents and %s.\n", len(docs), queriesPath)
}

func randomWord(rng *rand.Rand, pool []string) string {
	return pool[rng.Intn(len(pool))]
}

func generateDoc(rng *rand.Rand, kbDir string, index int) (generatedDoc, error) {
	topic := topics[index%len(topics)]
	activity := randomWord(rng, activities)
	subject := randomWord(rng, subjects)
	team := randomWord(rng, teams)
	cadence := randomWord(rng, cadences)
	days := 30 * (1 + rng.Intn(12))

	content := fmt.Sprintf(docTemplate,
		topic,
		strings.ToLower(topic), subject, subject, team, cadence,
		strings.ToLower(topic), activity, days, strings.ToLower(topic),
		randomWord(rng, subjects),
		subject, team, randomWord(rng, subjects),
		strings.ToLower(topic), strings.ToLower(topic), 1+rng.Intn(5), strings.ToLower(topic),
		strings.ToLower(randomWord(rng, topics)),
	)

	slug := strings.ReplaceAll(strings.ToLower(topic), " ", "-")
	name := fmt.Sprintf("%s-%d.md", slug, index)
	if err := os.WriteFile(filepath.Join(kbDir, name), []byte(content), 0o644); err != nil {
		return generatedDoc{}, err
	}
	return generatedDoc{path: name, topic: topic, days: days}, nil
}

// generateQueries writes a JSONL query set: roughly two thirds positive
// queries targeting generated facts, one third negatives drawn from the
// absent-topic pool.
func generateQueries(rng *rand.Rand, path string, docs []generatedDoc) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	positives := *numQueries * 2 / 3

	for i := 0; i < *numQueries; i++ {
		var line queryLine
		if i < positives {
			doc := docs[rng.Intn(len(docs))]
			line = queryLine{
				Query: fmt.Sprintf("what does the %s policy require", strings.ToLower(doc.topic)),
				Label: "positive",
				Notes: "covered by " + doc.path,
			}
		} else {
			line = queryLine{
				Query: fmt.Sprintf("what is the %s policy", randomWord(rng, absentTopics)),
				Label: "negative",
			}
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}
