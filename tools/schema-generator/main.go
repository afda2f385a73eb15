// Command schema-generator writes the nicepick config JSON schema, including
// every registered extension section, for editor integration.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/grovetools/nicepick/config"
	_ "github.com/grovetools/nicepick/logging" // registers the logging section
)

func main() {
	out := flag.String("o", "schema/definitions/nicepick.schema.json", "output file")
	flag.Parse()

	schemaBytes, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0755); err != nil {
		log.Fatalf("Error creating schema directory: %v", err)
	}
	if err := os.WriteFile(*out, schemaBytes, 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}

	log.Printf("Successfully generated schema at %s", *out)
}
