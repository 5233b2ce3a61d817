// Package main provides the report tool that verifies, re-aligns and re-signs pipeline reports.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"salesetl/internal/formatter"
	"salesetl/pkg/metadata"
)

func main() {
	inputPath := flag.String("input", "", "Path to a markdown report")
	outputPath := flag.String("output", "", "Where to write the formatted report (defaults to -input)")
	verifyOnly := flag.Bool("verify", false, "Only verify the metadata hash")

	flag.Parse()

	if *inputPath == "" {
		fmt.Println("Usage: report -input <path> [-output <path>] [-verify]")
		flag.PrintDefaults()
		os.Exit(1)
	}

	contentBytes, err := os.ReadFile(*inputPath)
	if err != nil {
		log.Fatalf("Error reading file: %v\n", err)
	}

	content := string(contentBytes)
	fmt.Printf("📂 Reading: %s (%d bytes)\n", *inputPath, len(content))

	ok, verr := metadata.Verify(content)

	switch {
	case ok:
		fmt.Println("✅ Hash verified")
	case *verifyOnly:
		log.Fatalf("❌ Verification failed: %v\n", verr)
	default:
		fmt.Printf("⚠️  %v (the report will be re-signed)\n", verr)
	}

	if *verifyOnly {
		return
	}

	dest := *outputPath
	if dest == "" {
		dest = *inputPath
	}

	formatted := formatter.FormatReport(content)

	if err := os.WriteFile(dest, []byte(formatted+"\n"), 0o644); err != nil {
		log.Fatalf("Error writing file: %v\n", err)
	}

	fmt.Printf("✅ Formatted and signed: %s\n", dest)
}
