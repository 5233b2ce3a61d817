// Package metadata signs text reports with a trailing hash block and verifies them.
package metadata

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// TagStart is the start of the metadata block.
	TagStart = "<!-- METADATA_START"
	// TagEnd is the end of the metadata block.
	TagEnd = "METADATA_END -->"
)

// Metadata verification errors.
var (
	ErrNoMetadataBlock = errors.New("no metadata block found")
	ErrNoHashFound     = errors.New("no hash found in metadata")
	ErrHashMismatch    = errors.New("hash mismatch")
)

// Metadata describes a signed report.
type Metadata struct {
	LastModify time.Time
	RunID      string
	Version    string
	Hash       string
	Validation bool
}

var blockRegex = regexp.MustCompile(`(?s)<!--\s*METADATA_START\s*\n(.*?)\n\s*METADATA_END\s*-->`)

// Extract splits content into its metadata and the body that is hashed.
// The metadata is nil when content carries no block.
func Extract(content string) (*Metadata, string) {
	match := blockRegex.FindStringSubmatch(content)
	body := strings.TrimRight(blockRegex.ReplaceAllString(content, ""), "\n")

	if len(match) < 2 {
		return nil, body
	}

	meta := &Metadata{}

	for _, line := range strings.Split(match[1], "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}

		val = strings.TrimSpace(val)

		switch strings.TrimSpace(key) {
		case "VALIDATION":
			meta.Validation = strings.EqualFold(val, "TRUE")
		case "LAST_MODIFY":
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				meta.LastModify = t
			}
		case "RUN_ID":
			meta.RunID = val
		case "VERSION":
			meta.Version = val
		case "HASH":
			meta.Hash = val
		}
	}

	return meta, body
}

// CalculateHash returns the hex SHA-256 of content without its metadata block.
func CalculateHash(content string) string {
	_, body := Extract(content)
	sum := sha256.Sum256([]byte(body))

	return hex.EncodeToString(sum[:])
}

// Sign replaces any existing block with a fresh one for meta. The hash is
// always recomputed; a zero LastModify is set to the current time.
func Sign(content string, meta Metadata) string {
	_, body := Extract(content)

	if meta.LastModify.IsZero() {
		meta.LastModify = time.Now()
	}

	validation := "FALSE"
	if meta.Validation {
		validation = "TRUE"
	}

	var sb strings.Builder

	sb.WriteString(body)
	sb.WriteString("\n\n")
	sb.WriteString(TagStart + "\n")
	fmt.Fprintf(&sb, "VALIDATION: %s\n", validation)
	fmt.Fprintf(&sb, "LAST_MODIFY: %s\n", meta.LastModify.UTC().Format(time.RFC3339))

	if meta.RunID != "" {
		fmt.Fprintf(&sb, "RUN_ID: %s\n", meta.RunID)
	}

	if meta.Version != "" {
		fmt.Fprintf(&sb, "VERSION: %s\n", meta.Version)
	}

	fmt.Fprintf(&sb, "HASH: %s\n", CalculateHash(body))
	sb.WriteString(TagEnd)

	return sb.String()
}

// Verify checks that content matches the hash in its block.
func Verify(content string) (bool, error) {
	meta, body := Extract(content)
	if meta == nil {
		return false, ErrNoMetadataBlock
	}

	if meta.Hash == "" {
		return false, ErrNoHashFound
	}

	if got := CalculateHash(body); got != meta.Hash {
		return false, fmt.Errorf("%w: expected %s, got %s", ErrHashMismatch, meta.Hash, got)
	}

	return true, nil
}
