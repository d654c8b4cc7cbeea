package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/minio/crc64nvme"
)

// MaxHashLength is the number of hex digits a content hash renders to.
const MaxHashLength = 16

var placeholderRe = regexp.MustCompile(`\[([a-z]+)(?::(\d+))?\]`)

// ContentHash returns the crc64-nvme checksum of contents as lower-case hex.
func ContentHash(contents []byte) string {
	h := crc64nvme.New()
	h.Write(contents)
	return fmt.Sprintf("%016x", h.Sum64())
}

// ValidateTemplate checks every placeholder in tmpl is supported.
func ValidateTemplate(tmpl string) error {
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if _, err := placeholderLength(m); err != nil {
			return fmt.Errorf("%q: %w", tmpl, err)
		}
	}
	return nil
}

// ResolveNaming expands [name], [ext], [hash], [hash:N], [contenthash] and
// [contenthash:N] in tmpl for the file at path with the given contents.
// [ext] has no leading dot.
func ResolveNaming(tmpl, path string, contents []byte) (string, error) {
	if err := ValidateTemplate(tmpl); err != nil {
		return "", err
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	hash := ContentHash(contents)

	return placeholderRe.ReplaceAllStringFunc(tmpl, func(token string) string {
		m := placeholderRe.FindStringSubmatch(token)
		switch m[1] {
		case "name":
			return name
		case "ext":
			return strings.TrimPrefix(ext, ".")
		default:
			n, _ := placeholderLength(m)
			return hash[:n]
		}
	}), nil
}

// HasUniquePlaceholder reports whether tmpl varies per entry or per content.
func HasUniquePlaceholder(tmpl string) bool {
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		switch m[1] {
		case "name", "hash", "contenthash":
			return true
		}
	}
	return false
}

func placeholderLength(m []string) (int, error) {
	switch m[1] {
	case "name", "ext":
		if m[2] != "" {
			return 0, fmt.Errorf("%w: [%s] takes no length", ErrInvalidTemplate, m[1])
		}
		return 0, nil
	case "hash", "contenthash":
		if m[2] == "" {
			return MaxHashLength, nil
		}
		n, err := strconv.Atoi(m[2])
		if err != nil || n < 1 || n > MaxHashLength {
			return 0, fmt.Errorf("%w: hash length must be between 1 and %d", ErrInvalidTemplate, MaxHashLength)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: unknown placeholder [%s]", ErrInvalidTemplate, m[1])
	}
}
