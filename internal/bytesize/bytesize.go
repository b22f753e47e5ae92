// Package bytesize parses and prints sizes such as the upload part size.
package bytesize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ByteSize is a number of bytes. Config files may write it as a plain
// number or with a unit: binary (Ki, Mi, Gi, Ti with optional B) or
// decimal (K, M, G, T with optional B).
type ByteSize uint64

const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

type unit struct {
	suffix string
	size   ByteSize
}

// units is ordered largest first; Exact relies on it.
var units = []unit{
	{"Ti", TiB}, {"T", TB}, {"Gi", GiB}, {"G", GB},
	{"Mi", MiB}, {"M", MB}, {"Ki", KiB}, {"K", KB},
}

var sizePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*([a-z]*)\s*$`)

func lookupUnit(suffix string) (ByteSize, bool) {
	s := strings.TrimSuffix(strings.ToLower(suffix), "b")
	if s == "" {
		return B, true
	}
	for _, u := range units {
		if strings.ToLower(u.suffix) == s {
			return u.size, true
		}
	}
	return 0, false
}

// ParseByteSize parses "8Mi", "1.5GB", "1024" and the like.
func ParseByteSize(s string) (ByteSize, error) {
	if strings.TrimSpace(s) == "" {
		return 0, fmt.Errorf("empty byte size string")
	}
	m := sizePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid byte size format: %q", s)
	}
	mult, ok := lookupUnit(m[2])
	if !ok {
		return 0, fmt.Errorf("unknown byte size unit: %q", m[2])
	}

	if !strings.Contains(m[1], ".") {
		n, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number in byte size: %q", m[1])
		}
		return ByteSize(n) * mult, nil
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in byte size: %q", m[1])
	}
	return ByteSize(f * float64(mult)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// String renders the size in the largest binary unit with two decimals.
func (b ByteSize) String() string {
	for _, u := range units {
		if !strings.HasSuffix(u.suffix, "i") || b < u.size {
			continue
		}
		return fmt.Sprintf("%.2f%sB", float64(b)/float64(u.size), u.suffix)
	}
	return fmt.Sprintf("%dB", b)
}

// Exact returns the shortest exact form ("5Mi", "1500K", "1023"), the
// form written to configuration files.
func (b ByteSize) Exact() string {
	if b == 0 {
		return "0"
	}
	for _, u := range units {
		if b%u.size == 0 {
			return strconv.FormatUint(uint64(b/u.size), 10) + u.suffix
		}
	}
	return strconv.FormatUint(uint64(b), 10)
}

// MarshalYAML writes the exact form so saved files stay readable.
func (b ByteSize) MarshalYAML() (any, error) {
	return b.Exact(), nil
}

// Int returns the size as an int, saturating on overflow.
func (b ByteSize) Int() int {
	const maxInt = int(^uint(0) >> 1)
	if uint64(b) > uint64(maxInt) {
		return maxInt
	}
	return int(b)
}
