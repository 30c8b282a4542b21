package units

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

var (
	bytesFormat          = regexp.MustCompile(`^(\d+(\.\d+)?)\s*((([KMGT])(i?))?B)?$`)
	units                = []byte("BKMGT")
	ErrInvalidByteFormat = errors.New("not a valid bytes format. Must match" + bytesFormat.String())
)

// Bytes is a size, read from and written to YAML in its human form ("10MiB").
type Bytes struct {
	Bytes int64
}

func (b *Bytes) UnmarshalYAML(value *yaml.Node) error {
	val, err := DecodeBytes(value.Value)
	if err != nil {
		return err
	}

	*b = val
	return nil
}

func (b Bytes) MarshalYAML() (any, error) {
	return b.String(), nil
}

func DecodeBytes(value string) (Bytes, error) {
	groups := bytesFormat.FindStringSubmatch(value)
	if groups == nil {
		return Bytes{}, ErrInvalidByteFormat
	}

	if groups[3] == "" {
		val, err := strconv.ParseInt(groups[1], 10, 64)
		if err != nil {
			return Bytes{}, fmt.Errorf("%w: %w", ErrInvalidByteFormat, err)
		}
		return Bytes{val}, nil
	}

	base := int64(1024)
	if groups[6] == "" {
		base = 1000
	}

	mul := int64(1)
	for range bytes.IndexByte(units, groups[3][0]) {
		mul *= base
	}

	if val, err := strconv.ParseInt(groups[1], 10, 64); err == nil {
		return Bytes{val * mul}, nil
	}

	valf, err := strconv.ParseFloat(groups[1], 64)
	if err != nil {
		return Bytes{}, fmt.Errorf("%w: %w", ErrInvalidByteFormat, err)
	}
	return Bytes{int64(valf * float64(mul))}, nil
}

func (b Bytes) String() string {
	return PrettyBytes(b.Bytes)
}

func PrettyBytes[T int64 | uint64](b T) string {
	base := 1024.0
	i := 0
	v := float64(b)

	for v >= base && i < len(units)-1 {
		v /= base
		i++
	}

	if i == 0 {
		return fmt.Sprintf("%dB", b)
	}
	return fmt.Sprintf("%.2f%ciB", v, units[i])
}
