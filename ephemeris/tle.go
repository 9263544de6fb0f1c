package ephemeris

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTLE rejects element sets that are malformed or fail their
// checksum.
var ErrInvalidTLE = errors.New("invalid TLE")

const tleLineLength = 69

// TLE is a validated two-line element set.
type TLE struct {
	Name  string
	Line1 string
	Line2 string
}

// CatalogNumber returns the NORAD catalog number.
func (t TLE) CatalogNumber() string {
	return strings.TrimSpace(t.Line1[2:7])
}

// Epoch returns the element set epoch.
func (t TLE) Epoch() time.Time {
	yy, _ := strconv.Atoi(t.Line1[18:20])
	day, _ := strconv.ParseFloat(strings.TrimSpace(t.Line1[20:32]), 64)
	year := 2000 + yy
	if yy >= 57 {
		year = 1900 + yy
	}
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return start.Add(time.Duration((day - 1) * float64(24*time.Hour))).Round(time.Millisecond)
}

// ParseTLE validates a two-line element set. Trailing whitespace is ignored.
func ParseTLE(line1, line2 string) (TLE, error) {
	l1 := strings.TrimRight(line1, " \t\r\n")
	l2 := strings.TrimRight(line2, " \t\r\n")
	if err := checkLine(l1, '1'); err != nil {
		return TLE{}, err
	}
	if err := checkLine(l2, '2'); err != nil {
		return TLE{}, err
	}
	if l1[2:7] != l2[2:7] {
		return TLE{}, fmt.Errorf("%w: catalog numbers differ (%q, %q)", ErrInvalidTLE, l1[2:7], l2[2:7])
	}
	if err := checkFields(l1, l2); err != nil {
		return TLE{}, err
	}
	return TLE{Line1: l1, Line2: l2}, nil
}

// ReadTLE reads the first element set from r, accepting both the two-line
// form and the three-line form with a leading name line.
func ReadTLE(r io.Reader) (TLE, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), " \t\r")
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == 3 || (len(lines) == 2 && strings.HasPrefix(lines[0], "1 ")) {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return TLE{}, fmt.Errorf("read TLE: %w", err)
	}

	var name string
	switch {
	case len(lines) == 2 && strings.HasPrefix(lines[0], "1 "):
	case len(lines) == 3:
		name = strings.TrimSpace(strings.TrimPrefix(lines[0], "0 "))
		lines = lines[1:]
	default:
		return TLE{}, fmt.Errorf("%w: expected two or three lines, got %d", ErrInvalidTLE, len(lines))
	}
	t, err := ParseTLE(lines[0], lines[1])
	if err != nil {
		return TLE{}, err
	}
	t.Name = name
	return t, nil
}

func checkLine(line string, number byte) error {
	if len(line) != tleLineLength {
		return fmt.Errorf("%w: line %c has %d characters, want %d", ErrInvalidTLE, number, len(line), tleLineLength)
	}
	if line[0] != number || line[1] != ' ' {
		return fmt.Errorf("%w: line %c does not start with %q", ErrInvalidTLE, number, string(number)+" ")
	}
	want := checksum(line[:tleLineLength-1])
	if got := line[tleLineLength-1]; got != '0'+want {
		return fmt.Errorf("%w: line %c checksum %c, want %d", ErrInvalidTLE, number, got, want)
	}
	return nil
}

// checksum is the modulo-10 sum of the digits, counting each minus sign as 1.
func checksum(s string) byte {
	sum := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	return byte(sum % 10)
}

// checkFields makes sure every numeric column parses, so the propagator never
// sees a field it cannot decode.
func checkFields(l1, l2 string) error {
	decimal := []struct {
		line       string
		name       string
		start, end int
	}{
		{l1, "epoch year", 18, 20},
		{l1, "epoch day", 20, 32},
		{l1, "mean motion derivative", 33, 43},
		{l2, "inclination", 8, 16},
		{l2, "right ascension", 17, 25},
		{l2, "argument of perigee", 34, 42},
		{l2, "mean anomaly", 43, 51},
		{l2, "mean motion", 52, 63},
	}
	for _, f := range decimal {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f.line[f.start:f.end]), 64); err != nil {
			return fmt.Errorf("%w: %s %q", ErrInvalidTLE, f.name, f.line[f.start:f.end])
		}
	}
	if _, err := strconv.ParseUint(l2[26:33], 10, 64); err != nil {
		return fmt.Errorf("%w: eccentricity %q", ErrInvalidTLE, l2[26:33])
	}

	// Implied-decimal exponent fields, e.g. " 10270-4".
	for _, f := range []struct {
		name       string
		start, end int
	}{
		{"second derivative", 44, 52},
		{"drag term", 53, 61},
	} {
		for _, c := range l1[f.start:f.end] {
			if !(c >= '0' && c <= '9') && c != '-' && c != '+' && c != ' ' {
				return fmt.Errorf("%w: %s %q", ErrInvalidTLE, f.name, l1[f.start:f.end])
			}
		}
	}
	return nil
}
