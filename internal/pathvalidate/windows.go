// Package pathvalidate checks filesystem path segments (dirent basenames)
// for Windows compatibility, so that a tree built on a POSIX host does not
// contain names a Windows client mounting the same tree could not create.
package pathvalidate

import (
	"fmt"
	"strings"
)

// PathError is returned by CheckSegment when a segment is not Windows-safe.
type PathError struct {
	Kind PathErrorKind
	Char rune
	Name string
}

// PathErrorKind distinguishes the three ways a segment can fail.
type PathErrorKind int

const (
	ContainsInvalidWindowsCharacter PathErrorKind = iota
	InvalidWindowsNameEnding
	ReservedWindowsDeviceName
)

func (e *PathError) Error() string {
	switch e.Kind {
	case ContainsInvalidWindowsCharacter:
		return fmt.Sprintf("the path contains the character %q, which is not allowed on Windows", e.Char)
	case InvalidWindowsNameEnding:
		return fmt.Sprintf("the path ends with %q, which is not allowed on Windows", e.Char)
	case ReservedWindowsDeviceName:
		return fmt.Sprintf("the name %q is a reserved device name on Windows", e.Name)
	default:
		return "invalid path segment"
	}
}

func checkSpecialCharacters(segment string) error {
	for _, c := range segment {
		switch {
		case c == '"' || c == '*' || c == ':' || c == '<' || c == '>' || c == '?' || c == '\\' || c == '|':
			return &PathError{Kind: ContainsInvalidWindowsCharacter, Char: c}
		case c >= '\x00' && c <= '\x1F':
			return &PathError{Kind: ContainsInvalidWindowsCharacter, Char: c}
		}
	}
	return nil
}

func checkSegmentEnding(segment string) error {
	if strings.HasSuffix(segment, ".") {
		return &PathError{Kind: InvalidWindowsNameEnding, Char: '.'}
	}
	if strings.HasSuffix(segment, " ") {
		return &PathError{Kind: InvalidWindowsNameEnding, Char: ' '}
	}
	return nil
}

var threeLetterDeviceNames = map[string]string{
	"aux": "AUX",
	"con": "CON",
	"nul": "NUL",
	"prn": "PRN",
}

var fourLetterDeviceNames = map[string]string{
	"com0": "COM0", "com1": "COM1", "com2": "COM2", "com3": "COM3", "com4": "COM4",
	"com5": "COM5", "com6": "COM6", "com7": "COM7", "com8": "COM8", "com9": "COM9",
	// the Windows naming doc omits COM0/LPT0, but Explorer rejects them too
	// (tested through Windows 10 20H2).
	"lpt0": "LPT0", "lpt1": "LPT1", "lpt2": "LPT2", "lpt3": "LPT3", "lpt4": "LPT4",
	"lpt5": "LPT5", "lpt6": "LPT6", "lpt7": "LPT7", "lpt8": "LPT8", "lpt9": "LPT9",
}

func checkDeviceName(segment string) error {
	beforeDot := segment
	if i := strings.IndexByte(segment, '.'); i >= 0 {
		beforeDot = segment[:i]
	}
	lower := strings.ToLower(beforeDot)
	switch len(beforeDot) {
	case 3:
		if name, ok := threeLetterDeviceNames[lower]; ok {
			return &PathError{Kind: ReservedWindowsDeviceName, Name: name}
		}
	case 4:
		if name, ok := fourLetterDeviceNames[lower]; ok {
			return &PathError{Kind: ReservedWindowsDeviceName, Name: name}
		}
	}
	return nil
}

// CheckSegment checks whether a single UTF-8 path segment (a dirent
// basename) is safe to use on a Windows client, without duplicating
// checks already enforced by path normalization or the database's own
// CHECK constraints.
func CheckSegment(segment string) error {
	if err := checkSpecialCharacters(segment); err != nil {
		return err
	}
	if err := checkSegmentEnding(segment); err != nil {
		return err
	}
	return checkDeviceName(segment)
}
