package pathvalidate

import "github.com/iafisher/exastash/internal/xerrors"

// ValidateComponents runs each named validator over every path component.
// The only validator currently understood is "windows_compatible"; an
// unrecognized validator name is a configuration error, not a path error.
func ValidateComponents(components []string, validators []string) error {
	for _, validator := range validators {
		switch validator {
		case "windows_compatible":
			for _, component := range components {
				if err := CheckSegment(component); err != nil {
					return err
				}
			}
		default:
			return xerrors.NewInvalidInput("invalid path component validator %q", validator)
		}
	}
	return nil
}
