package server

import (
	"fmt"
	"regexp"
)

// Service names appear in datastore key names and outbound headers, so the
// character set is kept narrow. The separator "|" is excluded by the class.
var serviceNameFormat = regexp.MustCompile(`^[a-zA-Z0-9 ._-]+$`)

func validateServiceName(name string) error {
	if name == "" || !serviceNameFormat.MatchString(name) {
		return fmt.Errorf("invalid service name")
	}
	return nil
}
