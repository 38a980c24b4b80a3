// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals and defaults the merged Koanf tree.  Any tag mismatch or
// validation error aborts startup, ensuring the binary never runs with a
// malformed relay endpoint, an unknown encoding, or a Redis rate limiter
// without an address.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.
//   • Errors name the koanf key, not the Go field, so operators can grep
//     their YAML for it.

package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	val.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("koanf"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return val
}

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	err := v.Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		ns := fe.Namespace()
		if i := strings.IndexByte(ns, '.'); i != -1 {
			ns = ns[i+1:]
		}
		return fmt.Errorf("config %s: failed %q rule", ns, fe.Tag())
	}
	return err
}
