// Package fonts exposes the built-in badge fonts. The Go font family
// ships as data packages inside golang.org/x/image, so no font files
// need to travel with the binary.
package fonts

import (
	"sort"

	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomedium"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/gofont/gosmallcaps"
)

// Builtin maps config names to raw TTF bytes.
var Builtin = map[string][]byte{
	"go-regular":   goregular.TTF,
	"go-bold":      gobold.TTF,
	"go-medium":    gomedium.TTF,
	"go-italic":    goitalic.TTF,
	"go-mono":      gomono.TTF,
	"go-smallcaps": gosmallcaps.TTF,
}

// DefaultFont is the config name of the default built-in font.
const DefaultFont = "go-regular"

// Names returns the sorted list of available built-in font names.
func Names() []string {
	names := make([]string, 0, len(Builtin))
	for k := range Builtin {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
