package plugin

import "reflect"

// ImportPath is the path plugins use to import this package.
const ImportPath = "github.com/nugget/thane-voice/pkg/plugin"

// Symbols exposes this package to the plugin interpreter. Keys follow
// the yaegi convention "import/path/pkgname".
var Symbols = map[string]map[string]reflect.Value{
	ImportPath + "/plugin": {
		"OK":   reflect.ValueOf(OK),
		"Fail": reflect.ValueOf(Fail),

		"Handler":    reflect.ValueOf((*Handler)(nil)),
		"Descriptor": reflect.ValueOf((*Descriptor)(nil)),
		"SubCommand": reflect.ValueOf((*SubCommand)(nil)),
		"Param":      reflect.ValueOf((*Param)(nil)),
		"Turn":       reflect.ValueOf((*Turn)(nil)),
		"Input":      reflect.ValueOf((*Input)(nil)),
		"Result":     reflect.ValueOf((*Result)(nil)),
	},
}
