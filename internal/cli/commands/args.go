package commands

import "strings"

// shortFlags are the single-letter options, accepted with any number of
// leading dashes and in any case
var shortFlags = map[string]bool{
	"i": true, "a": true, "n": true, "t": true, "m": true, "f": true, "p": true,
}

var longFlags = map[string]bool{
	"input": true, "assemblies": true, "namespaces": true, "types": true,
	"methods": true, "fields": true, "private": true,
	"format": true, "config": true, "verbose": true, "no-color": true,
	"stats": true, "watch": true, "progress": true, "serve": true,
}

// valueFlags consume the argument that follows them unless given as
// name=value
var valueFlags = map[string]bool{
	"i": true, "input": true, "format": true, "config": true, "serve": true,
}

// NormalizeArgs rewrites options to the spelling cobra parses: "-I",
// "--i" and "---i" all become "-i", "-FORMAT" becomes "--format", and the
// help spellings "-?", "-h" and "-help" become "--help". Values following
// -i, --format, --config and --serve pass through untouched, as does everything
// after "--". Unrecognized options are left for cobra to reject.
func NormalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out = append(out, args[i:]...)
			break
		}
		if len(arg) < 2 || arg[0] != '-' {
			out = append(out, arg)
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		name = strings.ToLower(name)

		var canonical string
		switch {
		case name == "?" || name == "h" || name == "help":
			canonical = "--help"
		case shortFlags[name]:
			canonical = "-" + name
		case longFlags[name]:
			canonical = "--" + name
		default:
			out = append(out, arg)
			continue
		}

		if hasValue {
			out = append(out, canonical+"="+value)
			continue
		}
		out = append(out, canonical)
		if valueFlags[name] && i+1 < len(args) {
			i++
			out = append(out, args[i])
		}
	}
	return out
}
