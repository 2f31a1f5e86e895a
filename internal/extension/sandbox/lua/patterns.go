package lua

import "github.com/dshills/kairo/internal/extension/security"

// Patterns is the Lua deny-list.
var Patterns = []security.Pattern{
	security.NewPattern("code-loading",
		"compiling source at runtime",
		`(^|[^.:\w])(load|loadstring|dofile|loadfile)\s*[("'\[{]`),
	security.NewPattern("module-loading",
		"loading modules outside the capability api",
		`(^|[^.:\w])require\s*[("'\[{]`),
	security.NewPattern("debug-library",
		"debug library access",
		`\bdebug\s*[.:\[]`),
	security.NewPattern("environment-access",
		"reading or replacing function environments",
		`\b(getfenv|setfenv)\b`),
	security.NewPattern("global-table",
		"indirect global lookups",
		`\b(_G|_ENV)\b`),
	security.NewPattern("host-libraries",
		"host process and file libraries",
		`(^|[^.:\w])(os|io|package)\s*[.:\[]`),
	security.NewPattern("bytecode-dump",
		"function bytecode access",
		`\bstring\s*\.\s*dump\b`),
	security.NewPattern("string-metatable",
		"reaching the shared string metatable",
		`\bgetmetatable\s*\(\s*["']`),
}
