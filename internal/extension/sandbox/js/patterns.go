package js

import "github.com/dshills/kairo/internal/extension/security"

// Patterns is the JavaScript deny-list.
var Patterns = []security.Pattern{
	security.NewPattern("constructor-chain",
		"reflective constructor access used to rebuild Function",
		`\.\s*constructor\b|\[\s*["'`+"`"+`]constructor["'`+"`"+`]\s*\]`),
	security.NewPattern("proto-access",
		"prototype chain climbing",
		`__proto__|\bgetPrototypeOf\b`),
	security.NewPattern("dynamic-import",
		"module loading outside the capability api",
		`\bimport\s*\(|\brequire\s*\(`),
	security.NewPattern("host-runtime",
		"host process and module-system artifacts",
		`\bprocess\s*\.|\bchild_process\b|\b__dirname\b|\b__filename\b|\bmodule\s*\.\s*exports\b`),
	security.NewPattern("indirect-global",
		"global object lookups that bypass shadowed names",
		`\b(globalThis|window|self|global|top|parent|frames)\s*\[|\bReflect\s*\.\s*(get|getOwnPropertyDescriptor)\s*\(\s*(globalThis|window|self|global|this)\b`),
}

// BlockedGlobals are removed from the global object and shadowed by
// parameters of the module wrapper.
var BlockedGlobals = []string{
	// code construction
	"Function", "eval",
	// network
	"fetch", "XMLHttpRequest", "WebSocket", "EventSource",
	// persistent storage
	"localStorage", "sessionStorage", "indexedDB", "caches",
	// global object aliases
	"globalThis", "window", "self", "top", "parent", "frames", "global",
	// module systems and non-browser runtimes
	"require", "process", "module", "Buffer", "__dirname", "__filename",
	"importScripts", "Deno", "Bun",
}

// notParameters cannot be used as parameter names.
var notParameters = map[string]bool{"eval": true, "arguments": true}
