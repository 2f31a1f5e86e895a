// Package lua runs extensions written in Lua on gopher-lua.
//
// Each extension gets its own LState with only the base, table, string and
// math libraries opened. The main chunk runs under an environment table
// built from an allow-list of safe globals plus two bindings:
//
//	api      the capability API of the extension
//	exports  a table the chunk fills with initialize and cleanup
//
// Nothing else from the host is reachable: names such as io, os, require,
// load or debug are simply nil inside the chunk. A chunk may also return a
// table instead of filling exports.
//
//	exports.initialize = function(api)
//	  api.registerCommand{ id = "hello", name = "Hello", execute = function()
//	    api.log.info("hello")
//	  end }
//	end
//
// All access to the LState is serialized by the State mutex and bounded
// with LState.SetContext.
package lua
