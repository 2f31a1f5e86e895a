// Package js runs extensions written in JavaScript on goja.
//
// Every extension gets its own goja.Runtime. Before the extension source
// runs, the runtime's global bindings for every name in BlockedGlobals are
// deleted, and the source is wrapped as
//
//	(function(api, exports, Function, fetch, ..., Bun) { <source> })
//
// and called with the capability API, an empty exports object and
// undefined for every blocked name, so the body resolves those names to
// its own parameters and never to a host value. eval cannot be a parameter
// name and is only deleted.
//
// The extension communicates through exports:
//
//	exports.initialize = function (api) {
//	  api.registerCommand({ id: "hello", name: "Hello", execute: function () {
//	    api.log.info("hello");
//	  }});
//	};
//
// initialize may return a promise; it must be settled once the job queue
// drains.
package js
