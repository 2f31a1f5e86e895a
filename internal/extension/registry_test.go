package extension

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/dshills/kairo/internal/extension/logstore"
	"github.com/dshills/kairo/internal/extension/sandbox"
	"github.com/dshills/kairo/internal/extension/security"
	"github.com/dshills/kairo/internal/hostfs"
)

const commandJS = `
exports.initialize = function (api) {
  api.registerCommand({ id: "x", name: "X", execute: function () { return api.id; } });
};
`

type fixture struct {
	vault string
	root  string
	fs    *hostfs.OS
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vault := t.TempDir()
	fsys := hostfs.NewOS()
	root, err := fsys.EnsureExtensionsDirectory(vault)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{vault: vault, root: root, fs: fsys}
}

// write creates an extension folder holding a manifest and its main file.
func (f *fixture) write(t *testing.T, folder, id, main, code string) string {
	t.Helper()
	dir := filepath.Join(f.root, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"id": "` + id + `", "name": "` + id + `", "version": "1.0.0"`
	if main != "" {
		manifest += `, "main": "` + main + `"`
	}
	manifest += `}`
	if err := os.WriteFile(filepath.Join(dir, hostfs.ManifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if main != "" {
		if err := os.WriteFile(filepath.Join(dir, main), []byte(code), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func (f *fixture) registry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithPolicy(security.NewDynamicCodePolicy(true, nil))}, opts...)
	r := NewRegistry(f.fs, f.vault, opts...)
	t.Cleanup(func() { r.Shutdown(context.Background()) })
	return r
}

// asInt normalizes the numbers a runtime may hand back.
func asInt(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case float64:
		return int64(n)
	case int:
		return int64(n)
	}
	return -1
}

func mustLoad(t *testing.T, r *Registry, dir string) Extension {
	t.Helper()
	ext, err := r.LoadExtension(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadExtension(%s) error = %v", dir, err)
	}
	return ext
}

func TestLoadExtension(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	ext := mustLoad(t, r, f.write(t, "hello", "hello", "main.js", commandJS))

	if !ext.Loaded || !ext.Enabled || ext.State != StateLoaded || ext.Err != nil {
		t.Fatalf("extension = %+v", ext)
	}
	got, err := r.Registries().ExecuteCommand(context.Background(), "hello.x")
	if err != nil || got != "hello" {
		t.Errorf("ExecuteCommand() = %v, %v", got, err)
	}
}

func TestLoadLuaExtension(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	ext := mustLoad(t, r, f.write(t, "moon", "moon", "init.lua", `
exports.initialize = function(api)
  api.registerCommand{ id = "x", execute = function() return "lua" end }
end
`))
	if !ext.Loaded {
		t.Fatalf("extension = %+v", ext)
	}
	got, err := r.Registries().ExecuteCommand(context.Background(), "moon.x")
	if err != nil || got != "lua" {
		t.Errorf("ExecuteCommand() = %v, %v", got, err)
	}
}

func TestQualifiedIDsDoNotCollide(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	mustLoad(t, r, f.write(t, "a", "A", "main.js", commandJS))
	mustLoad(t, r, f.write(t, "b", "B", "main.js", commandJS))

	for _, id := range []string{"A", "B"} {
		got, err := r.Registries().ExecuteCommand(context.Background(), id+".x")
		if err != nil || got != id {
			t.Errorf("ExecuteCommand(%s.x) = %v, %v", id, got, err)
		}
	}
	if n := r.Registries().Commands.Len(); n != 2 {
		t.Errorf("commands = %d, want 2", n)
	}
}

func TestValidationRejectsConstructorChain(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	ext := mustLoad(t, r, f.write(t, "evil", "evil", "main.js", `
api.registerCommand({ id: "probe", execute: function () {} });
var F = (function () {}).constructor;
F("return this")();
`))

	if ext.Loaded || ext.State != StateError {
		t.Fatalf("extension = %+v", ext)
	}
	var verr *security.ValidationError
	if !errors.As(ext.Err, &verr) || verr.Pattern != "constructor-chain" {
		t.Errorf("Err = %v, want constructor-chain ValidationError", ext.Err)
	}
	if r.Registries().OwnedCount("evil") != 0 {
		t.Error("rejected source must never run")
	}
}

func TestSourceOneByteOverLimit(t *testing.T) {
	f := newFixture(t)
	limits := security.DefaultLimits()
	limits.MaxSourceBytes = 64
	r := f.registry(t, WithLimits(limits))

	fits := "//" + strings.Repeat("a", 62)
	over := fits + "b"
	okExt := mustLoad(t, r, f.write(t, "fits", "fits", "main.js", fits))
	bigExt := mustLoad(t, r, f.write(t, "over", "over", "main.js", over))

	if !okExt.Loaded {
		t.Errorf("source at the limit should load: %v", okExt.Err)
	}
	if bigExt.Loaded || !errors.Is(bigExt.Err, security.ErrSourceTooLarge) {
		t.Errorf("over-limit extension = %+v", bigExt)
	}
}

func TestBlockedGlobalsInsideExtension(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	mustLoad(t, r, f.write(t, "peek", "peek", "main.js", `
api.registerCommand({ id: "x", execute: function () {
  return typeof fetch + "," + typeof localStorage + "," + typeof Function;
}});
`))
	got, err := r.Registries().ExecuteCommand(context.Background(), "peek.x")
	if err != nil || got != "undefined,undefined,undefined" {
		t.Errorf("ExecuteCommand() = %v, %v", got, err)
	}
}

func TestReloadKeepsOnlySecondLoad(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	dir := f.write(t, "hot", "hot", "main.js", `
api.registerCommand({ id: "first", execute: function () {} });
`)
	mustLoad(t, r, dir)

	f.write(t, "hot", "hot", "main.js", `
api.registerCommand({ id: "second", execute: function () {} });
`)
	mustLoad(t, r, dir)

	if n := len(r.List()); n != 1 {
		t.Fatalf("extensions = %d, want 1", n)
	}
	if _, ok := r.Registries().Commands.Get("hot.first"); ok {
		t.Error("first load's command survived the reload")
	}
	if _, ok := r.Registries().Commands.Get("hot.second"); !ok {
		t.Error("second load's command missing")
	}
}

func TestSameIDFromAnotherFolderConflicts(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	first := f.write(t, "one", "dup", "main.js", commandJS)
	second := f.write(t, "two", "dup", "main.js", `api.registerCommand({ id: "y", execute: function () {} });`)
	mustLoad(t, r, first)

	_, err := r.LoadExtension(context.Background(), second)
	var cerr *ConflictError
	if !errors.As(err, &cerr) || cerr.ID != "dup" {
		t.Fatalf("error = %v, want ConflictError", err)
	}
	ext, _ := r.Get("dup")
	if ext.InstallPath != first || !ext.Loaded {
		t.Errorf("existing record replaced: %+v", ext)
	}
	if _, ok := r.Registries().Commands.Get("dup.y"); ok {
		t.Error("conflicting extension must not run")
	}
}

func TestDisabledAtLoadNeverRuns(t *testing.T) {
	f := newFixture(t)
	if err := f.fs.SaveExtensionSettings(f.vault, []byte(`{"enabled":{"quiet":false}}`)); err != nil {
		t.Fatal(err)
	}
	r := f.registry(t)
	ext := mustLoad(t, r, f.write(t, "quiet", "quiet", "main.js", `
api.registerCommand({ id: "probe", execute: function () {} });
`))

	if ext.Loaded || ext.Enabled || ext.State != StateDisabled {
		t.Fatalf("extension = %+v", ext)
	}
	if r.Registries().OwnedCount("quiet") != 0 {
		t.Error("disabled extension code ran")
	}
}

func TestDisableIsIdempotent(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	mustLoad(t, r, f.write(t, "calm", "calm", "main.js", commandJS+`
exports.cleanup = function () {};
api.addStyles(".calm { color: blue }");
`))
	ctx := context.Background()

	if err := r.DisableExtension(ctx, "calm"); err != nil {
		t.Fatal(err)
	}
	once, _ := r.Get("calm")
	onceCSS := r.Styles().CSS()
	if err := r.DisableExtension(ctx, "calm"); err != nil {
		t.Fatal(err)
	}
	twice, _ := r.Get("calm")

	if once.State != twice.State || once.Loaded != twice.Loaded || once.Enabled != twice.Enabled {
		t.Errorf("once = %+v, twice = %+v", once, twice)
	}
	if twice.Enabled || twice.Loaded || twice.State != StateDisabled {
		t.Errorf("disabled extension = %+v", twice)
	}
	if r.Styles().CSS() != onceCSS || strings.Contains(onceCSS, ".calm") {
		t.Errorf("style should stay hidden, CSS = %q", r.Styles().CSS())
	}
	if _, err := r.Registries().ExecuteCommand(ctx, "calm.x"); err == nil {
		t.Error("disabled command should not be reachable")
	}
	if r.Settings().IsEnabled("calm") {
		t.Error("settings should record the extension as disabled")
	}
}

func TestEnableReactivatesOrLoads(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	ctx := context.Background()
	mustLoad(t, r, f.write(t, "live", "live", "main.js", `
var loads = 0;
exports.initialize = function (api) {
  loads++;
  api.registerCommand({ id: "loads", execute: function () { return loads; } });
};
`))

	if err := r.DisableExtension(ctx, "live"); err != nil {
		t.Fatal(err)
	}
	if err := r.EnableExtension(ctx, "live"); err != nil {
		t.Fatal(err)
	}
	got, err := r.Registries().ExecuteCommand(ctx, "live.loads")
	if err != nil {
		t.Fatal(err)
	}
	if asInt(got) != 1 {
		t.Errorf("loads = %v, want reactivation without reload", got)
	}

	if err := f.fs.SaveExtensionSettings(f.vault, []byte(`{"enabled":{"late":false}}`)); err != nil {
		t.Fatal(err)
	}
	r2 := f.registry(t)
	mustLoad(t, r2, f.write(t, "late", "late", "main.js", commandJS))
	if err := r2.EnableExtension(ctx, "late"); err != nil {
		t.Fatal(err)
	}
	if ext, _ := r2.Get("late"); !ext.Loaded || !ext.Enabled {
		t.Errorf("never-loaded extension should load on enable: %+v", ext)
	}
}

func TestRemoveExtension(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	ctx := context.Background()
	dir := f.write(t, "gone", "gone", "main.js", `
exports.initialize = function (api) {
  api.registerCommand({ id: "c", execute: function () {} });
  api.registerHook("save", function () {});
  api.registerFilter("title", function (v) { return v; });
  api.registerSlot("sidebar", { id: "s", component: "panel" });
  api.registerContextMenuItem("note", { id: "m", label: "M", execute: function () {} });
  api.registerMenuCategory({ id: "tools", label: "Tools" });
  api.registerMenuItem("tools", { id: "i", label: "I", execute: function () {} });
  api.addStyles(".gone {}");
};
`)
	mustLoad(t, r, dir)
	if err := r.DisableExtension(ctx, "gone"); err != nil {
		t.Fatal(err)
	}
	if r.Registries().OwnedCount("gone") != 7 {
		t.Fatalf("owned = %d, want 7", r.Registries().OwnedCount("gone"))
	}

	if err := r.RemoveExtension(ctx, "gone"); err != nil {
		t.Fatalf("RemoveExtension() error = %v", err)
	}
	if n := r.Registries().OwnedCount("gone"); n != 0 {
		t.Errorf("owned registrations = %d, want 0", n)
	}
	if _, ok := r.Styles().Get("gone"); ok {
		t.Error("style block survived")
	}
	if r.Settings().Has("gone") {
		t.Error("settings key survived")
	}
	doc, _ := f.fs.ReadExtensionSettings(f.vault)
	if gjson.GetBytes(doc, "enabled.gone").Exists() {
		t.Error("persisted settings key survived")
	}
	if _, ok := r.Get("gone"); ok {
		t.Error("record survived")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("extension folder survived")
	}

	if err := r.RemoveExtension(ctx, "gone"); !errors.Is(err, ErrExtensionNotFound) {
		t.Errorf("second remove error = %v, want ErrExtensionNotFound", err)
	}
}

func TestRemoveExtensionDeletesOwnFolder(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	ctx := context.Background()
	holdsBeta := f.write(t, "alpha", "beta", "main.js", commandJS)
	holdsAlpha := f.write(t, "gamma", "alpha", "main.js", commandJS)
	mustLoad(t, r, holdsBeta)
	mustLoad(t, r, holdsAlpha)

	if err := r.RemoveExtension(ctx, "alpha"); err != nil {
		t.Fatalf("RemoveExtension(alpha) error = %v", err)
	}
	if _, err := os.Stat(holdsAlpha); !os.IsNotExist(err) {
		t.Error("install folder of alpha survived")
	}
	if _, err := os.Stat(holdsBeta); err != nil {
		t.Errorf("folder named alpha belongs to beta and must survive: %v", err)
	}
	if ext, ok := r.Get("beta"); !ok || !ext.Loaded {
		t.Errorf("beta should stay loaded: %+v", ext)
	}

	outside := filepath.Join(t.TempDir(), "side")
	if err := os.MkdirAll(outside, 0o755); err != nil {
		t.Fatal(err)
	}
	manifest := `{"id": "side", "name": "side", "version": "1.0.0", "main": "main.js"}`
	if err := os.WriteFile(filepath.Join(outside, hostfs.ManifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(outside, "main.js"), []byte(commandJS), 0o644); err != nil {
		t.Fatal(err)
	}
	mustLoad(t, r, outside)
	if err := r.RemoveExtension(ctx, "side"); err != nil {
		t.Fatalf("RemoveExtension(side) error = %v", err)
	}
	if _, err := os.Stat(outside); !os.IsNotExist(err) {
		t.Error("extension loaded from outside the vault root was not deleted")
	}
}

func TestRemoveUnknownTouchesNothing(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	// installed on disk but never loaded into this registry
	dir := f.write(t, "ghost", "ghost", "main.js", commandJS)
	if err := f.fs.SaveExtensionSettings(f.vault, []byte(`{"enabled":{"ghost":false}}`)); err != nil {
		t.Fatal(err)
	}

	if err := r.RemoveExtension(context.Background(), "ghost"); !errors.Is(err, ErrExtensionNotFound) {
		t.Fatalf("error = %v, want ErrExtensionNotFound", err)
	}
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("folder of an unknown id must be left alone: %v", err)
	}
	doc, _ := f.fs.ReadExtensionSettings(f.vault)
	if !gjson.GetBytes(doc, "enabled.ghost").Exists() {
		t.Error("settings of an unknown id must be left alone")
	}
}

func TestMenuItemsUseLocalCategoryIDs(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	mustLoad(t, r, f.write(t, "m", "m", "main.js", `
exports.initialize = function (api) {
  api.registerMenuCategory({ id: "tools", label: "Tools" });
  api.registerMenuItem("tools", { id: "go", label: "Go", execute: function () {} });
};
`))

	bar := r.Registries().MenuBar()
	if len(bar) != 1 {
		t.Fatalf("got %d sections, want 1: %+v", len(bar), bar)
	}
	if bar[0].ID != "m.tools" || bar[0].Label != "Tools" {
		t.Errorf("section = %s %q, want m.tools Tools", bar[0].ID, bar[0].Label)
	}
	if len(bar[0].Items) != 1 || bar[0].Items[0].QualifiedID != "m.go" {
		t.Errorf("items = %+v, want m.go", bar[0].Items)
	}
}

func TestFolderScanEndToEnd(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	f.write(t, "a", "a", "main.js", commandJS)
	f.write(t, "b", "b", "", "")

	err := r.LoadExtensionsFromFolder(context.Background(), f.root)
	var merr *ManifestError
	if !errors.As(err, &merr) {
		t.Fatalf("scan error = %v, want ManifestError", err)
	}

	list := r.List()
	if len(list) != 1 || list[0].Manifest.ID != "a" || !list[0].Loaded {
		t.Fatalf("extensions = %+v", list)
	}

	var manifestLogs int
	for _, e := range r.Logs().ForExtension(logstore.SystemID) {
		if e.Level == logstore.LevelError && strings.Contains(e.Message, filepath.Join(f.root, "b")) {
			manifestLogs++
		}
	}
	if manifestLogs != 1 {
		t.Errorf("manifest error logs for b = %d, want 1", manifestLogs)
	}

	cmds := r.Registries().Commands.List("")
	if len(cmds) != 1 || cmds[0].Owner != "a" {
		t.Errorf("commands = %+v, want one owned by a", cmds)
	}
}

func TestInitializeFailures(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		phase string
	}{
		{"top level throw", `throw new Error("boom");`, PhaseEvaluate},
		{"initialize throw", `exports.initialize = function () { throw new Error("boom"); };`, PhaseInitialize},
		{"initialize rejects", `exports.initialize = async function () { throw new Error("boom"); };`, PhaseInitialize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			r := f.registry(t)
			ext := mustLoad(t, r, f.write(t, "bad", "bad", "main.js",
				`api.registerCommand({ id: "early", execute: function () {} });`+"\n"+tt.code))

			var eerr *EvaluationError
			if !errors.As(ext.Err, &eerr) || eerr.Phase != tt.phase {
				t.Fatalf("Err = %v, want %s EvaluationError", ext.Err, tt.phase)
			}
			if ext.Loaded || ext.State != StateError {
				t.Errorf("extension = %+v", ext)
			}
			if r.Registries().OwnedCount("bad") != 0 {
				t.Error("registrations of a failed load must be dropped")
			}
		})
	}
}

func TestInitializeTimeout(t *testing.T) {
	f := newFixture(t)
	limits := security.DefaultLimits()
	limits.InitializeTimeout = 50 * time.Millisecond
	r := f.registry(t, WithLimits(limits))

	start := time.Now()
	ext := mustLoad(t, r, f.write(t, "hang", "hang", "main.js",
		`exports.initialize = function () { for (;;) {} };`))
	if !errors.Is(ext.Err, sandbox.ErrInterrupted) {
		t.Fatalf("Err = %v, want ErrInterrupted", ext.Err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("initialize was not bounded")
	}

	next := mustLoad(t, r, f.write(t, "after", "after", "main.js", commandJS))
	if !next.Loaded {
		t.Error("a hanging initializer must not block later extensions")
	}
}

func TestPolicyBlocked(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t, WithPolicy(security.NewDynamicCodePolicy(false, nil)))

	var events []EventType
	r.Subscribe(func(e Event) { events = append(events, e.Type) })

	ext := mustLoad(t, r, f.write(t, "blocked", "blocked", "main.js", commandJS))
	if !ext.Blocked || ext.Loaded || ext.Err != nil || ext.State != StatePolicyBlocked {
		t.Fatalf("extension = %+v", ext)
	}
	entries := r.Logs().ForExtension("blocked")
	if len(entries) == 0 || entries[0].Level != logstore.LevelWarn {
		t.Errorf("want a warn entry, got %+v", entries)
	}
	if len(events) != 2 || events[1] != EventBlocked {
		t.Errorf("events = %v", events)
	}
}

func TestUnloadRunsCleanup(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	mustLoad(t, r, f.write(t, "tidy", "tidy", "main.js", commandJS+`
exports.cleanup = function () { console.log("bye"); };
`))

	if err := r.UnloadExtension(context.Background(), "tidy"); err != nil {
		t.Fatal(err)
	}
	var saidBye bool
	for _, e := range r.Logs().ForExtension("tidy") {
		if e.Message == "bye" {
			saidBye = true
		}
	}
	if !saidBye {
		t.Error("cleanup did not run")
	}
	ext, ok := r.Get("tidy")
	if !ok || ext.Loaded || ext.State != StateRegistered {
		t.Errorf("unloaded extension = %+v, %v", ext, ok)
	}
	if r.Registries().OwnedCount("tidy") != 0 {
		t.Error("registrations survived unload")
	}
	if err := r.UnloadExtension(context.Background(), "missing"); !errors.Is(err, ErrExtensionNotFound) {
		t.Errorf("error = %v, want ErrExtensionNotFound", err)
	}
}

func TestExtensionStorage(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	mustLoad(t, r, f.write(t, "notes", "notes", "main.js", `
exports.initialize = function (api) {
  api.storage.set("counter", { n: 41 });
  api.registerCommand({ id: "next", execute: function () {
    var v = api.storage.get("counter");
    v.n++;
    api.storage.set("counter", v);
    return v.n;
  }});
};
`))
	got, err := r.Registries().ExecuteCommand(context.Background(), "notes.next")
	if err != nil {
		t.Fatal(err)
	}
	if asInt(got) != 42 {
		t.Errorf("next = %v, want 42", got)
	}
	data, err := os.ReadFile(filepath.Join(f.vault, ".kairo", "plugins", "notes", "counter.json"))
	if err != nil || gjson.GetBytes(data, "n").Int() != 42 {
		t.Errorf("stored counter = %s, %v", data, err)
	}
}

func TestFindByPathAndConsole(t *testing.T) {
	f := newFixture(t)
	r := f.registry(t)
	dir := f.write(t, "folder-name", "by-path", "main.js", commandJS)
	mustLoad(t, r, dir)

	if ext, ok := r.FindByPath(dir + string(filepath.Separator)); !ok || ext.Manifest.ID != "by-path" {
		t.Errorf("FindByPath() = %+v, %v", ext, ok)
	}

	r.Log(logstore.LevelDebug, "by-path", "note", nil)
	if !r.ToggleConsole() {
		t.Error("ToggleConsole() should report visible")
	}
	r.ClearLogs()
	if r.Logs().Len() != 0 {
		t.Error("ClearLogs() left entries")
	}
}

type failingSettingsFS struct {
	*hostfs.OS
}

func (failingSettingsFS) SaveExtensionSettings(string, []byte) error {
	return errors.New("read-only vault")
}

func TestSettingsWriteFailureIsLoggedNotRolledBack(t *testing.T) {
	f := newFixture(t)
	r := NewRegistry(failingSettingsFS{f.fs}, f.vault, WithPolicy(security.NewDynamicCodePolicy(true, nil)))
	t.Cleanup(func() { r.Shutdown(context.Background()) })
	mustLoad(t, r, f.write(t, "opt", "opt", "main.js", commandJS))

	if err := r.DisableExtension(context.Background(), "opt"); err != nil {
		t.Fatal(err)
	}
	if ext, _ := r.Get("opt"); ext.Enabled {
		t.Error("in-memory toggle should be kept")
	}
	var logged bool
	for _, e := range r.Logs().ForExtension("opt") {
		if e.Level == logstore.LevelError && strings.Contains(e.Message, "settings") {
			logged = true
		}
	}
	if !logged {
		t.Error("write failure should be logged")
	}
}
