//go:build !windows

package plugins

import (
	"fmt"
	"os"
	"path/filepath"
	"plugin"
	"runtime"
	"sync"
)

// PluginInfo is the value returned by a shared library's exported
// get_plugin_info symbol.
type PluginInfo struct {
	Name        string
	Version     string
	Description string
	Type        string // "channel" | "tool" | "ai"
}

// PluginInfoFunc, CreatePluginFunc, and DestroyPluginFunc are the Go
// function types behind the three required C-ABI exports named in
// spec.md §6: get_plugin_info, create_plugin, destroy_plugin.
type (
	PluginInfoFunc    func() PluginInfo
	CreatePluginFunc  func() Plugin
	DestroyPluginFunc func(Plugin)
)

const (
	symbolGetInfo       = "get_plugin_info"
	symbolCreatePlugin  = "create_plugin"
	symbolDestroyPlugin = "destroy_plugin"
)

type loadedEntry struct {
	handle  *plugin.Plugin
	info    PluginInfo
	create  CreatePluginFunc
	destroy DestroyPluginFunc
	inst    Plugin
}

// Loader resolves a bare plugin name or path to a shared-library file,
// opens it, and tracks the (library handle, factory, instance) tuple so
// it can be unloaded cleanly later. The library handle must outlive the
// instance it produced: Unload always calls destroy_plugin before the
// handle is dropped.
type Loader struct {
	mu          sync.Mutex
	searchDirs  []string
	projectName string
	order       []string // registration order, for UnloadAll
	entries     map[string]*loadedEntry
}

// NewLoader builds a Loader that searches searchDirs (in order) for
// candidate shared-library files. projectName is used to build the
// "<project>_<name>.so" candidate form.
func NewLoader(searchDirs []string, projectName string) *Loader {
	return &Loader{
		searchDirs:  searchDirs,
		projectName: projectName,
		entries:     make(map[string]*loadedEntry),
	}
}

func libExt() string {
	switch runtime.GOOS {
	case "darwin":
		return ".dylib"
	case "windows":
		return ".dll"
	default:
		return ".so"
	}
}

// candidates returns the ordered list of filenames tried for a bare plugin
// name, per spec.md §4.2.
func (l *Loader) candidates(name string) []string {
	ext := libExt()
	return []string{
		name,
		name + ext,
		"lib" + name + ext,
		l.projectName + "_" + name + ext,
		"lib" + l.projectName + "_" + name + ext,
	}
}

// resolve finds the first existing candidate file for name/path across the
// configured search directories. If nameOrPath is itself an existing file,
// it's used directly.
func (l *Loader) resolve(nameOrPath string) (string, error) {
	if info, err := os.Stat(nameOrPath); err == nil && !info.IsDir() {
		return nameOrPath, nil
	}

	base := filepath.Base(nameOrPath)
	dirs := l.searchDirs
	if len(dirs) == 0 {
		dirs = []string{"."}
	}
	for _, dir := range dirs {
		for _, cand := range l.candidates(base) {
			full := filepath.Join(dir, cand)
			if info, err := os.Stat(full); err == nil && !info.IsDir() {
				return full, nil
			}
		}
	}
	return "", fmt.Errorf("no shared library found for plugin %q in %v", nameOrPath, dirs)
}

// Load opens the shared library resolved from nameOrPath, looks up the
// three required exported symbols, and constructs an instance. If a
// plugin by the resolved info's name is already loaded, no new instance is
// created and the existing one is returned with loadedNow=false and no
// error, matching spec.md's "no-op, not an error" rule.
func (l *Loader) Load(nameOrPath string) (inst Plugin, loadedNow bool, err error) {
	path, err := l.resolve(nameOrPath)
	if err != nil {
		return nil, false, err
	}

	handle, err := plugin.Open(path)
	if err != nil {
		return nil, false, fmt.Errorf("open plugin %s: %w", path, err)
	}

	infoSym, err := handle.Lookup(symbolGetInfo)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s in %s: %w", symbolGetInfo, path, err)
	}
	getInfo, ok := infoSym.(func() PluginInfo)
	if !ok {
		return nil, false, fmt.Errorf("%s in %s has an unexpected signature", symbolGetInfo, path)
	}
	info := getInfo()

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.entries[info.Name]; ok {
		// Already loaded: report as a no-op rather than an error.
		// Note: plugin.Open never actually "closes" in Go (no Close API);
		// we simply drop our reference and never call create/destroy on
		// the duplicate, matching the spirit of the rule with Go's
		// append-only plugin runtime.
		return existing.inst, false, nil
	}

	createSym, err := handle.Lookup(symbolCreatePlugin)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s in %s: %w", symbolCreatePlugin, path, err)
	}
	create, ok := createSym.(func() Plugin)
	if !ok {
		return nil, false, fmt.Errorf("%s in %s has an unexpected signature", symbolCreatePlugin, path)
	}

	destroySym, err := handle.Lookup(symbolDestroyPlugin)
	if err != nil {
		return nil, false, fmt.Errorf("lookup %s in %s: %w", symbolDestroyPlugin, path, err)
	}
	destroy, ok := destroySym.(func(Plugin))
	if !ok {
		return nil, false, fmt.Errorf("%s in %s has an unexpected signature", symbolDestroyPlugin, path)
	}

	instance := create()
	entry := &loadedEntry{handle: handle, info: info, create: create, destroy: destroy, inst: instance}
	l.entries[info.Name] = entry
	l.order = append(l.order, info.Name)
	return instance, true, nil
}

// Unload calls the plugin's own Shutdown, then destroy_plugin, and forgets
// the entry. The library handle is never explicitly closed (Go's plugin
// package has no unload primitive); destroy_plugin having returned is the
// contractual point after which the plugin's own resources are released.
func (l *Loader) Unload(name string) error {
	l.mu.Lock()
	entry, ok := l.entries[name]
	if ok {
		delete(l.entries, name)
		for i, n := range l.order {
			if n == name {
				l.order = append(l.order[:i], l.order[i+1:]...)
				break
			}
		}
	}
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("plugin %q is not loaded", name)
	}
	if err := entry.inst.Shutdown(); err != nil {
		return fmt.Errorf("shutdown plugin %q: %w", name, err)
	}
	entry.destroy(entry.inst)
	return nil
}

// UnloadAll unloads every tracked plugin in reverse registration order.
func (l *Loader) UnloadAll() error {
	l.mu.Lock()
	order := make([]string, len(l.order))
	copy(order, l.order)
	l.mu.Unlock()

	var firstErr error
	for i := len(order) - 1; i >= 0; i-- {
		if err := l.Unload(order[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Loaded reports whether name currently has a tracked instance.
func (l *Loader) Loaded(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[name]
	return ok
}

// Count returns the number of currently-loaded plugin instances.
func (l *Loader) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
