// Package projctx derives a technology profile from a project directory.
// A profile is built by scanning for marker files (go.mod, package.json,
// Cargo.toml, ...) and lockfiles, with an optional .capmatch/project.yaml
// override. Results are cached per path with a TTL so repeated
// recommendation requests do not re-scan the filesystem.
package projctx

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultCacheTTL is a reasonable TTL for callers that have no
// configured cache timeout of their own.
const DefaultCacheTTL = 60 * time.Second

// OverrideFile is the per-project override, relative to the project root.
const OverrideFile = ".capmatch/project.yaml"

// ScanError reports a failed project scan. Callers degrade to "no project
// context" rather than failing the surrounding request.
type ScanError struct {
	Path string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("project context scan failed for %s: %v", e.Path, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Context is the derived technology profile of a project directory.
type Context struct {
	// Path is the cleaned project root the profile was computed from.
	Path string

	// PackageManager is the detected package manager ("go modules",
	// "npm", "cargo", ...), or "" when none was recognized.
	PackageManager string

	// Stack lists the detected technologies, in marker order.
	Stack []string

	// Frameworks lists detected frameworks (react, django, ...).
	Frameworks []string

	// ComputedAt is when the scan ran.
	ComputedAt time.Time
}

// HasTech reports whether tech appears in the detected stack or frameworks.
func (c *Context) HasTech(tech string) bool {
	for _, s := range c.Stack {
		if s == tech {
			return true
		}
	}
	for _, f := range c.Frameworks {
		if f == tech {
			return true
		}
	}
	return false
}

// marker maps a filesystem marker to a detected technology.
type marker struct {
	name string
	tech string
	dir  bool
}

var stackMarkers = []marker{
	{name: "go.mod", tech: "go"},
	{name: "Cargo.toml", tech: "rust"},
	{name: "package.json", tech: "node"},
	{name: "tsconfig.json", tech: "typescript"},
	{name: "pyproject.toml", tech: "python"},
	{name: "setup.py", tech: "python"},
	{name: "requirements.txt", tech: "python"},
	{name: "Gemfile", tech: "ruby"},
	{name: "pom.xml", tech: "java"},
	{name: "build.gradle", tech: "java"},
	{name: "Dockerfile", tech: "docker"},
	{name: "docker-compose.yml", tech: "docker"},
	{name: ".terraform", tech: "terraform", dir: true},
	{name: "Makefile", tech: "make"},
}

// packageManagerMarkers are checked in order; the first hit wins so the
// more specific lockfiles beat the generic manifest.
var packageManagerMarkers = []struct {
	name    string
	manager string
}{
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"package-lock.json", "npm"},
	{"package.json", "npm"},
	{"go.mod", "go modules"},
	{"Cargo.lock", "cargo"},
	{"Cargo.toml", "cargo"},
	{"poetry.lock", "poetry"},
	{"requirements.txt", "pip"},
	{"Gemfile.lock", "bundler"},
	{"pom.xml", "maven"},
	{"build.gradle", "gradle"},
}

// frameworkDeps maps a dependency name (as it appears in package.json or
// go.mod) to a framework tag.
var frameworkDeps = map[string]string{
	"react":       "react",
	"vue":         "vue",
	"svelte":      "svelte",
	"next":        "nextjs",
	"express":     "express",
	"django":      "django",
	"flask":       "flask",
	"rails":       "rails",
	"gin-gonic":   "gin",
	"labstack":    "echo",
	"gofiber":     "fiber",
	"spf13":       "cobra",
	"bubbletea":   "bubbletea",
	"grpc":        "grpc",
	"gorm.io":     "gorm",
	"prisma":      "prisma",
	"tailwindcss": "tailwind",
}

// override mirrors the .capmatch/project.yaml file.
type override struct {
	PackageManager string   `yaml:"package_manager"`
	Stack          []string `yaml:"stack"`
	Frameworks     []string `yaml:"frameworks"`
}

type cacheEntry struct {
	ctx       *Context
	timestamp time.Time
}

// Analyzer scans project directories and caches the results per path.
// It is safe for concurrent use. Two concurrent calls for an uncached
// path may both scan; the scan is read-only so last writer wins.
type Analyzer struct {
	mu      sync.RWMutex
	cache   map[string]cacheEntry
	ttl     time.Duration
	nowFunc func() time.Time
}

// NewAnalyzer creates a project context analyzer with the given cache TTL.
// A zero TTL disables caching: every entry is treated as already expired
// and each call rescans. Negative values are clamped to zero.
func NewAnalyzer(ttl time.Duration) *Analyzer {
	if ttl < 0 {
		ttl = 0
	}
	return &Analyzer{
		cache:   make(map[string]cacheEntry),
		ttl:     ttl,
		nowFunc: time.Now,
	}
}

// SetTTL replaces the cache TTL. Existing entries are judged against the
// new TTL on their next read; zero expires everything immediately.
func (a *Analyzer) SetTTL(ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	a.mu.Lock()
	a.ttl = ttl
	a.mu.Unlock()
}

// Analyze returns the project context for path, serving from cache when a
// fresh entry exists. A failed scan returns a *ScanError and caches
// nothing.
func (a *Analyzer) Analyze(path string) (*Context, error) {
	cleaned := filepath.Clean(path)

	a.mu.RLock()
	entry, ok := a.cache[cleaned]
	ttl := a.ttl
	a.mu.RUnlock()

	if ok && a.nowFunc().Sub(entry.timestamp) < ttl {
		return entry.ctx, nil
	}

	ctx, err := a.scan(cleaned)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.cache[cleaned] = cacheEntry{ctx: ctx, timestamp: a.nowFunc()}
	a.mu.Unlock()

	return ctx, nil
}

// Invalidate drops the cached entry for path.
func (a *Analyzer) Invalidate(path string) {
	a.mu.Lock()
	delete(a.cache, filepath.Clean(path))
	a.mu.Unlock()
}

// Clear empties the cache.
func (a *Analyzer) Clear() {
	a.mu.Lock()
	a.cache = make(map[string]cacheEntry)
	a.mu.Unlock()
}

// Cleanup removes expired entries and returns how many were dropped.
func (a *Analyzer) Cleanup() int {
	now := a.nowFunc()
	a.mu.Lock()
	defer a.mu.Unlock()

	dropped := 0
	for path, entry := range a.cache {
		if now.Sub(entry.timestamp) >= a.ttl {
			delete(a.cache, path)
			dropped++
		}
	}
	return dropped
}

// Size returns the number of cached contexts.
func (a *Analyzer) Size() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}

// scan builds a fresh context for the directory at path.
func (a *Analyzer) scan(path string) (*Context, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ScanError{Path: path, Err: err}
	}
	if !info.IsDir() {
		return nil, &ScanError{Path: path, Err: fmt.Errorf("not a directory")}
	}

	ctx := &Context{
		Path:       path,
		ComputedAt: a.nowFunc(),
	}

	if ov := readOverride(path); ov != nil {
		ctx.PackageManager = ov.PackageManager
		ctx.Stack = dedupe(ov.Stack)
		ctx.Frameworks = dedupe(ov.Frameworks)
		return ctx, nil
	}

	seen := make(map[string]bool)
	for _, m := range stackMarkers {
		if seen[m.tech] {
			continue
		}
		if markerExists(path, m) {
			seen[m.tech] = true
			ctx.Stack = append(ctx.Stack, m.tech)
		}
	}

	for _, pm := range packageManagerMarkers {
		if fileExists(filepath.Join(path, pm.name)) {
			ctx.PackageManager = pm.manager
			break
		}
	}

	ctx.Frameworks = detectFrameworks(path)

	return ctx, nil
}

// detectFrameworks inspects dependency manifests for known framework names.
// Best effort: unreadable manifests are skipped.
func detectFrameworks(path string) []string {
	var found []string
	seen := make(map[string]bool)

	for _, manifest := range []string{"package.json", "go.mod", "requirements.txt", "Gemfile", "pyproject.toml"} {
		data, err := os.ReadFile(filepath.Join(path, manifest))
		if err != nil {
			continue
		}
		content := strings.ToLower(string(data))
		for dep, fw := range frameworkDeps {
			if seen[fw] {
				continue
			}
			if strings.Contains(content, dep) {
				seen[fw] = true
				found = append(found, fw)
			}
		}
	}

	// Deterministic order regardless of map iteration.
	sort.Strings(found)
	return found
}

func readOverride(path string) *override {
	data, err := os.ReadFile(filepath.Join(path, filepath.FromSlash(OverrideFile)))
	if err != nil {
		return nil
	}
	var ov override
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil
	}
	if ov.PackageManager == "" && len(ov.Stack) == 0 && len(ov.Frameworks) == 0 {
		return nil
	}
	return &ov
}

func markerExists(dir string, m marker) bool {
	info, err := os.Stat(filepath.Join(dir, m.name))
	if err != nil {
		return false
	}
	if m.dir {
		return info.IsDir()
	}
	return !info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dedupe(in []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
