package coursekit

import (
	"crypto/md5" // #nosec G501 -- change detection, not security
	"encoding/hex"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/coursekit/coursekit/internal/fileutil"
)

// stepSeparator splits content.md into steps.
var stepSeparator = regexp.MustCompile(`\n---+\r?\n`)

// slugStrip removes everything a section slug cannot contain.
var slugStrip = regexp.MustCompile(`[^\w-]`)

// trailingDigits matches the numeric suffix of generated step ids.
var trailingDigits = regexp.MustCompile(`[0-9]+$`)

// textHash returns the hex md5 of the source text, the change-cache key
// format shared with previously written cache files.
func textHash(text string) string {
	sum := md5.Sum([]byte(text)) // #nosec G401 -- change detection, not security
	return hex.EncodeToString(sum[:])
}

// resolvePath locates a course file for a locale. English lives in the
// course directory; translations in a parallel tree keyed by locale.
func resolvePath(dir, file, locale string) string {
	if locale == "en" {
		return filepath.Join(dir, file)
	}
	return filepath.Join(dir, "..", "..", "translations", locale, filepath.Base(dir), file)
}

// sectionSlug derives a section id from its title.
func sectionSlug(title string) string {
	slug := strings.ReplaceAll(strings.ToLower(title), " ", "-")
	return slugStrip.ReplaceAllString(slug, "")
}

// toTitleCase upper-cases the first letter of every word.
func toTitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		words[i] = strings.ToUpper(string(r[0])) + string(r[1:])
	}
	return strings.Join(words, " ")
}

// stepTitle derives a display title from a step id, dropping the numeric
// suffix of generated ids.
func stepTitle(id string) string {
	name := trailingDigits.ReplaceAllString(id, "")
	return toTitleCase(strings.ReplaceAll(name, "-", " "))
}

// ListCourses returns the course directories under the content root in
// alphabetical order, skipping the shared directory, underscore-prefixed
// directories and plain files.
func ListCourses(contentDir string) []string {
	entries, err := os.ReadDir(contentDir)
	if err != nil {
		return nil
	}
	var courses []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || name == "shared" || strings.HasPrefix(name, "_") || strings.Contains(name, ".") {
			continue
		}
		courses = append(courses, name)
	}
	sort.Strings(courses)
	return courses
}

// nextCourse finds the course shift places after courseID alphabetically,
// wrapping around at either end.
func nextCourse(contentDir, courseID string, shift int) string {
	courses := ListCourses(contentDir)
	for i, c := range courses {
		if c == courseID {
			n := len(courses)
			return courses[((i+shift)%n+n)%n]
		}
	}
	return ""
}

// availableLocales filters the configured locales down to those a course has
// a content.md for.
func availableLocales(dir string, locales []string) []string {
	var available []string
	for _, l := range locales {
		if fileutil.FileExists(resolvePath(dir, "content.md", l)) {
			available = append(available, l)
		}
	}
	return available
}

// courseAsset resolves an asset path inside a course's content root.
func courseAsset(courseID string, parts ...string) string {
	return path.Join(append([]string{"/content", courseID}, parts...)...)
}

// URLSet collects the published section URLs of a run, the input for
// sitemap generation. Safe for concurrent use.
type URLSet struct {
	mu   sync.Mutex
	urls map[string]bool
}

func NewURLSet() *URLSet {
	return &URLSet{urls: map[string]bool{}}
}

func (s *URLSet) Add(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.urls[url] = true
}

// URLs returns the collected URLs in sorted order.
func (s *URLSet) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := make([]string, 0, len(s.urls))
	for u := range s.urls {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// orderedSet keeps first-insertion order, for glossary and biography keys.
type orderedSet struct {
	seen map[string]bool
	keys []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]bool{}}
}

func (s *orderedSet) add(keys ...string) {
	for _, k := range keys {
		if !s.seen[k] {
			s.seen[k] = true
			s.keys = append(s.keys, k)
		}
	}
}
