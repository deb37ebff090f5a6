package device

import (
	"fmt"
	"sort"
	"strings"

	"github.com/devicelab-dev/droidpilot/pkg/core"
)

// DefaultApps maps spoken app names to package names.
var DefaultApps = map[string]string{
	"settings":   "com.android.settings",
	"gmail":      "com.google.android.gm",
	"whatsapp":   "com.whatsapp",
	"chatgpt":    "com.openai.chatgpt",
	"chrome":     "com.android.chrome",
	"youtube":    "com.google.android.youtube",
	"maps":       "com.google.android.apps.maps",
	"camera":     "com.android.camera2",
	"phone":      "com.android.dialer",
	"contacts":   "com.android.contacts",
	"messages":   "com.android.mms",
	"calendar":   "com.google.android.calendar",
	"play store": "com.android.vending",
	"files":      "com.android.documentsui",
	"paytm":      "net.one97.paytm",
	"gpay":       "com.google.android.apps.nbu.paisa.user",
	"phonepe":    "com.phonepe.app",
	"bhim":       "in.org.npci.upiapp",
	"gemini":     "com.google.android.apps.bard",
	"claude":     "com.anthropic.claude",
	"perplexity": "ai.perplexity.app.android",
}

// similarityThreshold is the minimum fuzzy score for a match.
const similarityThreshold = 0.5

var fillerWords = map[string]bool{"the": true, "a": true, "an": true, "open": true, "launch": true, "start": true}

// Apps resolves spoken app names, which are often misrecognized, to
// package names.
type Apps struct {
	names map[string]string
}

// NewApps creates a resolver over DefaultApps plus overrides.
func NewApps(overrides map[string]string) *Apps {
	a := &Apps{names: make(map[string]string, len(DefaultApps)+len(overrides))}
	for k, v := range DefaultApps {
		a.names[k] = v
	}
	for k, v := range overrides {
		a.Add(k, v)
	}
	return a
}

// Add adds or replaces a mapping.
func (a *Apps) Add(name, pkg string) {
	a.names[strings.ToLower(strings.TrimSpace(name))] = pkg
}

// Names returns the known app names, sorted.
func (a *Apps) Names() []string {
	names := make([]string, 0, len(a.names))
	for k := range a.names {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// PackageName returns the package for an exact known name.
func (a *Apps) PackageName(name string) (string, bool) {
	pkg, ok := a.names[strings.ToLower(strings.TrimSpace(name))]
	return pkg, ok
}

// NameOf returns the friendly name for a package, or the package itself.
func (a *Apps) NameOf(pkg string) string {
	for _, k := range a.Names() {
		if a.names[k] == pkg {
			return k
		}
	}
	return pkg
}

// Resolve maps a spoken name to a package. It tries, in order: exact name,
// name without filler words, name without separators, containment either
// way, and a character similarity score. Two different packages matching
// at the same step make the name ambiguous.
func (a *Apps) Resolve(name string) (string, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return "", core.ErrAppNotFound.WithMessage("no app name given")
	}
	if pkg, ok := a.names[lower]; ok {
		return pkg, nil
	}

	var words []string
	for _, w := range strings.Fields(lower) {
		if !fillerWords[w] {
			words = append(words, w)
		}
	}
	clean := strings.Join(words, " ")
	if pkg, ok := a.names[clean]; ok {
		return pkg, nil
	}

	normalized := normalize(clean)
	if normalized == "" {
		return "", a.notFound(name)
	}

	keys := a.Names()
	if pkg, ok, err := a.unique(name, keys, func(k string) bool { return normalize(k) == normalized }); ok {
		return pkg, err
	}
	if pkg, ok, err := a.unique(name, keys, func(k string) bool {
		nk := normalize(k)
		return strings.Contains(nk, normalized) || strings.Contains(normalized, nk)
	}); ok {
		return pkg, err
	}

	best, bestScore := "", 0.0
	tied := false
	for _, k := range keys {
		score := similarity(normalized, normalize(k))
		if score <= similarityThreshold {
			continue
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = a.names[k], score, false
		case score == bestScore && a.names[k] != best:
			tied = true
		}
	}
	if best == "" {
		return "", a.notFound(name)
	}
	if tied {
		return "", core.ErrAppAmbiguous.WithMessage(fmt.Sprintf("%q is ambiguous: several apps match equally well", name))
	}
	return best, nil
}

// unique applies match to every key. ok reports whether any key matched;
// more than one distinct package is an ambiguity error.
func (a *Apps) unique(name string, keys []string, match func(string) bool) (string, bool, error) {
	var pkgs []string
	var matched []string
	for _, k := range keys {
		if !match(k) {
			continue
		}
		pkg := a.names[k]
		dup := false
		for _, p := range pkgs {
			dup = dup || p == pkg
		}
		if !dup {
			pkgs = append(pkgs, pkg)
			matched = append(matched, k)
		}
	}
	switch len(pkgs) {
	case 0:
		return "", false, nil
	case 1:
		return pkgs[0], true, nil
	default:
		return "", true, core.ErrAppAmbiguous.WithMessage(
			fmt.Sprintf("%q is ambiguous: it could be %s", name, strings.Join(matched, " or ")))
	}
}

func (a *Apps) notFound(name string) error {
	return core.ErrAppNotFound.WithMessage(
		fmt.Sprintf("could not find an app matching %q; the name is unknown or ambiguous", name))
}

func normalize(s string) string {
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
}

// similarity scores two names in [0, 1]: character-set Jaccard weighted 0.7
// plus length similarity weighted 0.3. Containment scores 0.8.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	setA, setB := runeSet(a), runeSet(b)
	inter := 0
	for r := range setA {
		if setB[r] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	jaccard := float64(inter) / float64(union)

	la, lb := len([]rune(a)), len([]rune(b))
	longer, diff := la, la-lb
	if lb > la {
		longer, diff = lb, lb-la
	}
	lenSim := 1 - float64(diff)/float64(longer)

	return jaccard*0.7 + lenSim*0.3
}

func runeSet(s string) map[rune]bool {
	set := make(map[rune]bool)
	for _, r := range s {
		set[r] = true
	}
	return set
}
