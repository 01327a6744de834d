package masterlist

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// FallbackPhase is used when neither a category nor the document declares one.
const FallbackPhase = "0A"

const defaultListName = "Imported Tasks"

// FlatList is a normalized document ready for persistence.
type FlatList struct {
	Name         string
	DefaultPhase string
	Categories   []FlatCategory
}

// FlatCategory is a category with its resolved phase.
type FlatCategory struct {
	Name  string
	Phase string
	Tasks []TaskTemplate
}

// Count returns the number of task templates across all categories.
func (l *FlatList) Count() int {
	n := 0
	for _, c := range l.Categories {
		n += len(c.Tasks)
	}
	return n
}

// Flatten resolves phase inheritance, names the list and drops templates
// without a title. source is the originating file path and is only used to
// derive a name when the document has no title. Document order is preserved.
func Flatten(doc *Document, source string) *FlatList {
	return FlattenWithFallback(doc, source, FallbackPhase)
}

// FlattenWithFallback is Flatten with a configurable fallback phase.
func FlattenWithFallback(doc *Document, source, fallback string) *FlatList {
	if fallback == "" {
		fallback = FallbackPhase
	}
	list := &FlatList{
		Name:         listName(doc, source),
		DefaultPhase: fallback,
	}
	if doc == nil {
		return list
	}
	if doc.DefaultPhase != "" {
		list.DefaultPhase = doc.DefaultPhase
	}

	for _, c := range doc.Categories {
		fc := FlatCategory{
			Name:  strings.TrimSpace(c.Name),
			Phase: c.Phase,
		}
		if fc.Phase == "" {
			fc.Phase = list.DefaultPhase
		}
		for _, t := range c.Tasks {
			t.Title = strings.TrimSpace(t.Title)
			if t.Title == "" {
				continue
			}
			t.Description = strings.TrimSpace(t.Description)
			fc.Tasks = append(fc.Tasks, t)
		}
		if len(fc.Tasks) == 0 {
			continue
		}
		list.Categories = append(list.Categories, fc)
	}
	return list
}

func listName(doc *Document, source string) string {
	if doc != nil && strings.TrimSpace(doc.Title) != "" {
		return strings.TrimSpace(doc.Title)
	}
	base := filepath.Base(source)
	if source == "" || base == "." || base == string(filepath.Separator) {
		return defaultListName
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.NewReplacer("-", " ", "_", " ", ".", " ").Replace(base)
	base = strings.Join(strings.Fields(base), " ")
	if base == "" {
		return defaultListName
	}
	return cases.Title(language.English).String(base)
}
