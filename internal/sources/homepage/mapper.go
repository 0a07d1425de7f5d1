package homepage

import (
	"sort"
	"strings"
)

// Link is one entry of a Homepage document with its category
type Link struct {
	Category    string
	Name        string
	Href        string
	Description string
}

// BookmarkLinks flattens bookmarks.yaml. Entries without href are skipped;
// the name falls back to abbr, then to the href.
func BookmarkLinks(config BookmarksConfig) []Link {
	links := make([]Link, 0)

	for _, category := range config {
		for _, categoryName := range sortedKeys(category) {
			for _, bookmarkMap := range category[categoryName] {
				for _, bookmarkName := range sortedKeys(bookmarkMap) {
					entries := bookmarkMap[bookmarkName]
					// Each bookmark has a list with a single entry
					if len(entries) == 0 {
						continue
					}
					entry := entries[0]
					if strings.TrimSpace(entry.Href) == "" {
						continue
					}

					name := strings.TrimSpace(bookmarkName)
					if name == "" {
						name = entry.Abbr
					}
					if name == "" {
						name = entry.Href
					}

					links = append(links, Link{
						Category:    strings.TrimSpace(categoryName),
						Name:        name,
						Href:        strings.TrimSpace(entry.Href),
						Description: entry.Description,
					})
				}
			}
		}
	}
	return links
}

// ServiceLinks flattens services.yaml the same way
func ServiceLinks(config ServicesConfig) []Link {
	links := make([]Link, 0)

	for _, category := range config {
		for _, categoryName := range sortedKeys(category) {
			for _, serviceMap := range category[categoryName] {
				for _, serviceName := range sortedKeys(serviceMap) {
					props := serviceMap[serviceName]
					if strings.TrimSpace(props.Href) == "" {
						continue
					}
					links = append(links, Link{
						Category:    strings.TrimSpace(categoryName),
						Name:        strings.TrimSpace(serviceName),
						Href:        strings.TrimSpace(props.Href),
						Description: props.Description,
					})
				}
			}
		}
	}
	return links
}

// sortedKeys keeps the output stable when a YAML mapping holds several keys
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
