package transfer

import (
	"strings"

	"github.com/MrSnakeDoc/shelf/internal/dedup"
	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// Item is an entry with its duplicate status against the live collection
// and the entries before it in the same document.
type Item struct {
	Entry
	Duplicate  bool   `json:"duplicate"`
	ExistingID string `json:"existingId,omitempty"`
}

// GroupPreview summarizes one source group.
type GroupPreview struct {
	Name       string `json:"name"`
	Total      int    `json:"total"`
	Duplicates int    `json:"duplicates"`
	Items      []Item `json:"items"`
}

// Preview is what the user confirms before an import runs.
type Preview struct {
	Groups     []GroupPreview `json:"groups"`
	Total      int            `json:"total"`
	Duplicates int            `json:"duplicates"`
	// Invalid counts entries whose URL was rejected outright.
	Invalid int `json:"invalid"`
}

// Plan groups entries by source group in first-seen order and flags
// duplicates. Entries without a group are filed under UngroupedName.
func Plan(entries []Entry, live []*domain.Bookmark) Preview {
	var (
		p     Preview
		batch = dedup.NewBatch(live)
		index = make(map[string]int)
	)

	for _, e := range entries {
		u, err := domain.PrepareURL(e.URL)
		if err != nil {
			p.Invalid++
			continue
		}
		e.URL = u
		e.Title = strings.TrimSpace(e.Title)
		e.Group = strings.TrimSpace(e.Group)

		item := Item{Entry: e}
		if c := batch.Check(u); c != nil {
			item.Duplicate = true
			item.ExistingID = c.ExistingID
		} else {
			batch.Accept(e.Title, u)
		}

		name := e.Group
		if name == "" {
			name = UngroupedName
		}
		i, ok := index[name]
		if !ok {
			i = len(p.Groups)
			index[name] = i
			p.Groups = append(p.Groups, GroupPreview{Name: name})
		}

		g := &p.Groups[i]
		g.Items = append(g.Items, item)
		g.Total++
		p.Total++
		if item.Duplicate {
			g.Duplicates++
			p.Duplicates++
		}
	}
	return p
}
