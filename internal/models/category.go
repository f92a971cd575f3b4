package models

import (
	"sort"

	"github.com/returnordie/til-i-allt-sub001/internal/utils"
)

// Category groups ads within a section. Categories nest one level via ParentID.
type Category struct {
	Base     `bson:",inline"`
	Section  Section      `bson:"section" json:"section"`
	Slug     string       `bson:"slug" json:"slug"`
	Name     string       `bson:"name" json:"name"`
	ParentID *utils.SixID `bson:"parent_id,omitempty" json:"parent_id,omitempty"`
	Position int          `bson:"position" json:"position"`
}

// NavCategory is a node of the navigation tree.
type NavCategory struct {
	ID       string        `json:"id"`
	Slug     string        `json:"slug"`
	Name     string        `json:"name"`
	Children []NavCategory `json:"children"`
}

// NavSection is a top level entry of the navigation tree.
type NavSection struct {
	Section    Section       `json:"section"`
	Categories []NavCategory `json:"categories"`
}

// BuildNavTree arranges categories into the navigation tree: sections in
// fixed order, roots and children sorted by position then name. Children
// whose parent is missing are dropped.
func BuildNavTree(categories []Category) []NavSection {
	bySection := make(map[Section][]Category)
	children := make(map[utils.SixID][]Category)
	for _, c := range categories {
		if c.ParentID != nil && !c.ParentID.IsZero() {
			children[*c.ParentID] = append(children[*c.ParentID], c)
			continue
		}
		bySection[c.Section] = append(bySection[c.Section], c)
	}

	tree := make([]NavSection, 0, len(Sections))
	for _, s := range Sections {
		roots := bySection[s]
		sortCategories(roots)
		nav := NavSection{Section: s, Categories: make([]NavCategory, 0, len(roots))}
		for _, r := range roots {
			kids := children[r.ID]
			sortCategories(kids)
			node := NavCategory{ID: r.ID.String(), Slug: r.Slug, Name: r.Name, Children: make([]NavCategory, 0, len(kids))}
			for _, k := range kids {
				node.Children = append(node.Children, NavCategory{ID: k.ID.String(), Slug: k.Slug, Name: k.Name, Children: []NavCategory{}})
			}
			nav.Categories = append(nav.Categories, node)
		}
		tree = append(tree, nav)
	}
	return tree
}

func sortCategories(cs []Category) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Position != cs[j].Position {
			return cs[i].Position < cs[j].Position
		}
		return cs[i].Name < cs[j].Name
	})
}
