package cache

import (
	"fmt"
	"strings"

	"Photo_Archive/internal/model"
)

const (
	LocationPrefix = "location:"
	RecentPrefix   = "recent:"
	ParentPrefix   = "parent:"
	SearchPrefix   = "search:"
	ItemPrefix     = "item:"
)

func LocationKey(location string) string {
	return LocationPrefix + normalize(location)
}

func RecentKey(kind model.ContentKind, limit int) string {
	return fmt.Sprintf("%s%s:%d", RecentPrefix, kind, limit)
}

func ParentKey(parentID uint64, kind model.ContentKind) string {
	return fmt.Sprintf("%s%d:%s", ParentPrefix, parentID, kind)
}

func SearchKey(query string) string {
	return SearchPrefix + normalize(query)
}

func ItemKey(id uint64) string {
	return fmt.Sprintf("%s%d", ItemPrefix, id)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Plan 一次写入需要失效的缓存
type Plan struct {
	Keys     []string
	Prefixes []string
	All      bool
}

// Merge 合并两个计划
func (p Plan) Merge(o Plan) Plan {
	return Plan{
		Keys:     append(append([]string{}, p.Keys...), o.Keys...),
		Prefixes: append(append([]string{}, p.Prefixes...), o.Prefixes...),
		All:      p.All || o.All,
	}
}

// PlanFor 某条内容写入后可能改变结果集的查询：
//
//	all     -> item:<id>, recent:<kind>:*, search:*
//	photo   -> location:<loc>
//	tag     -> parent:<photo>:tag
//	comment -> parent:<photo>:comment
//
// 搜索结果集无法静态确定，整段前缀失效
func PlanFor(item *model.ContentItem) Plan {
	var p Plan
	if item.ID != 0 {
		p.Keys = append(p.Keys, ItemKey(item.ID))
	}
	p.Prefixes = append(p.Prefixes, fmt.Sprintf("%s%s:", RecentPrefix, item.Kind), SearchPrefix)
	switch item.Kind {
	case model.KindPhoto:
		if item.Location != "" {
			p.Keys = append(p.Keys, LocationKey(item.Location))
		}
	case model.KindTag, model.KindComment:
		p.Keys = append(p.Keys, ParentKey(item.ParentID, item.Kind))
	}
	return p
}
