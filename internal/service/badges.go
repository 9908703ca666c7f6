package service

import "Photo_Archive/internal/model"

// BadgeRule 徽章判定条件，基于重算后的作者数据
type BadgeRule struct {
	Name    string
	Qualify func(s *model.UserStats) bool
}

func DefaultBadgeRules() []BadgeRule {
	return []BadgeRule{
		{Name: "first_photo", Qualify: func(s *model.UserStats) bool { return s.ApprovedCount >= 1 }},
		{Name: "archivist", Qualify: func(s *model.UserStats) bool { return s.ApprovedCount >= 10 }},
		{Name: "historian", Qualify: func(s *model.UserStats) bool { return s.ApprovedCount >= 50 }},
		{Name: "well_liked", Qualify: func(s *model.UserStats) bool { return s.TotalLikes >= 100 }},
		{Name: "widely_seen", Qualify: func(s *model.UserStats) bool { return s.TotalViews >= 1000 }},
	}
}

// QualifiedBadges 当前满足条件的徽章
func QualifiedBadges(rules []BadgeRule, s *model.UserStats) []string {
	var out []string
	for _, r := range rules {
		if r.Qualify(s) {
			out = append(out, r.Name)
		}
	}
	return out
}
