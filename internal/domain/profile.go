package domain

import "time"

// ProfileVersion is written into freshly created profiles.
const ProfileVersion = "1.0.0"

// Profile holds per-account settings and derived counters. It travels inside
// the database blob.
type Profile struct {
	Version           string `json:"version"`
	ID                int    `json:"id"`
	ReviewsTotalCount int    `json:"reviewsTotalCount"`
	DueCount          int    `json:"dueCount"`
	FolderCount       int    `json:"folderCount"`
	ExtractCount      int    `json:"extractCount"`
	ClozeCount        int    `json:"clozeCount"`
	OcclusionCount    int    `json:"occlusionCount"`
	IsDatabasePublic  bool   `json:"isDatabasePublic"`
	TutorialCompleted bool   `json:"tutorialCompleted"`
	AcceptedPolicy    bool   `json:"acceptedPolicy"`

	MainWindowPadding            int    `json:"mainWindowPadding"`
	LeftSidebarPadding           int    `json:"leftSidebarPadding"`
	RightSidebarPadding          int    `json:"rightSidebarPadding"`
	FontSize                     int    `json:"fontSize"`
	ShowLeftSidebar              bool   `json:"showLeftSidebar"`
	ShowRightSidebar             bool   `json:"showRightSidebar"`
	ShowExtractsInLearningMode   bool   `json:"showExtractsInLearningMode"`
	ShowOcclusionsInLearningMode bool   `json:"showOcclusionsInLearningMode"`
	ShowClozesInLearningMode     bool   `json:"showClozesInLearningMode"`
	ShowImagesInSidebar          bool   `json:"showImagesInSidebar"`
	ShowToolbar                  bool   `json:"showToolbar"`
	MainWindowBackgroundColor    string `json:"mainWindowBackgroundColor"`
	MainWindowFontColor          string `json:"mainWindowFontColor"`
	LeftSidebarBackgroundColor   string `json:"leftSidebarBackgroundColor"`
	RightSidebarBackgroundColor  string `json:"rightSidebarBackgroundColor"`
	ExtractHighlightColor        string `json:"extractHighlightColor"`
	ClozeHighlightColor          string `json:"clozeHighlightColor"`
	Theme                        string `json:"theme"`

	Statistics map[string]DayStats `json:"statistics"`
	Shortcuts  []Shortcut          `json:"shortcuts"`
	APIKeys    map[string]string   `json:"apiKeys,omitempty"`
}

// DayStats counts activity on one calendar day (keyed YYYY-MM-DD).
type DayStats struct {
	ReviewsCount  int `json:"reviewsCount,omitempty"`
	NewItemsCount int `json:"newItemsCount,omitempty"`
}

// Shortcut binds a key combination to a UI event.
type Shortcut struct {
	Event       string `json:"event"`
	KeyCode     int    `json:"keyCode"`
	AltKey      bool   `json:"altKey"`
	MetaKey     bool   `json:"metaKey"`
	CtrlKey     bool   `json:"ctrlKey"`
	Shift       bool   `json:"shift"`
	Combination string `json:"combination"`
}

// DefaultShortcuts returns the stock keybinding table.
func DefaultShortcuts() []Shortcut {
	ctrl := func(event string, code int, alt, meta bool, combo string) Shortcut {
		return Shortcut{Event: event, KeyCode: code, AltKey: alt, MetaKey: meta, CtrlKey: true, Combination: combo}
	}
	return []Shortcut{
		ctrl("input-create-occlusion", 90, false, true, "CTRL + Z"),
		ctrl("input-create-occlusion-separate", 188, false, true, "CTRL + <"),
		{Event: "input-show-occlusion", KeyCode: 32, Combination: "SPACE"},
		ctrl("input-create-cloze", 67, false, true, "CTRL + C"),
		ctrl("input-create-extract", 88, false, true, "CTRL + X"),
		ctrl("input-spotlight-toggle", 32, false, true, "CTRL + SPACE"),
		ctrl("input-text-summarize", 71, false, true, "CTRL + G"),
		ctrl("input-flag-item", 70, false, true, "CTRL + F"),
		ctrl("input-remove-item", 90, true, true, "CTRL + ALT + Z"),
		ctrl("input-rename-item", 88, true, true, "CTRL + ALT + X"),
		ctrl("input-duplicate-item", 68, true, false, "CTRL + ALT + D"),
		ctrl("input-create-folder", 67, true, true, "CTRL + ALT + C"),
		ctrl("input-create-text", 83, true, true, "CTRL + ALT + S"),
		ctrl("input-grade-item1", 49, false, true, "CTRL + 1"),
		ctrl("input-grade-item2", 50, false, true, "CTRL + 2"),
		ctrl("input-grade-item3", 51, false, true, "CTRL + 3"),
		ctrl("input-grade-item4", 52, false, true, "CTRL + 4"),
		ctrl("input-grade-item5", 53, false, true, "CTRL + 5"),
	}
}

// DefaultProfile returns the profile a brand new account starts with.
func DefaultProfile() Profile {
	return Profile{
		Version:                      ProfileVersion,
		IsDatabasePublic:             true,
		MainWindowPadding:            8,
		LeftSidebarPadding:           8,
		RightSidebarPadding:          8,
		FontSize:                     18,
		ShowLeftSidebar:              true,
		ShowRightSidebar:             true,
		ShowExtractsInLearningMode:   true,
		ShowOcclusionsInLearningMode: true,
		ShowClozesInLearningMode:     true,
		ShowImagesInSidebar:          true,
		ShowToolbar:                  true,
		MainWindowBackgroundColor:    "#0000",
		MainWindowFontColor:          "#0000",
		LeftSidebarBackgroundColor:   "#0000",
		RightSidebarBackgroundColor:  "#0000",
		ExtractHighlightColor:        "#f9ff24",
		ClozeHighlightColor:          "#73b9ff",
		Theme:                        "day",
		Statistics:                   map[string]DayStats{},
		Shortcuts:                    DefaultShortcuts(),
	}
}

// Clone returns a deep copy of the profile.
func (p Profile) Clone() Profile {
	out := p
	if p.Statistics != nil {
		out.Statistics = make(map[string]DayStats, len(p.Statistics))
		for k, v := range p.Statistics {
			out.Statistics[k] = v
		}
	}
	if p.Shortcuts != nil {
		out.Shortcuts = append([]Shortcut(nil), p.Shortcuts...)
	}
	if p.APIKeys != nil {
		out.APIKeys = make(map[string]string, len(p.APIKeys))
		for k, v := range p.APIKeys {
			out.APIKeys[k] = v
		}
	}
	return out
}

// Recount refreshes the derived per-type counters and the number of records
// due at now.
func (p *Profile) Recount(records []Record, now time.Time) {
	p.FolderCount, p.ExtractCount, p.ClozeCount, p.OcclusionCount, p.DueCount = 0, 0, 0, 0, 0
	for _, r := range records {
		switch r.ContentType {
		case Folder:
			p.FolderCount++
			continue
		case Extract:
			p.ExtractCount++
		case Cloze:
			p.ClozeCount++
		case Occlusion:
			p.OcclusionCount++
		}
		if r.IsDue(now) {
			p.DueCount++
		}
	}
}

// RecordReview bumps the review counters for the day containing now.
func (p *Profile) RecordReview(now time.Time) {
	p.ReviewsTotalCount++
	if p.Statistics == nil {
		p.Statistics = map[string]DayStats{}
	}
	day := DayKey(now)
	stats := p.Statistics[day]
	stats.ReviewsCount++
	p.Statistics[day] = stats
}

// DayKey formats t as the YYYY-MM-DD key used in Profile.Statistics.
func DayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// IsDue reports whether the record should be offered for review at now.
// Folders are never due; records without a due date have not been reviewed
// yet and are due immediately.
func (r Record) IsDue(now time.Time) bool {
	if r.ContentType == Folder {
		return false
	}
	return r.DueDate == nil || !r.DueDate.After(now)
}
