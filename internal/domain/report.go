package domain

import (
	"encoding/json"
	"fmt"
)

// DayNames maps a DayOfWeek value to its name.
var DayNames = [7]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Report is the analysis of a table of records.
type Report struct {
	TotalPosts      int              `json:"total_posts" yaml:"total_posts"`
	DateRange       DateRange        `json:"date_range" yaml:"date_range"`
	Content         ContentStats     `json:"content" yaml:"content"`
	Hashtags        HashtagStats     `json:"hashtags" yaml:"hashtags"`
	PostingPatterns *PostingPatterns `json:"posting_patterns,omitempty" yaml:"posting_patterns,omitempty"`
}

// DateRange holds the earliest and latest post dates as YYYY-MM-DD. Both are
// nil when no record has a timestamp.
type DateRange struct {
	Earliest *string `json:"earliest" yaml:"earliest"`
	Latest   *string `json:"latest" yaml:"latest"`
}

// ContentStats summarizes post text and attachments.
type ContentStats struct {
	AvgCharCount     float64 `json:"avg_char_count" yaml:"avg_char_count"`
	AvgWordCount     float64 `json:"avg_word_count" yaml:"avg_word_count"`
	LongestPost      string  `json:"longest_post" yaml:"longest_post"`
	LongestPostChars int     `json:"longest_post_chars" yaml:"longest_post_chars"`
	ReplyPercentage  float64 `json:"reply_percentage" yaml:"reply_percentage"`
	PostsWithImages  int     `json:"posts_with_images" yaml:"posts_with_images"`

	// PostsWithLinks counts posts with an external link card embed.
	PostsWithLinks int `json:"posts_with_links" yaml:"posts_with_links"`
}

// HashtagStats summarizes hashtag usage across all records.
type HashtagStats struct {
	TotalUsed      int        `json:"total_used" yaml:"total_used"`
	UniqueHashtags int        `json:"unique_hashtags" yaml:"unique_hashtags"`
	MostCommon     []TagCount `json:"most_common" yaml:"most_common"`
}

// TagCount is a hashtag and the number of times it was used. It is encoded as
// a two element array: ["tag", 3].
type TagCount struct {
	Tag   string
	Count int
}

func (tc TagCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{tc.Tag, tc.Count})
}

func (tc *TagCount) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("unmarshal tag count: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("unmarshal tag count: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &tc.Tag); err != nil {
		return fmt.Errorf("unmarshal tag: %w", err)
	}
	if err := json.Unmarshal(pair[1], &tc.Count); err != nil {
		return fmt.Errorf("unmarshal count: %w", err)
	}
	return nil
}

func (tc TagCount) MarshalYAML() (any, error) {
	return []any{tc.Tag, tc.Count}, nil
}

// PostingPatterns describes when posts were written. Hours with no posts are
// absent from PostsByHour.
type PostingPatterns struct {
	BusiestHour      int            `json:"busiest_hour" yaml:"busiest_hour"`
	BusiestHourCount int            `json:"busiest_hour_count" yaml:"busiest_hour_count"`
	PostsByHour      map[int]int    `json:"posts_by_hour" yaml:"posts_by_hour"`
	PostsByDay       map[string]int `json:"posts_by_day" yaml:"posts_by_day"`

	// MonthlyActivity is keyed by YYYY-MM of the timestamp's own wall clock.
	MonthlyActivity map[string]int `json:"monthly_activity" yaml:"monthly_activity"`
}

// BusiestDay returns the day with the most posts. Ties go to the earlier day
// of the week. ok is false when there are no posts.
func (p *PostingPatterns) BusiestDay() (day string, count int, ok bool) {
	if p == nil {
		return "", 0, false
	}
	for _, name := range DayNames {
		if c := p.PostsByDay[name]; c > count {
			day, count, ok = name, c, true
		}
	}
	return day, count, ok
}
