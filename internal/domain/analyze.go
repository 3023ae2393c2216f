package domain

import (
	"slices"
	"time"
)

// mostCommonLimit is the number of hashtags kept in HashtagStats.MostCommon.
const mostCommonLimit = 10

// Analyze computes the report for a table of records. It does not modify
// records and returns an equal report for an equal table.
func Analyze(records []Record) *Report {
	return &Report{
		TotalPosts:      len(records),
		DateRange:       dateRange(records),
		Content:         contentStats(records),
		Hashtags:        hashtagStats(records),
		PostingPatterns: postingPatterns(records),
	}
}

func dateRange(records []Record) DateRange {
	var dr DateRange
	for i := range records {
		d := records[i].Date
		if d == nil {
			continue
		}
		if dr.Earliest == nil || *d < *dr.Earliest {
			dr.Earliest = ptr(*d)
		}
		if dr.Latest == nil || *d > *dr.Latest {
			dr.Latest = ptr(*d)
		}
	}
	return dr
}

func contentStats(records []Record) ContentStats {
	var cs ContentStats
	if len(records) == 0 {
		return cs
	}

	var chars, words, replies int
	longest := -1
	for i := range records {
		r := &records[i]
		chars += r.CharCount
		words += r.WordCount
		if r.IsReply {
			replies++
		}
		if r.HasImage {
			cs.PostsWithImages++
		}
		if r.HasExternal {
			cs.PostsWithLinks++
		}
		if longest < 0 || r.CharCount > records[longest].CharCount {
			longest = i
		}
	}

	n := float64(len(records))
	cs.AvgCharCount = float64(chars) / n
	cs.AvgWordCount = float64(words) / n
	cs.LongestPost = records[longest].Text
	cs.LongestPostChars = records[longest].CharCount
	cs.ReplyPercentage = float64(replies) / n * 100
	return cs
}

func hashtagStats(records []Record) HashtagStats {
	counts := make(map[string]int)
	var order []string
	total := 0

	for i := range records {
		for _, tag := range records[i].Hashtags {
			if _, seen := counts[tag]; !seen {
				order = append(order, tag)
			}
			counts[tag]++
			total++
		}
	}

	ranked := make([]TagCount, len(order))
	for i, tag := range order {
		ranked[i] = TagCount{Tag: tag, Count: counts[tag]}
	}
	// Stable so that equal counts keep first-encountered order.
	slices.SortStableFunc(ranked, func(a, b TagCount) int {
		return b.Count - a.Count
	})
	if len(ranked) > mostCommonLimit {
		ranked = ranked[:mostCommonLimit]
	}

	return HashtagStats{
		TotalUsed:      total,
		UniqueHashtags: len(order),
		MostCommon:     ranked,
	}
}

// postingPatterns returns nil when no record has a timestamp.
func postingPatterns(records []Record) *PostingPatterns {
	var hours [24]int
	byDay := make(map[string]int)
	byMonth := make(map[string]int)
	timed := 0

	for i := range records {
		r := &records[i]
		if !r.HasTimestamp() {
			continue
		}
		timed++
		if r.Hour != nil && *r.Hour >= 0 && *r.Hour < len(hours) {
			hours[*r.Hour]++
		}
		if r.DayOfWeek != nil && *r.DayOfWeek >= 0 && *r.DayOfWeek < len(DayNames) {
			byDay[DayNames[*r.DayOfWeek]]++
		}
		byMonth[monthKey(*r.CreatedAt)]++
	}
	if timed == 0 {
		return nil
	}

	p := &PostingPatterns{
		BusiestHour: -1,
		PostsByHour: make(map[int]int),
		PostsByDay:  byDay,

		MonthlyActivity: byMonth,
	}
	for h, c := range hours {
		if c == 0 {
			continue
		}
		p.PostsByHour[h] = c
		if c > p.BusiestHourCount {
			p.BusiestHour = h
			p.BusiestHourCount = c
		}
	}
	return p
}

// monthKey buckets t by the calendar month of its own wall clock, ignoring
// the zone offset. Posts written near midnight UTC by users in other zones can
// land in a neighbouring month.
func monthKey(t time.Time) string {
	return t.Format("2006-01")
}

func ptr[T any](v T) *T {
	return &v
}
