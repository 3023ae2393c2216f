package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

const summaryTopHashtags = 5

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	labelColor   = color.New(color.FgWhite)
)

// PrintSummary writes a human-readable summary of report to w.
func PrintSummary(w io.Writer, report *domain.Report) {
	rule := strings.Repeat("=", 60)

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	headingColor.Fprintln(w, "BLUESKY ANALYSIS SUMMARY")
	fmt.Fprintln(w, rule)

	section(w, "BASIC STATS")
	line(w, "Total posts", humanize.Comma(int64(report.TotalPosts)))
	line(w, "Date range", fmt.Sprintf("%s to %s", orNone(report.DateRange.Earliest), orNone(report.DateRange.Latest)))

	c := report.Content
	section(w, "CONTENT ANALYSIS")
	line(w, "Average characters per post", fmt.Sprintf("%.1f", c.AvgCharCount))
	line(w, "Average words per post", fmt.Sprintf("%.1f", c.AvgWordCount))
	line(w, "Longest post", fmt.Sprintf("%s characters", humanize.Comma(int64(c.LongestPostChars))))
	line(w, "Reply percentage", fmt.Sprintf("%.1f%%", c.ReplyPercentage))
	line(w, "Posts with images", humanize.Comma(int64(c.PostsWithImages)))
	line(w, "Posts with links", humanize.Comma(int64(c.PostsWithLinks)))

	h := report.Hashtags
	section(w, "HASHTAG USAGE")
	line(w, "Total hashtags used", humanize.Comma(int64(h.TotalUsed)))
	line(w, "Unique hashtags", humanize.Comma(int64(h.UniqueHashtags)))
	if len(h.MostCommon) > 0 {
		fmt.Fprintln(w, "   Top hashtags:")
		for i, tc := range h.MostCommon {
			if i == summaryTopHashtags {
				break
			}
			fmt.Fprintf(w, "      #%s: %d times\n", tc.Tag, tc.Count)
		}
	}

	if p := report.PostingPatterns; p != nil {
		section(w, "POSTING PATTERNS")
		line(w, "Most active hour", fmt.Sprintf("%d:00 (%d posts)", p.BusiestHour, p.BusiestHourCount))
		if day, count, ok := p.BusiestDay(); ok {
			line(w, "Most active day", fmt.Sprintf("%s (%d posts)", day, count))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
}

func section(w io.Writer, title string) {
	fmt.Fprintln(w)
	headingColor.Fprintf(w, "%s:\n", title)
}

func line(w io.Writer, label, value string) {
	fmt.Fprintf(w, "   %s %s\n", labelColor.Sprint(label+":"), value)
}

func orNone(s *string) string {
	if s == nil {
		return "n/a"
	}
	return *s
}
