package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blackmichael/bluesky-analyzer/internal/bluesky"
	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

const checkSampleSize = 5

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify login and API access and show a few sample posts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			ok := color.New(color.FgGreen).SprintFunc()

			client, session, err := a.login(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Logged in as %s (%s)\n", ok("✓"), session.Handle, session.DID)

			repo, err := client.DescribeRepo(cmd.Context(), session)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Repo %s, collections: %s\n", ok("✓"), repo.DID, strings.Join(repo.Collections, ", "))
			if !repo.HandleIsCorrect {
				color.New(color.FgYellow).Fprintln(out, "! Handle does not resolve to this DID")
			}

			fetcher := bluesky.NewFetcher(client, session, a.cfg.PageDelay, a.logger)
			raws, err := fetcher.FetchSample(cmd.Context(), checkSampleSize)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s Fetched %d sample posts\n", ok("✓"), len(raws))

			for _, raw := range raws {
				res := domain.Normalize(raw)
				if !res.OK() {
					fmt.Fprintf(out, "  - %s: %v\n", raw.URI, res.Err)
					continue
				}
				created := "unknown date"
				if res.Record.HasTimestamp() {
					created = *res.Record.Date
				}
				fmt.Fprintf(out, "  - [%s] %s\n", created, preview(res.Record.Text, 60))
			}
			return nil
		},
	}
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
