package trending

import (
	"bytes"
	"log/slog"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const githubBaseURL = "https://github.com"

// Extract parses a trending page and returns the repos found on it.
// A malformed document or a broken row never fails the batch: bad rows
// are skipped, and no rows at all is an empty (not erroneous) result.
func Extract(page []byte, category string) []Repo {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		slog.Warn("unparseable trending page",
			"category", CategoryLabel(category),
			"error", err,
		)
		return nil
	}

	var repos []Repo
	doc.Find("article.Box-row").Each(func(_ int, row *goquery.Selection) {
		repo, ok := extractRow(row, category)
		if !ok {
			slog.Debug("skipping trending row without repo link",
				"category", CategoryLabel(category),
			)
			return
		}
		repos = append(repos, repo)
	})

	return repos
}

// extractRow pulls one repo out of a single listing row. Only a missing
// repo link disqualifies the row; every metric has a fallback.
func extractRow(row *goquery.Selection, category string) (Repo, bool) {
	href, exists := row.Find("h2 a").First().Attr("href")
	href = strings.TrimSpace(href)
	if !exists || href == "" {
		return Repo{}, false
	}

	repo := Repo{
		Category:    category,
		URL:         githubBaseURL + href,
		Name:        strings.Trim(href, "/"),
		Description: cleanText(row.Find("p").First().Text()),
	}

	// Stargazer count. Unparseable counts fall back to zero; the repo
	// is kept either way since partial data beats no data.
	if n, ok := parseCount(row.Find(`a[href$="/stargazers"]`).First().Text()); ok {
		repo.Stars = n
	}

	if n, ok := parseCount(row.Find(`a[href$="/forks"]`).First().Text()); ok {
		forks := n
		repo.Forks = &forks
	}

	if n, ok := parseStarsToday(row.Find("span.d-inline-block.float-sm-right").First().Text()); ok {
		today := n
		repo.StarsToday = &today
	}

	return repo, true
}

// parseCount parses a human-formatted count like "12,345".
func parseCount(text string) (int, bool) {
	text = strings.ReplaceAll(cleanText(text), ",", "")
	if text == "" {
		return 0, false
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// parseStarsToday parses the "123 stars today" trailer span.
func parseStarsToday(text string) (int, bool) {
	fields := strings.Fields(cleanText(text))
	if len(fields) == 0 {
		return 0, false
	}
	return parseCount(fields[0])
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
