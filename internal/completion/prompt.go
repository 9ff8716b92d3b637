package completion

import (
	"strings"

	"github.com/renderinc/reddit-stash/internal/storage"
)

const summarizeInstruction = "Summarize the following saved Reddit post in two or three sentences. Reply with the summary only."

// SummarizeRequest builds the request used to summarize a post
func SummarizeRequest(p *storage.Post) Request {
	var b strings.Builder
	b.WriteString(summarizeInstruction)
	b.WriteString("\n\n")
	if p.Subreddit != "" {
		b.WriteString("Subreddit: r/")
		b.WriteString(p.Subreddit)
		b.WriteString("\n")
	}
	if title := p.CanonicalTitle(); title != "" {
		b.WriteString("Title: ")
		b.WriteString(title)
		b.WriteString("\n")
	}
	if body := p.CanonicalBody(); body != "" {
		b.WriteString("\n")
		b.WriteString(body)
	}

	return Request{Messages: []Message{{Role: "user", Content: b.String()}}}
}
