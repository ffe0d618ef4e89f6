package assembler

import (
	"fmt"
	"strings"

	"github.com/connexus-ai/ragcore/internal/model"
)

// Format selects the output rendering.
type Format string

const (
	FormatStructured Format = "structured" // XML-like
	FormatMarkdown   Format = "markdown"   // Markdown-like
)

// CitationStyle selects how Markdown formatting attributes chunks to
// sources; unused when Format is FormatStructured.
type CitationStyle string

const (
	CitationInline   CitationStyle = "inline"
	CitationFootnote CitationStyle = "footnote"
	CitationHeader   CitationStyle = "header"
)

// FormatOptions configures rendering of the deduplicated, ordered,
// budgeted chunk list into a single string.
type FormatOptions struct {
	Format        Format
	CitationStyle CitationStyle
	IncludeScore  bool
	PrettyPrint   bool
	Separator     string // markdown only; default "\n\n"
	RootTag       string // structured only; default "context"
	SourceTag     string // structured only; default "source"
	Preamble      string
	Postamble     string
}

func formatBody(items []budgeted, opts FormatOptions) (string, []model.SourceRef) {
	sources := make([]model.SourceRef, len(items))
	for i, it := range items {
		sources[i] = sourceRefFor(i+1, it)
	}

	var body string
	if opts.Format == FormatMarkdown {
		body = formatMarkdown(items, sources, opts)
	} else {
		body = formatStructured(items, sources, opts)
	}

	if opts.Preamble != "" {
		body = opts.Preamble + "\n\n" + body
	}
	if opts.Postamble != "" {
		body = body + "\n\n" + opts.Postamble
	}
	return body, sources
}

func sourceRefFor(index int, it budgeted) model.SourceRef {
	score := it.score
	ref := model.SourceRef{
		Index:   index,
		ChunkID: it.id,
		Source:  it.chunk.StringMeta(model.MetaSource),
		Score:   &score,
	}
	ref.Location = locationFor(it.chunk)
	return ref
}

func locationFor(chunk model.Chunk) string {
	if section := chunk.StringMeta(model.MetaSection); section != "" {
		return section
	}
	if page, ok := chunk.IntMeta(model.MetaPageNumber); ok {
		return fmt.Sprintf("page %d", page)
	}
	return ""
}

func formatStructured(items []budgeted, sources []model.SourceRef, opts FormatOptions) string {
	rootTag := opts.RootTag
	if rootTag == "" {
		rootTag = "context"
	}
	sourceTag := opts.SourceTag
	if sourceTag == "" {
		sourceTag = "source"
	}

	nl, indent := "", ""
	if opts.PrettyPrint {
		nl, indent = "\n", "  "
	}

	var b strings.Builder
	b.WriteString("<" + rootTag + ">" + nl)
	for i, it := range items {
		ref := sources[i]
		b.WriteString(indent + "<" + sourceTag)
		b.WriteString(fmt.Sprintf(` id="%s"`, escapeXML(ref.ChunkID)))
		if ref.Source != "" {
			b.WriteString(fmt.Sprintf(` file="%s"`, escapeXML(ref.Source)))
		}
		if ref.Location != "" {
			b.WriteString(fmt.Sprintf(` location="%s"`, escapeXML(ref.Location)))
		}
		if section := it.chunk.StringMeta(model.MetaSection); section != "" {
			b.WriteString(fmt.Sprintf(` section="%s"`, escapeXML(section)))
		}
		if opts.IncludeScore {
			b.WriteString(fmt.Sprintf(` score="%.4f"`, it.score))
		}
		b.WriteString(">")
		b.WriteString(escapeXML(it.chunk.Content))
		b.WriteString("</" + sourceTag + ">" + nl)
	}
	b.WriteString("</" + rootTag + ">")
	return b.String()
}

func escapeXML(s string) string {
	r := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
	return r.Replace(s)
}

func formatMarkdown(items []budgeted, sources []model.SourceRef, opts FormatOptions) string {
	sep := opts.Separator
	if sep == "" {
		sep = "\n\n"
	}
	style := opts.CitationStyle
	if style == "" {
		style = CitationInline
	}

	parts := make([]string, 0, len(items))
	var footnotes []string

	for i, it := range items {
		ref := sources[i]
		switch style {
		case CitationHeader:
			heading := fmt.Sprintf("### Source %d", ref.Index)
			if ref.Source != "" {
				heading += ": " + ref.Source
			}
			body := heading + "\n" + it.chunk.Content
			if opts.IncludeScore {
				body += fmt.Sprintf("\n*(score: %.4f)*", it.score)
			}
			parts = append(parts, body)

		case CitationFootnote:
			marker := fmt.Sprintf("[%d]", ref.Index)
			parts = append(parts, marker+" "+it.chunk.Content)
			footnoteLine := fmt.Sprintf("%s %s", marker, ref.Source)
			if ref.Location != "" {
				footnoteLine += " — " + ref.Location
			}
			if opts.IncludeScore {
				footnoteLine += fmt.Sprintf(" (score: %.4f)", it.score)
			}
			footnotes = append(footnotes, footnoteLine)

		default: // inline
			prefix := fmt.Sprintf("**[%d]**", ref.Index)
			suffix := ""
			if ref.Source != "" {
				suffix = fmt.Sprintf(" *(%s)*", ref.Source)
			}
			body := prefix + " " + it.chunk.Content + suffix
			if opts.IncludeScore {
				body += fmt.Sprintf(" *(score: %.4f)*", it.score)
			}
			parts = append(parts, body)
		}
	}

	body := strings.Join(parts, sep)
	if style == CitationFootnote && len(footnotes) > 0 {
		body += sep + "**Sources:**\n" + strings.Join(footnotes, "\n")
	}
	return body
}
