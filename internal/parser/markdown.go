// Package parser turns Markdown site descriptions into source blueprints.
// Description-mode migrations have no live site to scrape, so the blueprint
// comes from a structured write-up instead.
package parser

import (
	"bufio"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/avollmer/sitegraft/internal/mapping"
)

// frontmatter is the optional YAML header of a site description.
type frontmatter struct {
	Title string `yaml:"title"`
	Pages []struct {
		Title       string `yaml:"title"`
		Path        string `yaml:"path"`
		ContentType string `yaml:"content_type"`
	} `yaml:"pages"`
}

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)
	imageRe   = regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`)
)

// ParseDescription parses a Markdown site description into a blueprint.
// The first h1 (or frontmatter title) names the site, each h2 becomes one
// section, and pages come from the frontmatter pages list.
func ParseDescription(content string) (mapping.Blueprint, error) {
	fm, body, err := splitFrontmatter(content)
	if err != nil {
		return mapping.Blueprint{}, err
	}

	bp := mapping.Blueprint{Title: fm.Title}
	for _, page := range fm.Pages {
		bp.Pages = append(bp.Pages, mapping.Page{
			Title:       page.Title,
			Path:        page.Path,
			ContentType: page.ContentType,
		})
	}

	var current *mapping.Section
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()

		match := headingRe.FindStringSubmatch(line)
		if match == nil {
			if current != nil && imageRe.MatchString(line) {
				current.HasImages = true
			}
			continue
		}

		level, heading := len(match[1]), strings.TrimSpace(match[2])
		switch level {
		case 1:
			if bp.Title == "" {
				bp.Title = heading
			}
		case 2:
			bp.Sections = append(bp.Sections, mapping.Section{
				Index:   len(bp.Sections),
				Type:    classifySection(heading),
				Heading: heading,
			})
			current = &bp.Sections[len(bp.Sections)-1]
		}
	}
	if err := scanner.Err(); err != nil {
		return mapping.Blueprint{}, err
	}

	return bp, nil
}

// splitFrontmatter peels the optional YAML header off a description.
func splitFrontmatter(content string) (frontmatter, string, error) {
	var fm frontmatter
	if !strings.HasPrefix(content, "---\n") {
		return fm, content, nil
	}

	end := strings.Index(content[4:], "\n---")
	if end < 0 {
		return fm, content, nil
	}

	if err := yaml.Unmarshal([]byte(content[4:4+end]), &fm); err != nil {
		// a malformed header is treated as ordinary content
		return frontmatter{}, content, nil
	}

	body := content[4+end+4:]
	return fm, strings.TrimPrefix(body, "\n"), nil
}

// sectionKeywords maps heading words to source section classifications the
// mapping scorer understands.
var sectionKeywords = map[string]string{
	"hero":         "hero",
	"banner":       "hero",
	"intro":        "hero",
	"navigation":   "navigation",
	"menu":         "navigation",
	"nav":          "navigation",
	"feature":      "features",
	"features":     "features",
	"service":      "features",
	"services":     "features",
	"about":        "about",
	"blog":         "blog",
	"news":         "blog",
	"article":      "blog",
	"articles":     "blog",
	"contact":      "contact",
	"footer":       "footer",
	"testimonial":  "testimonials",
	"testimonials": "testimonials",
	"review":       "testimonials",
	"reviews":      "testimonials",
	"team":         "team",
	"staff":        "team",
	"pricing":      "pricing",
	"price":        "pricing",
	"plans":        "pricing",
	"header":       "header",
}

// classifySection infers a section type from its heading text.
func classifySection(heading string) string {
	for _, word := range strings.Fields(strings.ToLower(heading)) {
		word = strings.Trim(word, ".,:;!?()")
		if kind, ok := sectionKeywords[word]; ok {
			return kind
		}
	}
	return "content"
}
