package clrss

import (
	"encoding/xml"
	"fmt"
	"mime"
	"path/filepath"
	"portfolio/internal/models/clposts"
	"strings"
	"time"
)

const maxDescription = 300

// RSS représente le flux RSS complet
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Version string   `xml:"version,attr"`
	Channel Channel  `xml:"channel"`
}

// Channel représente le canal RSS
type Channel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	Language      string    `xml:"language"`
	Copyright     string    `xml:"copyright,omitempty"`
	Generator     string    `xml:"generator"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []RSSItem `xml:"item"`
}

// RSSItem représente un article dans le flux RSS
type RSSItem struct {
	Title       string        `xml:"title"`
	Link        string        `xml:"link"`
	Description string        `xml:"description"`
	Author      string        `xml:"author,omitempty"`
	Category    string        `xml:"category,omitempty"`
	GUID        string        `xml:"guid"`
	PubDate     string        `xml:"pubDate"`
	Enclosure   *RSSEnclosure `xml:"enclosure"`
}

type RSSEnclosure struct {
	URL    string `xml:"url,attr"`
	Length int64  `xml:"length,attr"`
	Type   string `xml:"type,attr"`
}

// Site décrit le canal
type Site struct {
	Name        string
	Description string
	BaseURL     string
	Generator   string
}

// SizeFunc renvoie la taille d'une image de couverture, 0 si inconnue
type SizeFunc func(url string) int64

// FromPosts construit le flux des articles publiés
func FromPosts(site Site, posts []clposts.Post, now time.Time, sizeOf SizeFunc) RSS {
	base := strings.TrimRight(site.BaseURL, "/")

	rss := RSS{
		Version: "2.0",
		Channel: Channel{
			Title:         site.Name,
			Link:          base,
			Description:   clposts.PlainText(site.Description),
			Language:      "fr-FR",
			Copyright:     fmt.Sprintf("© %d %s", now.Year(), site.Name),
			Generator:     site.Generator,
			LastBuildDate: now.Format(time.RFC1123Z),
			Items:         make([]RSSItem, 0, len(posts)),
		},
	}

	for _, post := range posts {
		description := post.Excerpt
		if description == "" {
			description = clposts.ExtractExcerpt(clposts.PlainText(post.Content), maxDescription)
		}

		// RSS 2.0 ne supporte qu'une catégorie par item
		category := ""
		if len(post.TagsList) > 0 {
			category = post.TagsList[0]
		}

		link := fmt.Sprintf("%s/blog/%s", base, post.Slug)
		item := RSSItem{
			Title:       post.Title,
			Link:        link,
			Description: clposts.PlainText(description),
			Author:      post.Author,
			Category:    category,
			GUID:        link,
			PubDate:     post.CreatedAt.Format(time.RFC1123Z),
		}

		if post.CoverImage != "" && sizeOf != nil {
			if size := sizeOf(post.CoverImage); size > 0 {
				mimeType := mime.TypeByExtension(filepath.Ext(post.CoverImage))
				if mimeType == "" {
					mimeType = "application/octet-stream"
				}
				url := post.CoverImage
				if strings.HasPrefix(url, "/") {
					url = base + url
				}
				item.Enclosure = &RSSEnclosure{URL: url, Length: size, Type: mimeType}
			}
		}

		rss.Channel.Items = append(rss.Channel.Items, item)
	}
	return rss
}

// Marshal produit le document XML avec son en-tête
func (r RSS) Marshal() ([]byte, error) {
	output, err := xml.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), output...), nil
}
