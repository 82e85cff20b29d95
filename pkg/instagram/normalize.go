package instagram

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"instabridge/pkg/content"
	errs "instabridge/pkg/errors"
	"instabridge/pkg/storage"
)

// mediaFile is one downloadable rendition
type mediaFile struct {
	URL string
	Ext string
}

func (c *Client) postItem(m Media, title string) *content.Item {
	pk := strconv.FormatInt(m.PK, 10)
	return content.New(content.KindPost, pk, title, m.CaptionText(), float64(m.TakenAt),
		content.AudienceUnknown, c.fetcher(content.KindPost, m))
}

func (c *Client) storyItem(m Media) *content.Item {
	pk := strconv.FormatInt(m.PK, 10)
	return content.New(content.KindStory, pk, "Story", m.CaptionText(), float64(m.TakenAt),
		storyAudience(m), c.fetcher(content.KindStory, m))
}

// storyAudience prefers the explicit flag and falls back to the audience string
func storyAudience(m Media) content.Audience {
	if m.IsCloseFriends != nil {
		if *m.IsCloseFriends {
			return content.AudienceCloseFriends
		}
		return content.AudienceNormal
	}
	if m.Audience != "" {
		if strings.Contains(strings.ToLower(m.Audience), "close") {
			return content.AudienceCloseFriends
		}
		return content.AudienceNormal
	}
	return content.AudienceUnknown
}

// mediaFiles lists what to download for m: one file for a photo or video,
// one per child for an album.
func mediaFiles(m Media) []mediaFile {
	if m.MediaType == MediaTypeAlbum || len(m.CarouselMedia) > 0 {
		var out []mediaFile
		for _, child := range m.CarouselMedia {
			out = append(out, mediaFiles(child)...)
		}
		return out
	}

	if m.MediaType == MediaTypeVideo || (m.MediaType != MediaTypePhoto && len(m.VideoVersions) > 0) {
		if v := best(m.VideoVersions); v != "" {
			return []mediaFile{{URL: v, Ext: extension(v, ".mp4")}}
		}
	}
	if p := best(m.ImageVersions2.Candidates); p != "" {
		return []mediaFile{{URL: p, Ext: extension(p, ".jpg")}}
	}
	return nil
}

// best picks the widest candidate
func best(cands []Candidate) string {
	bestURL, bestWidth := "", -1
	for _, c := range cands {
		if c.URL != "" && c.Width > bestWidth {
			bestURL, bestWidth = c.URL, c.Width
		}
	}
	return bestURL
}

func extension(raw, def string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return def
	}
	switch ext := strings.ToLower(path.Ext(u.Path)); ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".heic", ".mp4", ".mov":
		return ext
	default:
		return def
	}
}

// fetcher downloads every rendition of m into dir as <kind>_<pk>[_<n>]<ext>
func (c *Client) fetcher(kind content.Kind, m Media) content.Fetcher {
	files := mediaFiles(m)
	return func(ctx context.Context, dir string) ([]string, error) {
		if len(files) == 0 {
			return nil, errs.Newf(errs.ErrorTypeDownload, "%s:%d has no downloadable media", kind, m.PK)
		}
		store, err := storage.NewManager(dir)
		if err != nil {
			return nil, errs.Wrap(errs.ErrorTypeDownload, err, "media directory")
		}

		paths := make([]string, 0, len(files))
		for i, f := range files {
			name := fmt.Sprintf("%s_%d%s", kind, m.PK, f.Ext)
			if len(files) > 1 {
				name = fmt.Sprintf("%s_%d_%d%s", kind, m.PK, i+1, f.Ext)
			}
			p, err := c.save(ctx, store, f.URL, name)
			if err != nil {
				return paths, err
			}
			paths = append(paths, p)
		}
		return paths, nil
	}
}

func (c *Client) save(ctx context.Context, store *storage.Manager, mediaURL, name string) (string, error) {
	body, err := c.Download(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	p, _, err := store.Save(body, name)
	if err != nil {
		return "", errs.Wrap(errs.ErrorTypeDownload, err, "save "+name)
	}
	return p, nil
}
