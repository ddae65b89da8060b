package probe

import (
	"context"
	"errors"
	"strings"
)

const (
	KeyImagesScanned = "images_scanned"
	KeyImageMatches  = "image_matches"
)

// LoadedImagesProbe scans the process image list for names containing any
// of the configured markers (case-insensitive substring).
type LoadedImagesProbe struct {
	markers []string
	lister  ImageLister
}

func NewLoadedImagesProbe(markers []string, lister ImageLister) (*LoadedImagesProbe, error) {
	if lister == nil {
		return nil, errors.New("loaded images probe: lister is nil")
	}
	cp := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			cp = append(cp, m)
		}
	}
	return &LoadedImagesProbe{markers: cp, lister: lister}, nil
}

func (p *LoadedImagesProbe) Name() string { return "loaded-images" }

func (p *LoadedImagesProbe) Observe(ctx context.Context) (Evidence, error) {
	images, err := p.lister.LoadedImages(ctx)
	if err != nil {
		return Evidence{}, Unavailable(p.Name(), err)
	}
	ev := NewEvidence()
	var matches []string
	for _, img := range images {
		lower := strings.ToLower(img)
		for _, m := range p.markers {
			if strings.Contains(lower, m) {
				matches = append(matches, img)
				break
			}
		}
	}
	ev.Set(KeyImagesScanned, len(images))
	ev.Set(KeyImageMatches, strings.Join(matches, ","))
	return ev, nil
}
