package builtin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"vaultguard/internal/checks"
	"vaultguard/internal/probe"
)

const InstrumentationID = "instrumentation"

// DefaultInstrumentationCandidates are library names associated with common
// injection toolkits. Attacker-known lists age quickly; hosts should supply
// their own.
var DefaultInstrumentationCandidates = []string{
	"frida", "gum-js-loop", "libsubstrate.so", "xposed", "libxposed_art.so",
}

// DefaultImageMarkers are substrings matched against loaded image names.
var DefaultImageMarkers = []string{"frida", "cycript"}

type InstrumentationConfig struct {
	// ID overrides InstrumentationID.
	ID           string
	Candidates   []string
	ImageMarkers []string
	// Exhaustive attempts every candidate instead of stopping at the first load.
	Exhaustive bool
}

// InstrumentationCheck reports Suspicious when any candidate library loads or
// any mapped image name contains a marker, and Clean otherwise.
//
// "Nothing loaded" is treated as Clean. That is a weak heuristic, trivially
// bypassed by renaming the toolkit or hooking the load primitive itself; it is
// not a security boundary.
type InstrumentationCheck struct {
	id         string
	candidates []string
	markers    []string
	exhaustive bool

	loader probe.LibraryLoader
	lister probe.ImageLister

	libs   *probe.LibraryPresenceProbe
	images *probe.LoadedImagesProbe
}

// NewInstrumentationCheck builds the check. lister may be nil, in which case
// only load attempts are made.
func NewInstrumentationCheck(cfg InstrumentationConfig, loader probe.LibraryLoader, lister probe.ImageLister) (*InstrumentationCheck, error) {
	id := cfg.ID
	if id == "" {
		id = InstrumentationID
	}
	if loader == nil {
		return nil, checks.ConfigErrorf(id, "library loader is required")
	}
	c := &InstrumentationCheck{
		id:         id,
		candidates: cleanList(cfg.Candidates),
		markers:    cleanList(cfg.ImageMarkers),
		exhaustive: cfg.Exhaustive,
		loader:     loader,
		lister:     lister,
	}
	if err := c.rebuild(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *InstrumentationCheck) rebuild() error {
	if len(c.candidates) == 0 {
		return checks.ConfigErrorf(c.id, "candidate library set must not be empty")
	}
	libs, err := probe.NewLibraryPresenceProbe(c.candidates, c.loader, c.exhaustive)
	if err != nil {
		return checks.ConfigErrorf(c.id, "%v", err)
	}
	c.libs = libs
	c.images = nil
	if c.lister != nil && len(c.markers) > 0 {
		images, err := probe.NewLoadedImagesProbe(c.markers, c.lister)
		if err != nil {
			return checks.ConfigErrorf(c.id, "%v", err)
		}
		c.images = images
	}
	return nil
}

func (c *InstrumentationCheck) ID() string { return c.id }

func (c *InstrumentationCheck) Title() string { return "Instrumentation Toolkit Absent" }

func (c *InstrumentationCheck) Description() string {
	return "Attempts to load libraries associated with dynamic instrumentation toolkits and scans mapped images for known markers. Absence is not proof of a clean process."
}

func (c *InstrumentationCheck) Options() []checks.Option {
	return []checks.Option{
		{Name: "candidates", Description: "Library names to attempt to load (';'-separated).", Default: joinList(DefaultInstrumentationCandidates)},
		{Name: "image_markers", Description: "Substrings matched against loaded image names (';'-separated).", Default: joinList(DefaultImageMarkers)},
		{Name: "exhaustive", Description: "Attempt every candidate instead of stopping at the first load.", Default: "false"},
	}
}

func (c *InstrumentationCheck) Configure(opts map[string]string) error {
	if err := checkOptionNames(c.id, c.Options(), opts); err != nil {
		return err
	}
	next := *c
	if v, ok := optList(opts, "candidates"); ok {
		next.candidates = v
	}
	if v, ok := optList(opts, "image_markers"); ok {
		next.markers = v
	}
	b, ok, err := optBool(c.id, opts, "exhaustive")
	if err != nil {
		return err
	}
	if ok {
		next.exhaustive = b
	}
	if err := next.rebuild(); err != nil {
		return err
	}
	*c = next
	return nil
}

// Evaluate runs both probes before deciding. A positive finding from either
// wins over a failure of the other. Candidates the loader failed on are
// listed in the evidence and do not change a Clean result.
func (c *InstrumentationCheck) Evaluate(ctx context.Context) (checks.Verdict, error) {
	evidence := map[string]string{
		"candidates": strings.Join(c.candidates, ","),
	}

	var failed string
	libEv, libErr := c.libs.Observe(ctx)
	if libErr != nil {
		evidence["library_error"] = libErr.Error()
	} else {
		loaded, _ := libEv.String(probe.KeyLoaded)
		attempted, _ := libEv.Int(probe.KeyAttempted)
		failed, _ = libEv.String(probe.KeyFailed)
		evidence["loaded"] = loaded
		evidence["attempted"] = strconv.Itoa(attempted)
		if failed != "" {
			evidence["failed"] = failed
			for k, v := range libEv.Strings() {
				if strings.HasSuffix(k, ".error") {
					evidence[k] = v
				}
			}
		}
		if loaded != "" {
			return checks.SuspiciousVerdict(c.id, fmt.Sprintf("Instrumentation library loaded: %s", loaded)).WithEvidence(evidence), nil
		}
	}

	var imgErr error
	if c.images != nil {
		imgEv, err := c.images.Observe(ctx)
		if err != nil {
			imgErr = err
			evidence["image_error"] = err.Error()
		} else {
			matches, _ := imgEv.String(probe.KeyImageMatches)
			scanned, _ := imgEv.Int(probe.KeyImagesScanned)
			evidence["image_matches"] = matches
			evidence["images_scanned"] = strconv.Itoa(scanned)
			if matches != "" {
				return checks.SuspiciousVerdict(c.id, fmt.Sprintf("Instrumentation image mapped: %s", matches)).WithEvidence(evidence), nil
			}
		}
	}

	if libErr != nil {
		return checks.Verdict{}, libErr
	}
	if imgErr != nil {
		return checks.Verdict{}, imgErr
	}
	msg := ""
	if failed != "" {
		msg = fmt.Sprintf("Could not attempt: %s", failed)
	}
	return checks.CleanVerdict(c.id, msg).WithEvidence(evidence), nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
