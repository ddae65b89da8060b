package builtin

import (
	"context"
	"fmt"

	"vaultguard/internal/checks"
	"vaultguard/internal/probe"
)

const RootAccessID = "root-access"

// DefaultRootArtifacts are paths left behind by common root and jailbreak
// tooling.
var DefaultRootArtifacts = []string{
	"/system/bin/su",
	"/system/xbin/su",
	"/sbin/su",
	"/system/app/Superuser.apk",
	"/data/adb/magisk",
	"/Applications/Cydia.app",
	"/Library/MobileSubstrate/MobileSubstrate.dylib",
	"/private/var/lib/apt",
}

type RootAccessConfig struct {
	ID    string
	Paths []string
}

// RootAccessCheck reports Suspicious when any known root or jailbreak
// artefact exists on the filesystem.
type RootAccessCheck struct {
	id     string
	paths  []string
	stater probe.FileStater
	files  *probe.FilePresenceProbe
}

func NewRootAccessCheck(cfg RootAccessConfig, stater probe.FileStater) (*RootAccessCheck, error) {
	if cfg.ID == "" {
		cfg.ID = RootAccessID
	}
	c := &RootAccessCheck{id: cfg.ID, paths: cleanList(cfg.Paths), stater: stater}
	if err := c.rebuild(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *RootAccessCheck) rebuild() error {
	if len(c.paths) == 0 {
		return checks.ConfigErrorf(c.id, "artefact path set must not be empty")
	}
	files, err := probe.NewFilePresenceProbe(c.paths, c.stater)
	if err != nil {
		return checks.ConfigErrorf(c.id, "%v", err)
	}
	c.files = files
	return nil
}

func (c *RootAccessCheck) ID() string { return c.id }

func (c *RootAccessCheck) Title() string { return "No Root Or Jailbreak Artefacts" }

func (c *RootAccessCheck) Description() string {
	return "Looks for files installed by root and jailbreak tooling."
}

func (c *RootAccessCheck) Options() []checks.Option {
	return []checks.Option{
		{Name: "paths", Description: "Artefact paths to look for (';'-separated).", Default: joinList(DefaultRootArtifacts)},
	}
}

func (c *RootAccessCheck) Configure(opts map[string]string) error {
	if err := checkOptionNames(c.id, c.Options(), opts); err != nil {
		return err
	}
	v, ok := optList(opts, "paths")
	if !ok {
		return nil
	}
	next := *c
	next.paths = v
	if err := next.rebuild(); err != nil {
		return err
	}
	*c = next
	return nil
}

func (c *RootAccessCheck) Evaluate(ctx context.Context) (checks.Verdict, error) {
	ev, err := c.files.Observe(ctx)
	if err != nil {
		return checks.Verdict{}, err
	}
	present, _ := ev.String(probe.KeyPresentPaths)
	if present != "" {
		return checks.SuspiciousVerdict(c.id, fmt.Sprintf("Root artefacts present: %s", present)).WithEvidence(ev.Strings()), nil
	}
	return checks.CleanVerdict(c.id, "").WithEvidence(ev.Strings()), nil
}
