package report

import (
	"path"
	"strings"

	"qaflow/pkg/archive"
)

// Match finds the asset a screenshot reference points at. An exact
// case-insensitive filename match wins; otherwise the first asset whose name
// contains the reference without its image extension is used.
func Match(ref string, assets archive.Assets) (archive.Asset, bool) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if ref == "" {
		return archive.Asset{}, false
	}

	for _, asset := range assets {
		if strings.ToLower(asset.Filename) == ref {
			return asset, true
		}
	}

	stem := stripImageExt(ref)
	if stem == "" {
		return archive.Asset{}, false
	}
	for _, asset := range assets {
		if strings.Contains(strings.ToLower(asset.Filename), stem) {
			return asset, true
		}
	}
	return archive.Asset{}, false
}

// stripImageExt removes trailing image extensions, including doubled ones
// such as "step.png.png".
func stripImageExt(name string) string {
	for {
		if _, ok := archive.FormatOf(name); !ok {
			return name
		}
		name = strings.TrimSuffix(name, path.Ext(name))
	}
}
